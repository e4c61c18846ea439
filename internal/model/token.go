package model

// EnrollmentToken is a single-use credential binding a new device to a
// tenant at onboarding time. The customer binding happens at issuance; the
// token is consumed (marked used) at redemption.
type EnrollmentToken struct {
	Token      string `json:"token"`
	CustomerID string `json:"customerId,omitempty"`
	OS         string `json:"os,omitempty"`
	Used       bool   `json:"used"`
	CreatedAt  int64  `json:"createdAt"`
}
