package model

// Customer represents a tenant owning devices and a policy assignment set.
//
// PolicyRev increases by exactly one on every policy-set mutation and is the
// source of the cache validator served to polling agents.
type Customer struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PolicyIDs []string `json:"policyIds"`
	PolicyRev int      `json:"policyRev"`
}
