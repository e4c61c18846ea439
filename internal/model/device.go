package model

// Device represents a managed endpoint reached through a lightweight agent.
//
// PolicyIDs and PolicyRev are a self-contained snapshot copied from the
// owning customer at propagation time, so the distribution hot path never
// needs a live customer lookup.
type Device struct {
	ID           string   `json:"id"`
	Hostname     string   `json:"hostname"`
	CustomerID   string   `json:"customerId,omitempty"`
	Distro       string   `json:"distro"`
	AgentVersion string   `json:"agentVersion"`
	PolicyIDs    []string `json:"policyIds"`
	PolicyRev    int      `json:"policyRev"`
	LastSeen     string   `json:"lastSeen"`
}
