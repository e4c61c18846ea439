package model

import "encoding/json"

// Seq holds the monotonically increasing id sequence counters.
type Seq struct {
	Device int `json:"device"`
	Agent  int `json:"agent"`
}

// State is the single persisted document holding every entity.
//
// AgentMap is the agent-identity indirection: an opaque agent id maps to the
// durable device record created at enrollment, assigned exactly once.
// LastResults keeps the most recent apply-result blob reported per device.
type State struct {
	Customers   []Customer                 `json:"customers"`
	Devices     []Device                   `json:"devices"`
	Policies    []Policy                   `json:"policies"`
	AgentMap    map[string]string          `json:"agentMap"`
	Seq         Seq                        `json:"seq"`
	Tokens      map[string]EnrollmentToken `json:"tokens"`
	LastResults map[string]json.RawMessage `json:"lastResults,omitempty"`
}

// SeedPolicies returns the policies installed into a fresh state document.
func SeedPolicies() []Policy {
	return []Policy{
		{ID: "pol-ufw-enable", Name: "UFW Enable", Version: 1},
		{ID: "pol-ssh-baseline", Name: "SSH Baseline", Version: 1},
	}
}

// DefaultState returns an initialized empty state with seed policies.
func DefaultState() *State {
	return &State{
		Customers:   []Customer{},
		Devices:     []Device{},
		Policies:    SeedPolicies(),
		AgentMap:    map[string]string{},
		Seq:         Seq{Device: 1, Agent: 1},
		Tokens:      map[string]EnrollmentToken{},
		LastResults: map[string]json.RawMessage{},
	}
}

// CustomerByID returns the customer with the given id, or nil.
func (s *State) CustomerByID(id string) *Customer {
	for i := range s.Customers {
		if s.Customers[i].ID == id {
			return &s.Customers[i]
		}
	}
	return nil
}

// DeviceByID returns the device with the given id, or nil.
func (s *State) DeviceByID(id string) *Device {
	for i := range s.Devices {
		if s.Devices[i].ID == id {
			return &s.Devices[i]
		}
	}
	return nil
}

// PolicyByID returns the policy with the given id, or nil.
func (s *State) PolicyByID(id string) *Policy {
	for i := range s.Policies {
		if s.Policies[i].ID == id {
			return &s.Policies[i]
		}
	}
	return nil
}

// HasPolicy reports whether a policy with the given id exists.
func (s *State) HasPolicy(id string) bool {
	return s.PolicyByID(id) != nil
}
