package model

// Policy represents a reusable remediation policy definition.
//
// The action spec is declarative: an optional package to ensure installed
// (with arbitrary structured parameters) and an optional bash snippet. The
// compiler turns this into an ordered manifest for agents.
type Policy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version"`
	PackageName string         `json:"packageName,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Bash        string         `json:"bash,omitempty"`
}
