package model

import "strings"

// ResolveDevice maps a caller-supplied identifier to a device record.
//
// An identifier carrying the device prefix is used directly; anything else is
// treated as an agent id and resolved through the identity map, falling back
// to a direct device lookup for callers that pass bare device ids. Returns
// nil when nothing resolves, which callers treat as a normal transient state
// (enrollment races), not an error.
func (s *State) ResolveDevice(identifier string) *Device {
	if strings.HasPrefix(identifier, "dev_") {
		return s.DeviceByID(identifier)
	}
	if deviceID, ok := s.AgentMap[identifier]; ok {
		return s.DeviceByID(deviceID)
	}
	return s.DeviceByID(identifier)
}
