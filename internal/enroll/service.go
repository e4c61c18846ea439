// Package enroll handles token issuance, device enrollment, the
// agent-identity map, and agent liveness reporting.
package enroll

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go_lpp/internal/model"
	"go_lpp/internal/store"

	"github.com/sirupsen/logrus"
)

// ErrCustomerNotFound is returned when a token references an absent tenant.
var ErrCustomerNotFound = errors.New("customer not found")

// ErrDeviceNotFound is returned when a mapping targets an absent device.
var ErrDeviceNotFound = errors.New("device not found")

// Service implements enrollment and the identity mapper.
type Service struct {
	store        *store.Store
	logger       *logrus.Entry
	agentVersion string
}

// NewService creates a new enrollment service. agentVersion is stamped onto
// devices created here.
func NewService(st *store.Store, logger *logrus.Entry, agentVersion string) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, logger: logger, agentVersion: agentVersion}
}

// GenerateToken returns an unguessable random token string.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IssueToken creates a single-use enrollment token bound to the given tenant
// at issuance. The store is flushed synchronously before returning: the
// caller hands the token to an installer and treats it as durably committed.
func (s *Service) IssueToken(customerID, os string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	var cerr error
	s.store.Mutate(func(st *model.State) {
		if st.CustomerByID(customerID) == nil {
			cerr = ErrCustomerNotFound
			return
		}
		st.Tokens[token] = model.EnrollmentToken{
			Token:      token,
			CustomerID: customerID,
			OS:         os,
			CreatedAt:  time.Now().Unix(),
		}
	})
	if cerr != nil {
		return "", cerr
	}
	s.store.Save(true)

	return token, nil
}

// EnrollResult is the outcome of a device enrollment.
type EnrollResult struct {
	AgentID  int
	DeviceID string
}

// Enroll redeems a token and creates a device bound to the token's tenant,
// inheriting the tenant's current policy snapshot. A missing or already-used
// token does not fail enrollment: the device is created unassigned and
// policy-less, so a lost or duplicated install request cannot brick
// provisioning. That leniency is logged for operators.
//
// A fresh device id and agent id come from the persisted sequence counters;
// the agentId→deviceId mapping is recorded once, in the same atomic step.
func (s *Service) Enroll(token, hostname, distro string) *EnrollResult {
	if hostname == "" {
		hostname = "unknown"
	}
	if distro == "" {
		distro = "linux-unknown"
	}

	res := &EnrollResult{}
	s.store.Mutate(func(st *model.State) {
		customerID := ""
		if t, ok := st.Tokens[token]; ok && !t.Used {
			customerID = t.CustomerID
			t.Used = true
			st.Tokens[token] = t
		} else {
			s.logger.WithFields(logrus.Fields{
				"token_present": token != "",
				"hostname":      hostname,
			}).Warn("enrollment without valid token, creating unassigned device")
		}

		inherited := []string{}
		rev := 0
		if c := st.CustomerByID(customerID); c != nil {
			inherited = append(inherited, c.PolicyIDs...)
			rev = c.PolicyRev
		}

		deviceID := "dev_" + strconv.Itoa(st.Seq.Device)
		st.Seq.Device++
		st.Devices = append(st.Devices, model.Device{
			ID:           deviceID,
			Hostname:     hostname,
			CustomerID:   customerID,
			Distro:       distro,
			AgentVersion: s.agentVersion,
			PolicyIDs:    inherited,
			PolicyRev:    rev,
			LastSeen:     now(),
		})

		agentID := st.Seq.Agent
		st.Seq.Agent++
		st.AgentMap[strconv.Itoa(agentID)] = deviceID

		res.AgentID = agentID
		res.DeviceID = deviceID
	})
	s.store.Save(true)

	return res
}

// CreateDevice creates a device by direct administrative call, inheriting
// the tenant snapshot when a customer is given. No agent identity is
// allocated; that only happens at enrollment.
func (s *Service) CreateDevice(hostname, distro, customerID string) *model.Device {
	if hostname == "" {
		hostname = "unknown"
	}
	if distro == "" {
		distro = "linux-unknown"
	}

	var device model.Device
	s.store.Mutate(func(st *model.State) {
		inherited := []string{}
		rev := 0
		if c := st.CustomerByID(customerID); c != nil {
			inherited = append(inherited, c.PolicyIDs...)
			rev = c.PolicyRev
		} else {
			customerID = ""
		}

		device = model.Device{
			ID:           "dev_" + strconv.Itoa(st.Seq.Device),
			Hostname:     hostname,
			CustomerID:   customerID,
			Distro:       distro,
			AgentVersion: s.agentVersion,
			PolicyIDs:    inherited,
			PolicyRev:    rev,
			LastSeen:     now(),
		}
		st.Seq.Device++
		st.Devices = append(st.Devices, device)
	})
	s.store.Save(true)

	return &device
}

// ListDevices returns a copy of all devices.
func (s *Service) ListDevices() []model.Device {
	var out []model.Device
	s.store.View(func(st *model.State) {
		out = append([]model.Device(nil), st.Devices...)
	})
	return out
}

// Heartbeat updates lastSeen for the device the identifier resolves to. An
// unresolvable identifier is a no-op success; the miss is logged so the
// transient state is visible to operators.
func (s *Service) Heartbeat(identifier string) {
	resolved := false
	s.store.Mutate(func(st *model.State) {
		if d := st.ResolveDevice(identifier); d != nil {
			d.LastSeen = now()
			resolved = true
		}
	})
	if !resolved {
		s.logger.WithField("identifier", identifier).Debug("heartbeat from unresolved identifier")
		return
	}
	s.store.Save(false)
}

// IngestResult stores the most recent apply-result blob for the device the
// identifier resolves to, and counts as a heartbeat. Unresolvable
// identifiers are tolerated the same way.
func (s *Service) IngestResult(identifier string, payload json.RawMessage) {
	resolved := false
	s.store.Mutate(func(st *model.State) {
		d := st.ResolveDevice(identifier)
		if d == nil {
			return
		}
		d.LastSeen = now()
		st.LastResults[d.ID] = payload
		resolved = true
	})
	if !resolved {
		s.logger.WithField("identifier", identifier).Debug("result from unresolved identifier")
		return
	}
	s.store.Save(false)
}

// MapAgent overrides the agentId→deviceId mapping. This is an operator
// escape hatch; normal mappings are created once at enrollment and never
// reassigned.
func (s *Service) MapAgent(agentID, deviceID string) error {
	var err error
	s.store.Mutate(func(st *model.State) {
		if st.DeviceByID(deviceID) == nil {
			err = ErrDeviceNotFound
			return
		}
		st.AgentMap[agentID] = deviceID
	})
	if err != nil {
		return err
	}
	s.store.Save(true)

	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
