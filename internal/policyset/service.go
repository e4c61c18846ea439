// Package policyset maintains per-tenant policy assignments and the revision
// counters that drive distribution caching. Every mutation here runs inside a
// single store.Mutate so the revision bump and the device fan-out are atomic
// to readers.
package policyset

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go_lpp/internal/model"
	"go_lpp/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCustomerNotFound is returned when the referenced customer is absent.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrUnknownPolicy is returned when a delta references a policy that does
	// not exist; state is left untouched.
	ErrUnknownPolicy = errors.New("unknown policy")
	// ErrInvalidAction is returned for a delta action other than add|remove.
	ErrInvalidAction = errors.New("invalid action")
	// ErrNameRequired is returned when a policy has no derivable name.
	ErrNameRequired = errors.New("name (or packageName/bash) required")
)

// Delta actions accepted by ApplyPolicyDelta.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Service is the revision tracker.
type Service struct {
	store  *store.Store
	logger *logrus.Entry
}

// NewService creates a new revision tracker service.
func NewService(st *store.Store, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, logger: logger}
}

// CreatePolicy creates a policy. The id is taken verbatim if supplied,
// otherwise derived from the name as a slug; either way it is deduplicated
// by suffixing -2, -3, ... The name falls back to the package or bash action
// when absent.
func (s *Service) CreatePolicy(id, name, description, packageName string, args any, bash string) (*model.Policy, error) {
	if name == "" {
		switch {
		case packageName != "":
			name = "Install " + packageName
		case bash != "":
			name = "Custom Bash"
		default:
			return nil, ErrNameRequired
		}
	}

	policy := model.Policy{
		Name:        name,
		Description: description,
		PackageName: packageName,
		Args:        ParseArgs(args),
		Bash:        bash,
		Version:     1,
	}

	s.store.Mutate(func(st *model.State) {
		base := strings.TrimSpace(id)
		if base == "" {
			base = "pol-" + Slugify(name)
		}
		policy.ID = dedupeID(st, base)
		st.Policies = append(st.Policies, policy)
	})
	s.store.Save(false)

	return &policy, nil
}

// DeletePolicy removes a policy and cascades the id out of every customer's
// and device's set in the same atomic pass. Affected customers get a revision
// bump with the usual device fan-out so stale cache validators expire.
// Deleting an unknown id is a no-op.
func (s *Service) DeletePolicy(id string) {
	s.store.Mutate(func(st *model.State) {
		kept := st.Policies[:0]
		for _, p := range st.Policies {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		st.Policies = kept

		for i := range st.Customers {
			c := &st.Customers[i]
			filtered, changed := without(c.PolicyIDs, id)
			if !changed {
				continue
			}
			c.PolicyIDs = filtered
			c.PolicyRev++
			fanOut(st, c)
		}

		// Devices with a direct (non-inherited) reference lose the id too.
		devices := 0
		for i := range st.Devices {
			d := &st.Devices[i]
			if filtered, changed := without(d.PolicyIDs, id); changed {
				d.PolicyIDs = filtered
				devices++
			}
		}
		if devices > 0 {
			s.logger.WithFields(logrus.Fields{"policy": id, "devices": devices}).
				Info("policy delete cascaded to devices")
		}
	})
	s.store.Save(false)
}

// ListPolicies returns a copy of all policies.
func (s *Service) ListPolicies() []model.Policy {
	var out []model.Policy
	s.store.View(func(st *model.State) {
		out = append([]model.Policy(nil), st.Policies...)
	})
	return out
}

// CreateCustomer creates a tenant with an empty policy set at revision 0.
func (s *Service) CreateCustomer(name string) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	customer := model.Customer{
		ID:        "cus_" + uuid.NewString()[:8],
		Name:      name,
		PolicyIDs: []string{},
	}
	s.store.Mutate(func(st *model.State) {
		st.Customers = append(st.Customers, customer)
	})
	s.store.Save(false)

	return &customer, nil
}

// GetCustomer returns a copy of the customer, or ErrCustomerNotFound.
func (s *Service) GetCustomer(id string) (*model.Customer, error) {
	var out *model.Customer
	s.store.View(func(st *model.State) {
		if c := st.CustomerByID(id); c != nil {
			cp := *c
			cp.PolicyIDs = append([]string(nil), c.PolicyIDs...)
			out = &cp
		}
	})
	if out == nil {
		return nil, ErrCustomerNotFound
	}
	return out, nil
}

// ListCustomers returns a copy of all customers.
func (s *Service) ListCustomers() []model.Customer {
	var out []model.Customer
	s.store.View(func(st *model.State) {
		out = append([]model.Customer(nil), st.Customers...)
	})
	return out
}

// DeleteCustomer removes a tenant and unassigns (not deletes) its devices:
// customerId is cleared and the policy snapshot emptied on each. Deleting an
// unknown id is a no-op.
func (s *Service) DeleteCustomer(id string) {
	removed := false
	s.store.Mutate(func(st *model.State) {
		kept := st.Customers[:0]
		for _, c := range st.Customers {
			if c.ID != id {
				kept = append(kept, c)
			} else {
				removed = true
			}
		}
		st.Customers = kept

		if !removed {
			return
		}
		for i := range st.Devices {
			d := &st.Devices[i]
			if d.CustomerID == id {
				d.CustomerID = ""
				d.PolicyIDs = []string{}
			}
		}
	})
	if removed {
		s.store.Save(false)
	}
}

// SetCustomerPolicies replaces the customer's policy set with the given ids
// filtered to existing policies, bumps the revision by exactly one, and
// synchronously overwrites the snapshot on every owned device.
func (s *Service) SetCustomerPolicies(customerID string, policyIDs []string) ([]string, int, error) {
	var (
		resultIDs []string
		resultRev int
		err       error
	)
	s.store.Mutate(func(st *model.State) {
		c := st.CustomerByID(customerID)
		if c == nil {
			err = ErrCustomerNotFound
			return
		}

		filtered := make([]string, 0, len(policyIDs))
		for _, pid := range policyIDs {
			if st.HasPolicy(pid) {
				filtered = append(filtered, pid)
			}
		}

		c.PolicyIDs = filtered
		c.PolicyRev++
		fanOut(st, c)

		resultIDs = append([]string(nil), filtered...)
		resultRev = c.PolicyRev
	})
	if err != nil {
		return nil, 0, err
	}
	s.store.Save(false)

	return resultIDs, resultRev, nil
}

// ApplyPolicyDelta applies a single-element add or remove to the customer's
// set with the same revision bump and fan-out as a full replace. An unknown
// policy id is rejected without mutating state.
func (s *Service) ApplyPolicyDelta(customerID, policyID, action string) ([]string, int, error) {
	if action != ActionAdd && action != ActionRemove {
		return nil, 0, ErrInvalidAction
	}

	var (
		resultIDs []string
		resultRev int
		err       error
	)
	s.store.Mutate(func(st *model.State) {
		c := st.CustomerByID(customerID)
		if c == nil {
			err = ErrCustomerNotFound
			return
		}
		if !st.HasPolicy(policyID) {
			err = ErrUnknownPolicy
			return
		}

		switch action {
		case ActionAdd:
			if !contains(c.PolicyIDs, policyID) {
				c.PolicyIDs = append(c.PolicyIDs, policyID)
			}
		case ActionRemove:
			c.PolicyIDs, _ = without(c.PolicyIDs, policyID)
		}
		c.PolicyRev++
		fanOut(st, c)

		resultIDs = append([]string(nil), c.PolicyIDs...)
		resultRev = c.PolicyRev
	})
	if err != nil {
		return nil, 0, err
	}
	s.store.Save(false)

	return resultIDs, resultRev, nil
}

// fanOut copies the customer's policy set and revision onto every device it
// owns. Must run inside the same Mutate as the revision bump.
func fanOut(st *model.State, c *model.Customer) {
	for i := range st.Devices {
		d := &st.Devices[i]
		if d.CustomerID == c.ID {
			d.PolicyIDs = append([]string(nil), c.PolicyIDs...)
			d.PolicyRev = c.PolicyRev
		}
	}
}

// ParseArgs coerces policy args into a structured map. A JSON object passes
// through; a string is parsed as JSON, or kept raw under "args" when it is
// not; anything else degrades to an empty parameter set.
func ParseArgs(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return map[string]any{}
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		return map[string]any{"args": trimmed}
	default:
		return map[string]any{}
	}
}

// Slugify derives a policy id fragment from a display name.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func dedupeID(st *model.State, base string) string {
	id := base
	for n := 2; st.HasPolicy(id); n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	return id
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	changed := false
	for _, x := range ids {
		if x == id {
			changed = true
			continue
		}
		out = append(out, x)
	}
	return out, changed
}
