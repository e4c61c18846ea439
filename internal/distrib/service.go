// Package distrib resolves a polling agent to its device and serves the
// effective compiled policy set, with a revision-derived validator for cheap
// conditional fetches.
package distrib

import (
	"fmt"

	"go_lpp/internal/compiler"
	"go_lpp/internal/model"
	"go_lpp/internal/store"

	"github.com/sirupsen/logrus"
)

// CompiledPolicy is one entry of the effective policy payload. The raw
// action fields travel alongside the compiled manifest so agents can use
// either form.
type CompiledPolicy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Manifest    string         `json:"manifest"`
	PackageName string         `json:"packageName,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Bash        string         `json:"bash,omitempty"`
}

// Result is the outcome of an effective-policy fetch.
type Result struct {
	Policies    []CompiledPolicy
	Revision    int
	Validator   string
	NotModified bool
}

// Service is the distribution endpoint.
type Service struct {
	store  *store.Store
	logger *logrus.Entry
}

// NewService creates a new distribution service.
func NewService(st *store.Store, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: st, logger: logger}
}

// Validator derives the cache validator for a revision. It is a pure
// function of the revision counter, never stored, so the served tag cannot
// drift from the stored revision.
func Validator(rev int) string {
	return fmt.Sprintf(`W/"rev-%d"`, rev)
}

// EffectivePolicy resolves the identifier to a device, computes the
// effective revision and validator, and either short-circuits with
// NotModified (caller echoed the current validator) or compiles each
// assigned policy in stored order.
//
// An unresolvable identifier or missing device yields an empty result at
// revision 0 rather than an error: unresolved identity during an enrollment
// race is a normal transient state.
func (s *Service) EffectivePolicy(identifier, callerValidator string) *Result {
	res := &Result{Policies: []CompiledPolicy{}}

	s.store.View(func(st *model.State) {
		d := st.ResolveDevice(identifier)
		if d == nil {
			res.Validator = Validator(0)
			s.logger.WithField("identifier", identifier).Debug("effective-policy for unresolved identifier")
			return
		}

		rev := d.PolicyRev
		if rev == 0 && d.CustomerID != "" {
			if c := st.CustomerByID(d.CustomerID); c != nil {
				rev = c.PolicyRev
			}
		}
		res.Revision = rev
		res.Validator = Validator(rev)

		if callerValidator != "" && callerValidator == res.Validator {
			res.NotModified = true
			return
		}

		for _, pid := range d.PolicyIDs {
			p := st.PolicyByID(pid)
			if p == nil {
				// Stale reference; tolerate rather than fail the request.
				continue
			}
			res.Policies = append(res.Policies, CompiledPolicy{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Manifest:    compiler.Compile(p),
				PackageName: p.PackageName,
				Args:        p.Args,
				Bash:        p.Bash,
			})
		}
	})

	return res
}
