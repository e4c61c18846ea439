package enroll

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"go_lpp/internal/model"
	"go_lpp/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db.json"), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return NewService(st, nil, "0.2.0"), st
}

func seedCustomer(t *testing.T, st *store.Store, id string, policyIDs []string, rev int) {
	t.Helper()
	st.Mutate(func(s *model.State) {
		s.Customers = append(s.Customers, model.Customer{ID: id, Name: id, PolicyIDs: policyIDs, PolicyRev: rev})
	})
}

func TestIssueTokenBindsCustomer(t *testing.T) {
	svc, st := newTestService(t)
	seedCustomer(t, st, "cus_a", []string{}, 0)

	token, err := svc.IssueToken("cus_a", "ubuntu")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("Expected 64-char hex token, got %d chars", len(token))
	}

	st.View(func(s *model.State) {
		rec, ok := s.Tokens[token]
		if !ok {
			t.Fatal("Token not stored")
		}
		if rec.CustomerID != "cus_a" || rec.OS != "ubuntu" || rec.Used {
			t.Errorf("Unexpected token record: %+v", rec)
		}
		if rec.CreatedAt == 0 {
			t.Error("Expected createdAt set")
		}
	})
}

func TestIssueTokenUnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.IssueToken("cus_missing", ""); err != ErrCustomerNotFound {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
}

func TestIssueTokenUnique(t *testing.T) {
	svc, st := newTestService(t)
	seedCustomer(t, st, "cus_a", []string{}, 0)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		token, err := svc.IssueToken("cus_a", "")
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("Duplicate token issued")
		}
		seen[token] = true
	}
}

func TestEnrollInheritsSnapshot(t *testing.T) {
	svc, st := newTestService(t)
	seedCustomer(t, st, "cus_a", []string{"pol-ssh-baseline", "pol-ufw-enable"}, 3)

	token, err := svc.IssueToken("cus_a", "")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	res := svc.Enroll(token, "host1", "ubuntu-22.04")
	if res.AgentID != 1 {
		t.Errorf("Expected agent id 1, got %d", res.AgentID)
	}
	if res.DeviceID != "dev_1" {
		t.Errorf("Expected device id dev_1, got %s", res.DeviceID)
	}

	st.View(func(s *model.State) {
		d := s.DeviceByID(res.DeviceID)
		if d == nil {
			t.Fatal("Device not created")
		}
		if d.CustomerID != "cus_a" {
			t.Errorf("Expected device bound to cus_a, got %q", d.CustomerID)
		}
		if !reflect.DeepEqual(d.PolicyIDs, []string{"pol-ssh-baseline", "pol-ufw-enable"}) {
			t.Errorf("Snapshot not inherited: %v", d.PolicyIDs)
		}
		if d.PolicyRev != 3 {
			t.Errorf("Expected rev 3 snapshot, got %d", d.PolicyRev)
		}
		if d.Hostname != "host1" || d.Distro != "ubuntu-22.04" || d.AgentVersion != "0.2.0" {
			t.Errorf("Unexpected device fields: %+v", d)
		}
		if s.AgentMap[strconv.Itoa(res.AgentID)] != res.DeviceID {
			t.Error("Agent identity mapping not recorded")
		}
		if !s.Tokens[token].Used {
			t.Error("Token not consumed")
		}
	})

	// Snapshot, not a live reference to the customer's slice.
	st.Mutate(func(s *model.State) {
		s.CustomerByID("cus_a").PolicyIDs[0] = "mutated"
	})
	st.View(func(s *model.State) {
		if s.DeviceByID(res.DeviceID).PolicyIDs[0] == "mutated" {
			t.Error("Device shares the customer's slice")
		}
	})
}

func TestEnrollTokenSingleUse(t *testing.T) {
	svc, st := newTestService(t)
	seedCustomer(t, st, "cus_a", []string{"pol-ssh-baseline"}, 1)

	token, err := svc.IssueToken("cus_a", "")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	first := svc.Enroll(token, "host1", "ubuntu")
	second := svc.Enroll(token, "host2", "ubuntu")

	if second.DeviceID == first.DeviceID || second.AgentID == first.AgentID {
		t.Errorf("Expected fresh ids on second enroll: %+v vs %+v", first, second)
	}

	st.View(func(s *model.State) {
		d := s.DeviceByID(second.DeviceID)
		if d.CustomerID != "" {
			t.Errorf("Reused token must not bind tenant, got %q", d.CustomerID)
		}
		if len(d.PolicyIDs) != 0 || d.PolicyRev != 0 {
			t.Errorf("Reused token must not grant policies: %+v", d)
		}
	})
}

func TestEnrollWithoutTokenIsLenient(t *testing.T) {
	svc, st := newTestService(t)

	res := svc.Enroll("", "", "")

	st.View(func(s *model.State) {
		d := s.DeviceByID(res.DeviceID)
		if d == nil {
			t.Fatal("Expected device created despite missing token")
		}
		if d.CustomerID != "" || len(d.PolicyIDs) != 0 {
			t.Errorf("Expected unassigned policy-less device: %+v", d)
		}
		if d.Hostname != "unknown" || d.Distro != "linux-unknown" {
			t.Errorf("Expected placeholder fields: %+v", d)
		}
	})
}

func TestEnrollSequencesAdvance(t *testing.T) {
	svc, _ := newTestService(t)

	a := svc.Enroll("", "h1", "d1")
	b := svc.Enroll("", "h2", "d2")

	if a.AgentID != 1 || b.AgentID != 2 {
		t.Errorf("Expected agent ids 1,2 got %d,%d", a.AgentID, b.AgentID)
	}
	if a.DeviceID != "dev_1" || b.DeviceID != "dev_2" {
		t.Errorf("Expected device ids dev_1,dev_2 got %s,%s", a.DeviceID, b.DeviceID)
	}
}

func TestCreateDeviceInheritsSnapshot(t *testing.T) {
	svc, st := newTestService(t)
	seedCustomer(t, st, "cus_a", []string{"pol-ufw-enable"}, 2)

	d := svc.CreateDevice("adm-host", "debian-12", "cus_a")
	if d.CustomerID != "cus_a" || d.PolicyRev != 2 {
		t.Errorf("Snapshot not inherited: %+v", d)
	}

	// No agent identity is allocated for direct creation.
	st.View(func(s *model.State) {
		if len(s.AgentMap) != 0 {
			t.Errorf("Unexpected agent mapping: %v", s.AgentMap)
		}
	})
}

func TestCreateDeviceUnknownCustomerUnassigned(t *testing.T) {
	svc, _ := newTestService(t)
	d := svc.CreateDevice("h", "d", "cus_ghost")
	if d.CustomerID != "" {
		t.Errorf("Expected unassigned device, got %q", d.CustomerID)
	}
}

func TestHeartbeatUpdatesLastSeen(t *testing.T) {
	svc, st := newTestService(t)
	res := svc.Enroll("", "h", "d")

	st.Mutate(func(s *model.State) {
		s.DeviceByID(res.DeviceID).LastSeen = "2001-01-01T00:00:00Z"
	})

	// Resolve via agent id, not device id.
	svc.Heartbeat(strconv.Itoa(res.AgentID))

	st.View(func(s *model.State) {
		if s.DeviceByID(res.DeviceID).LastSeen == "2001-01-01T00:00:00Z" {
			t.Error("Expected lastSeen updated")
		}
	})
}

func TestHeartbeatUnknownIdentifierNoOp(t *testing.T) {
	svc, st := newTestService(t)
	res := svc.Enroll("", "h", "d")

	var before model.State
	st.View(func(s *model.State) { before = *s })

	svc.Heartbeat("999")

	st.View(func(s *model.State) {
		if len(s.Devices) != len(before.Devices) {
			t.Error("Heartbeat on unknown identifier mutated devices")
		}
		if s.DeviceByID(res.DeviceID).LastSeen != before.Devices[0].LastSeen {
			t.Error("Heartbeat on unknown identifier touched another device")
		}
	})
}

func TestIngestResultStoresBlob(t *testing.T) {
	svc, st := newTestService(t)
	res := svc.Enroll("", "h", "d")

	payload := json.RawMessage(`{"agent_id":"1","status":"applied"}`)
	svc.IngestResult(strconv.Itoa(res.AgentID), payload)

	st.View(func(s *model.State) {
		if string(s.LastResults[res.DeviceID]) != string(payload) {
			t.Errorf("Result not stored: %s", s.LastResults[res.DeviceID])
		}
	})
}

func TestMapAgentRequiresDevice(t *testing.T) {
	svc, st := newTestService(t)
	res := svc.Enroll("", "h", "d")

	if err := svc.MapAgent("77", res.DeviceID); err != nil {
		t.Fatalf("MapAgent failed: %v", err)
	}
	st.View(func(s *model.State) {
		if s.AgentMap["77"] != res.DeviceID {
			t.Error("Mapping not recorded")
		}
	})

	if err := svc.MapAgent("78", "dev_ghost"); err != ErrDeviceNotFound {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}
