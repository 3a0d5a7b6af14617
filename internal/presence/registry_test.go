package presence

import (
	"testing"
	"time"
)

func TestRegistry_Reconcile(t *testing.T) {
	r := newRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created, skipped := r.reconcile([]Observation{
		{MAC: "CC:CC", IP: "10.0.0.3", Name: "TV", Online: true},
		{MAC: "", IP: "1.2.3.4", Online: true},
		{MAC: "AA:AA", Name: "Phone", Online: false},
		{MAC: "CC:CC", IP: "10.0.0.3", Name: "TV", Online: true},
	}, now)

	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if r.ConnectedCount() != 1 {
		t.Errorf("ConnectedCount() = %d, want 1", r.ConnectedCount())
	}
}

func TestRegistry_AllSortedByMAC(t *testing.T) {
	r := newRegistry()
	r.reconcile([]Observation{
		{MAC: "CC:CC", Online: true, IP: "10.0.0.3"},
		{MAC: "AA:AA", Online: true, IP: "10.0.0.1"},
		{MAC: "BB:BB", Online: false},
	}, time.Now())

	all := r.All()
	want := []string{"AA:AA", "BB:BB", "CC:CC"}
	if len(all) != len(want) {
		t.Fatalf("All() returned %d records, want %d", len(all), len(want))
	}
	for i, mac := range want {
		if all[i].MAC != mac {
			t.Errorf("All()[%d].MAC = %q, want %q", i, all[i].MAC, mac)
		}
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := newRegistry()
	r.reconcile([]Observation{{MAC: "AA:AA", Name: "Phone", IP: "10.0.0.1", Online: true}}, time.Now())

	got, ok := r.Get("AA:AA")
	if !ok {
		t.Fatal("Get() found nothing")
	}
	got.Name = "Changed"

	all := r.All()
	all[0].Connected = false

	again, _ := r.Get("AA:AA")
	if again.Name != "Phone" || !again.Connected {
		t.Errorf("registry mutated through copy: %+v", again)
	}
}

func TestRegistry_NeverEvicts(t *testing.T) {
	r := newRegistry()
	r.reconcile([]Observation{{MAC: "AA:AA", Online: true, IP: "10.0.0.1"}}, time.Now())
	r.reconcile([]Observation{{MAC: "BB:BB", Online: true, IP: "10.0.0.2"}}, time.Now())

	if _, ok := r.Get("AA:AA"); !ok {
		t.Error("AA:AA evicted after disappearing from snapshot")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := newRegistry()
	if _, ok := r.Get("AA:AA"); ok {
		t.Error("Get() on empty registry returned ok")
	}
}

func TestRegistry_MACCaseInsensitive(t *testing.T) {
	r := newRegistry()
	now := time.Now()

	created, _ := r.reconcile([]Observation{{MAC: "aa:bb:cc:dd:ee:01", Online: true}}, now)
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	// The same device reported in upper case is not a new record.
	created, _ = r.reconcile([]Observation{{MAC: "AA:BB:CC:DD:EE:01", Online: false}}, now)
	if created != 0 || r.Len() != 1 {
		t.Fatalf("created = %d, Len() = %d; want 0, 1", created, r.Len())
	}

	for _, mac := range []string{"aa:bb:cc:dd:ee:01", "AA:BB:CC:DD:EE:01", "Aa:bB:cc:DD:ee:01"} {
		rec, ok := r.Get(mac)
		if !ok {
			t.Errorf("Get(%q) not found", mac)
			continue
		}
		if rec.MAC != "AA:BB:CC:DD:EE:01" {
			t.Errorf("Get(%q).MAC = %q, want upper case", mac, rec.MAC)
		}
	}
}
