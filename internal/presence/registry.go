package presence

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry holds every device an engine has ever observed.
//
// Only the owning Engine mutates it, and only while scanning. Readers get
// value copies; the internal map is never exposed.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func newRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Get returns a copy of the record for mac, matched case-insensitively.
func (r *Registry) Get(mac string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[strings.ToUpper(mac)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// All returns copies of every record, sorted by MAC address.
func (r *Registry) All() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// ConnectedCount returns how many tracked devices are currently connected.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.Connected {
			n++
		}
	}
	return n
}

// reconcile applies a snapshot under the write lock.
// Entries without a MAC are skipped; MACs are stored upper case. It returns the number of records
// created and the number of entries skipped.
func (r *Registry) reconcile(snapshot []Observation, now time.Time) (created, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, obs := range snapshot {
		if obs.MAC == "" {
			skipped++
			continue
		}

		// Routers differ in MAC case; records are keyed upper case.
		obs.MAC = strings.ToUpper(obs.MAC)
		rec, ok := r.records[obs.MAC]
		if !ok {
			rec = NewRecord(obs.MAC)
			r.records[obs.MAC] = rec
			created++
		}
		rec.Apply(obs, now)
	}
	return created, skipped
}
