package credentials

import (
	"errors"
	"slices"
	"sync"
)

// ErrExhausted is returned by [Pool.Checkout] when no credential can take another lookup.
var ErrExhausted = errors.New("credential pool exhausted")

// Credential is one provider account and its monthly allowance.
//
// Used counts units the provider charged in this run. It only grows and never exceeds Limit.
type Credential struct {
	ID     string
	Secret string
	Limit  int
	Used   int
}

// Remaining returns the number of lookups left on the credential.
func (c Credential) Remaining() int {
	return max(c.Limit-c.Used, 0)
}

// Usage is a point-in-time view of one credential for diagnostics.
type Usage struct {
	ID       string `json:"id"`
	Limit    int    `json:"limit"`
	Used     int    `json:"used"`
	Reserved int    `json:"reserved"`
	Disabled bool   `json:"disabled"`
}

// Exhausted reports whether the credential can no longer be checked out.
func (u Usage) Exhausted() bool {
	return u.Disabled || u.Used >= u.Limit
}

type entry struct {
	cred     Credential
	reserved int
	disabled bool
}

// load is the number of units charged or promised to an in-flight call.
func (e *entry) load() int {
	return e.cred.Used + e.reserved
}

func (e *entry) free() int {
	return max(e.cred.Limit-e.load(), 0)
}

// Pool hands out credentials with quota accounting.
//
// Every method takes the same mutex so concurrent workers can never reserve more units than a credential's limit.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	index   map[string]int
}

// NewPool builds a pool from creds in configuration order. Duplicate IDs keep the first occurrence.
func NewPool(creds []Credential) *Pool {
	p := &Pool{
		entries: make([]*entry, 0, len(creds)),
		index:   make(map[string]int, len(creds)),
	}
	for _, c := range creds {
		if _, ok := p.index[c.ID]; ok {
			continue
		}
		c.Used = min(max(c.Used, 0), c.Limit)
		p.index[c.ID] = len(p.entries)
		p.entries = append(p.entries, &entry{cred: c})
	}
	return p
}

// Checkout reserves one unit on the least-used credential that is not disabled, not exhausted and not excluded.
// Ties go to the credential configured first.
//
// Callers settle the reservation with [Pool.Commit] when the provider charged the call
// or hand it back with [Pool.ReleaseWithoutUse].
func (p *Pool) Checkout(exclude ...string) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *entry
	for _, e := range p.entries {
		if e.disabled || e.free() == 0 || slices.Contains(exclude, e.cred.ID) {
			continue
		}
		if best == nil || e.load() < best.load() {
			best = e
		}
	}
	if best == nil {
		return Credential{}, ErrExhausted
	}

	best.reserved++
	return best.cred, nil
}

// Commit finalizes a reserved unit as charged by the provider.
func (p *Pool) Commit(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.lookup(id); e != nil && e.reserved > 0 {
		e.reserved--
		e.cred.Used++
	}
}

// ReleaseWithoutUse returns a reserved unit when the call failed before the provider charged it.
func (p *Pool) ReleaseWithoutUse(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.lookup(id); e != nil && e.reserved > 0 {
		e.reserved--
	}
}

// Disable removes the credential from rotation for the rest of the run.
func (p *Pool) Disable(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.lookup(id); e != nil {
		e.disabled = true
	}
}

// Len returns the number of configured credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Available returns the number of units that can still be checked out.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, e := range p.entries {
		if !e.disabled {
			total += e.free()
		}
	}
	return total
}

// Reserved returns the number of units checked out but neither committed nor released.
// Reservations on disabled credentials are included since they can still be released.
func (p *Pool) Reserved() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, e := range p.entries {
		total += e.reserved
	}
	return total
}

// Headroom is a consistent view of the pool taken after a failed [Pool.Checkout].
type Headroom struct {
	Untried   int // units free on enabled credentials outside the exclusion list
	Reserved  int // units reserved on any credential
	Available int // units free on any enabled credential
}

// Headroom reads every counter under one lock, so a checkout that failed with exclude can be told apart from
// one that raced with reservations being released.
func (p *Pool) Headroom(exclude ...string) Headroom {
	p.mu.Lock()
	defer p.mu.Unlock()

	var h Headroom
	for _, e := range p.entries {
		h.Reserved += e.reserved
		if e.disabled {
			continue
		}
		h.Available += e.free()
		if !slices.Contains(exclude, e.cred.ID) {
			h.Untried += e.free()
		}
	}
	return h
}

// ExhaustedCount returns how many credentials are disabled or at their limit.
func (p *Pool) ExhaustedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		if e.disabled || e.cred.Used >= e.cred.Limit {
			n++
		}
	}
	return n
}

// Snapshot returns usage for every credential in configuration order.
func (p *Pool) Snapshot() []Usage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Usage, len(p.entries))
	for i, e := range p.entries {
		out[i] = Usage{
			ID:       e.cred.ID,
			Limit:    e.cred.Limit,
			Used:     e.cred.Used,
			Reserved: e.reserved,
			Disabled: e.disabled,
		}
	}
	return out
}

func (p *Pool) lookup(id string) *entry {
	i, ok := p.index[id]
	if !ok {
		return nil
	}
	return p.entries[i]
}
