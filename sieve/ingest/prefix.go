package ingest

import (
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// PrefixStats tracks how many addresses the policy accepted and rejected.
type PrefixStats struct {
	Accepted map[string]int64 // matched prefix -> count
	Rejected int64
}

// PrefixPolicy restricts ingestion to addresses that start with one of a
// configured set of prefixes (e.g. "1" for P2PKH mainnet). Matching walks a
// radix tree, so the cost is bounded by the prefix length rather than the
// number of prefixes. An empty policy accepts every address.
type PrefixPolicy struct {
	tree *radix.Tree
	mu   sync.Mutex
	st   PrefixStats
}

// NewPrefixPolicy builds a policy from prefixes. Blank entries are ignored.
func NewPrefixPolicy(prefixes []string) *PrefixPolicy {
	tree := radix.New()
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tree.Insert(p, struct{}{})
	}
	return &PrefixPolicy{
		tree: tree,
		st:   PrefixStats{Accepted: make(map[string]int64)},
	}
}

// Allows reports whether address passes the policy.
func (p *PrefixPolicy) Allows(address string) bool {
	if p == nil || p.tree.Len() == 0 {
		return true
	}

	prefix, _, ok := p.tree.LongestPrefix(address)

	p.mu.Lock()
	if ok {
		p.st.Accepted[prefix]++
	} else {
		p.st.Rejected++
	}
	p.mu.Unlock()

	return ok
}

// Prefixes returns the configured prefixes in lexical order.
func (p *PrefixPolicy) Prefixes() []string {
	var out []string
	p.tree.Walk(func(key string, _ interface{}) bool {
		out = append(out, key)
		return false // Continue walking
	})
	return out
}

// Stats returns a copy of the match counters.
func (p *PrefixPolicy) Stats() PrefixStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	accepted := make(map[string]int64, len(p.st.Accepted))
	for k, v := range p.st.Accepted {
		accepted[k] = v
	}
	return PrefixStats{Accepted: accepted, Rejected: p.st.Rejected}
}
