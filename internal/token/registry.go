// Package token holds the statically configured set of ERC-20 contracts
// this pipeline monitors, with atomically-swappable lookup.
package token

import (
	"sync/atomic"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/hexutil"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// Registry provides concurrent-safe lookup of monitored tokens by address.
type Registry struct {
	tokens atomic.Value // map[string]models.Token, keyed by normalized address
}

// NewRegistry builds a Registry from an initial token list.
func NewRegistry(tokens []models.Token) *Registry {
	r := &Registry{}
	r.Replace(tokens)
	return r
}

// Replace atomically swaps the entire token set, e.g. on config reload.
func (r *Registry) Replace(tokens []models.Token) {
	m := make(map[string]models.Token, len(tokens))
	for _, t := range tokens {
		m[hexutil.NormalizeAddress(t.Address)] = t
	}
	r.tokens.Store(m)
}

// Lookup returns the token registered at address, and whether it is
// both present and active.
func (r *Registry) Lookup(address string) (models.Token, bool) {
	m, _ := r.tokens.Load().(map[string]models.Token)
	if m == nil {
		return models.Token{}, false
	}
	t, ok := m[hexutil.NormalizeAddress(address)]
	if !ok || !t.IsActive {
		return models.Token{}, false
	}
	return t, true
}

// Addresses returns the normalized addresses of every active token, for
// use as the eth_getLogs address filter.
func (r *Registry) Addresses() []string {
	m, _ := r.tokens.Load().(map[string]models.Token)
	out := make([]string, 0, len(m))
	for addr, t := range m {
		if t.IsActive {
			out = append(out, addr)
		}
	}
	return out
}

// All returns a snapshot of every registered token.
func (r *Registry) All() []models.Token {
	m, _ := r.tokens.Load().(map[string]models.Token)
	out := make([]models.Token, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}
