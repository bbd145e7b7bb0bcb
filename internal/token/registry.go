package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/model"
)

// MetaFetcher loads token metadata from an external source, typically the
// chain client.
type MetaFetcher interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Registry caches token metadata by address. Decimal counts drive every
// normalization, so a token unknown to the registry cannot be settled.
type Registry struct {
	mu      sync.RWMutex
	data    map[common.Address]model.TokenMeta
	fetcher MetaFetcher
}

// NewRegistry builds a registry; fetcher may be nil for a static registry.
func NewRegistry(fetcher MetaFetcher) *Registry {
	return &Registry{
		data:    make(map[common.Address]model.TokenMeta),
		fetcher: fetcher,
	}
}

// Set registers or replaces a token's metadata.
func (r *Registry) Set(meta model.TokenMeta) {
	r.mu.Lock()
	r.data[common.HexToAddress(meta.Address)] = meta
	r.mu.Unlock()
}

// Get returns cached metadata for the token.
func (r *Registry) Get(token common.Address) (model.TokenMeta, bool) {
	r.mu.RLock()
	meta, ok := r.data[token]
	r.mu.RUnlock()
	return meta, ok
}

// Decimals returns the token's decimal count, consulting the fetcher and
// caching the result when the token is not yet known.
func (r *Registry) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if meta, ok := r.Get(token); ok {
		return meta.Decimals, nil
	}
	if r.fetcher == nil {
		return 0, fmt.Errorf("unknown token %s", token.Hex())
	}

	decimals, err := r.fetcher.Decimals(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("fetch decimals %s: %w", token.Hex(), err)
	}
	r.Set(model.TokenMeta{Address: token.Hex(), Decimals: decimals})
	return decimals, nil
}
