package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/red-ai/redterm/internal/store"
)

// recordKey is the storage key for the device identifier.
const recordKey = "device_id"

// Provider owns the per-device identifier: a random opaque token generated on
// first use and persisted for the lifetime of the storage.
type Provider struct {
	records *store.RecordStore

	mu     sync.Mutex
	cached string
}

// NewProvider constructs a Provider.
func NewProvider(records *store.RecordStore) *Provider {
	return &Provider{records: records}
}

// GetOrCreate returns the stored device identifier, generating and persisting
// a fresh one on first call.
func (p *Provider) GetOrCreate(ctx context.Context) (string, error) {
	if p == nil || p.records == nil {
		return "", fmt.Errorf("device: provider not initialized")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	var id string
	found, errGet := p.records.Get(ctx, recordKey, &id)
	if errGet != nil {
		return "", errGet
	}
	if found && id != "" {
		p.cached = id
		return id, nil
	}

	id = uuid.NewString()
	if errSet := p.records.Set(ctx, recordKey, id); errSet != nil {
		return "", errSet
	}
	p.cached = id
	return id, nil
}
