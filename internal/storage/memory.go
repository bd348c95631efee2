package storage

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps encoded snapshots in a go-cache instance. It stands in
// for a remote key-value store; a zero ttl keeps entries forever.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*printer.State, error) {
	raw, found := m.cache.Get(slotKey(key))
	if !found {
		return nil, nil
	}
	return decodeState(raw.([]byte))
}

func (m *MemoryStore) Save(_ context.Context, key string, state *printer.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	m.cache.SetDefault(slotKey(key), data)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.cache.Delete(slotKey(key))
	return nil
}

func (m *MemoryStore) HealthCheck(context.Context) bool { return true }

func (m *MemoryStore) Type() string { return BackendMemory }
