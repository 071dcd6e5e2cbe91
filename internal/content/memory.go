package content

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps pinned documents in memory, addressed by their CID.
type MemoryStore struct {
	mu         sync.RWMutex
	docs       map[string][]byte
	gatewayURL string
}

func NewMemoryStore(gatewayURL string) *MemoryStore {
	if gatewayURL == "" {
		gatewayURL = DefaultPinataGateway
	}
	return &MemoryStore{
		docs:       make(map[string][]byte),
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
	}
}

func (m *MemoryStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	c, err := ComputeAddress(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[c.String()] = append([]byte(nil), data...)
	log.Debugw("Pinned document in memory", "name", name, "cid", c.String())
	return c.String(), nil
}

func (m *MemoryStore) Unpin(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[address]; !ok {
		return fmt.Errorf("%w: %w: %s", ErrUnpinFailed, ErrNotFound, address)
	}
	delete(m.docs, address)
	return nil
}

func (m *MemoryStore) URL(address string) string {
	return m.gatewayURL + "/" + address
}

// Get returns a pinned document.
func (m *MemoryStore) Get(address string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[address]
	return data, ok
}

// Len returns the number of pinned documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
