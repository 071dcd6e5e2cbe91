package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var memLog = logging.Logger("store/memory")

// MemoryStore keeps the index in maps. It mirrors the constraints of the
// database-backed stores.
type MemoryStore struct {
	certificates map[string]Certificate
	institutions map[string]Institution
	mu           sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		certificates: make(map[string]Certificate),
		institutions: make(map[string]Institution),
	}
}

func (m *MemoryStore) ListCertificates(ctx context.Context) ([]Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Certificate, 0, len(m.certificates))
	for _, c := range m.certificates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InsertedAt.Equal(out[j].InsertedAt) {
			return out[i].RegistrationNo < out[j].RegistrationNo
		}
		return out[i].InsertedAt.Before(out[j].InsertedAt)
	})
	return out, nil
}

func (m *MemoryStore) AddCertificate(ctx context.Context, c Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.certificates[c.Fingerprint]; ok {
		return fmt.Errorf("certificate %s: %w", c.Fingerprint, ErrDuplicate)
	}
	for _, existing := range m.certificates {
		if existing.RegistrationNo == c.RegistrationNo {
			return fmt.Errorf("registration number %s: %w", c.RegistrationNo, ErrDuplicate)
		}
		if existing.Email == c.Email {
			return fmt.Errorf("email %s: %w", c.Email, ErrDuplicate)
		}
	}
	if c.InsertedAt.IsZero() {
		c.InsertedAt = time.Now().UTC()
	}
	m.certificates[c.Fingerprint] = c

	memLog.Debugw("Indexed certificate",
		"fingerprint", c.Fingerprint,
		"registration_no", c.RegistrationNo,
		"count", len(m.certificates))
	return nil
}

func (m *MemoryStore) RemoveCertificate(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.certificates[fingerprint]; !ok {
		return ErrNotFound
	}
	delete(m.certificates, fingerprint)
	return nil
}

func (m *MemoryStore) FindCertificate(ctx context.Context, key Key) (*Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if key.Kind == KeyFingerprint {
		c, ok := m.certificates[key.Value]
		if !ok {
			return nil, ErrNotFound
		}
		return &c, nil
	}
	for _, c := range m.certificates {
		if (key.Kind == KeyRegistrationNo && c.RegistrationNo == key.Value) ||
			(key.Kind == KeyEmail && c.Email == key.Value) {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListInstitutions(ctx context.Context) ([]Institution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Institution, 0, len(m.institutions))
	for _, i := range m.institutions {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) AddInstitution(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.institutions[name]; ok {
		return fmt.Errorf("institution %s: %w", name, ErrDuplicate)
	}
	m.institutions[name] = Institution{Name: name, CreatedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) RenameInstitution(ctx context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.institutions[from]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.institutions[to]; ok && from != to {
		return fmt.Errorf("institution %s: %w", to, ErrDuplicate)
	}
	delete(m.institutions, from)
	inst.Name = to
	m.institutions[to] = inst
	return nil
}

func (m *MemoryStore) RemoveInstitution(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.institutions[name]; !ok {
		return ErrNotFound
	}
	delete(m.institutions, name)
	return nil
}
