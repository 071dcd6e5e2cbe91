package issuer

import (
	"context"
	"fmt"
	"strings"

	"github.com/storacha/certifier/internal/store"
)

// NormalizeInstitution is the form institution names are registered and
// fingerprinted in.
func NormalizeInstitution(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (s *Service) Institutions(ctx context.Context) ([]store.Institution, error) {
	return s.store.ListInstitutions(ctx)
}

func (s *Service) AddInstitution(ctx context.Context, name string) (string, error) {
	name = NormalizeInstitution(name)
	if name == "" {
		return "", fmt.Errorf("%w: institution name is required", ErrInvalidRequest)
	}
	if err := s.store.AddInstitution(ctx, name); err != nil {
		return "", err
	}
	log.Infow("Registered institution", "name", name)
	return name, nil
}

// RenameInstitution renames a registered institution. Certificates already
// issued keep the name they were fingerprinted with.
func (s *Service) RenameInstitution(ctx context.Context, from, to string) (string, error) {
	from, to = NormalizeInstitution(from), NormalizeInstitution(to)
	if from == "" || to == "" {
		return "", fmt.Errorf("%w: institution name is required", ErrInvalidRequest)
	}
	if err := s.store.RenameInstitution(ctx, from, to); err != nil {
		return "", err
	}
	log.Infow("Renamed institution", "from", from, "to", to)
	return to, nil
}

func (s *Service) RemoveInstitution(ctx context.Context, name string) error {
	name = NormalizeInstitution(name)
	if err := s.store.RemoveInstitution(ctx, name); err != nil {
		return err
	}
	log.Infow("Removed institution", "name", name)
	return nil
}
