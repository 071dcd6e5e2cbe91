package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	logging "github.com/ipfs/go-log/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var sqlLog = logging.Logger("store/sqlite")

// SQLite keeps the index in a sqlite database through gorm.
type SQLite struct {
	db *gorm.DB
}

// NewSQLiteStore opens the database at path, creating the schema as needed.
// An empty path opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLite, error) {
	dsn := "file::memory:"
	if path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if path == "" {
		// every connection to file::memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Certificate{}, &Institution{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}
	sqlLog.Infow("SQLite store initialized", "path", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) ListCertificates(ctx context.Context) ([]Certificate, error) {
	var out []Certificate
	if err := s.db.WithContext(ctx).Order("inserted_at, registration_no").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return out, nil
}

func (s *SQLite) AddCertificate(ctx context.Context, c Certificate) error {
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("certificate %s: %w", c.Fingerprint, ErrDuplicate)
		}
		return fmt.Errorf("failed to add certificate: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveCertificate(ctx context.Context, fingerprint string) error {
	res := s.db.WithContext(ctx).Delete(&Certificate{}, "fingerprint = ?", fingerprint)
	if res.Error != nil {
		return fmt.Errorf("failed to remove certificate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) FindCertificate(ctx context.Context, key Key) (*Certificate, error) {
	var column string
	switch key.Kind {
	case KeyFingerprint:
		column = "fingerprint"
	case KeyRegistrationNo:
		column = "registration_no"
	case KeyEmail:
		column = "email"
	default:
		return nil, fmt.Errorf("unknown key kind %q", key.Kind)
	}

	var c Certificate
	err := s.db.WithContext(ctx).Where(column+" = ?", key.Value).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find certificate: %w", err)
	}
	return &c, nil
}

func (s *SQLite) ListInstitutions(ctx context.Context) ([]Institution, error) {
	var out []Institution
	if err := s.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	return out, nil
}

func (s *SQLite) AddInstitution(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Create(&Institution{Name: name}).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("institution %s: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("failed to add institution: %w", err)
	}
	return nil
}

func (s *SQLite) RenameInstitution(ctx context.Context, from, to string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst Institution
		err := tx.Where("name = ?", from).Take(&inst).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find institution: %w", err)
		}
		if from == to {
			return nil
		}
		if err := tx.Delete(&Institution{}, "name = ?", from).Error; err != nil {
			return fmt.Errorf("failed to rename institution: %w", err)
		}
		inst.Name = to
		if err := tx.Create(&inst).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("institution %s: %w", to, ErrDuplicate)
			}
			return fmt.Errorf("failed to rename institution: %w", err)
		}
		return nil
	})
}

func (s *SQLite) RemoveInstitution(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Delete(&Institution{}, "name = ?", name)
	if res.Error != nil {
		return fmt.Errorf("failed to remove institution: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
