package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"portald/internal/domain"
)

var portalsBucket = []byte("portals")

// ErrStoreClosed reports an operation on a closed store.
var ErrStoreClosed = errors.New("portal store is closed")

// Store persists the last-known-good portal entries so a transient refresh
// failure does not vanish a previously-available tool mid-session.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open portal store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(portalsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure portal bucket: %w", err)
	}
	return &Store{db: db, logger: logger.Named("store")}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutPortal records a freshly fetched entry. The entry is stored as live;
// readers mark it as cache-sourced when serving it as a fallback.
func (s *Store) PutPortal(entry domain.PortalEntry) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if entry.Portal.ID == "" {
		return fmt.Errorf("portal id is required")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode portal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(portalsBucket).Put([]byte(entry.Portal.ID), data)
	})
}

// GetPortal returns the last-known-good entry for a portal id.
func (s *Store) GetPortal(id string) (domain.PortalEntry, bool) {
	if s == nil || s.db == nil || id == "" {
		return domain.PortalEntry{}, false
	}
	var entry domain.PortalEntry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(portalsBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		s.logger.Warn("portal cache read failed", zap.String("portal", id), zap.Error(err))
		return domain.PortalEntry{}, false
	}
	return entry, found
}
