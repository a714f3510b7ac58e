package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

var (
	bucketTasks    = []byte("tasks")
	bucketSettings = []byte("settings")
	bucketTokens   = []byte("tokens")
	keySettings    = []byte("current")
)

// Store persists crawl tasks, the settings document and validated tokens.
type Store interface {
	SaveTask(rec *TaskRecord) error
	LoadTask(id string) (*TaskRecord, error)
	ListTasks() ([]*TaskRecord, error)

	SaveSettings(data []byte) error
	// LoadSettings returns nil data when nothing has been saved.
	LoadSettings() ([]byte, error)

	AddToken(token string) error
	HasToken(token string) (bool, error)

	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTasks, bucketSettings, bucketTokens} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// SaveTask inserts or replaces a task record.
func (s *BoltStore) SaveTask(rec *TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Put([]byte(rec.ID), data)
	})
}

// LoadTask returns the task with id or ErrNotFound.
func (s *BoltStore) LoadTask(id string) (*TaskRecord, error) {
	var rec *TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec = &TaskRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListTasks returns all tasks, oldest first.
func (s *BoltStore) ListTasks() ([]*TaskRecord, error) {
	var out []*TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			rec := &TaskRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTasks(out)
	return out, nil
}

// SaveSettings stores the serialized settings document.
func (s *BoltStore) SaveSettings(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keySettings, data)
	})
}

// LoadSettings returns the stored settings document.
func (s *BoltStore) LoadSettings() ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketSettings).Get(keySettings); data != nil {
			out = append([]byte(nil), data...)
		}
		return nil
	})
	return out, err
}

// AddToken records a validated API token.
func (s *BoltStore) AddToken(token string) error {
	stamp, _ := time.Now().UTC().MarshalText()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(token), stamp)
	})
}

// HasToken reports whether token was recorded.
func (s *BoltStore) HasToken(token string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketTokens).Get([]byte(token)) != nil
		return nil
	})
	return found, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements Store in memory. It backs tests and runs without
// a data directory.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string][]byte
	settings []byte
	tokens   map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string][]byte),
		tokens: make(map[string]struct{}),
	}
}

// SaveTask stores a copy of rec.
func (s *MemoryStore) SaveTask(rec *TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	s.mu.Lock()
	s.tasks[rec.ID] = data
	s.mu.Unlock()
	return nil
}

// LoadTask returns the task with id or ErrNotFound.
func (s *MemoryStore) LoadTask(id string) (*TaskRecord, error) {
	s.mu.RLock()
	data, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec := &TaskRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListTasks returns all tasks, oldest first.
func (s *MemoryStore) ListTasks() ([]*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TaskRecord, 0, len(s.tasks))
	for _, data := range s.tasks {
		rec := &TaskRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortTasks(out)
	return out, nil
}

// SaveSettings stores the serialized settings document.
func (s *MemoryStore) SaveSettings(data []byte) error {
	s.mu.Lock()
	s.settings = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// LoadSettings returns the stored settings document.
func (s *MemoryStore) LoadSettings() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil, nil
	}
	return append([]byte(nil), s.settings...), nil
}

// AddToken records a validated API token.
func (s *MemoryStore) AddToken(token string) error {
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return nil
}

// HasToken reports whether token was recorded.
func (s *MemoryStore) HasToken(token string) (bool, error) {
	s.mu.RLock()
	_, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

func sortTasks(tasks []*TaskRecord) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
