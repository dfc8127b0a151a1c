// Package store provides storage backends for CareConcierge.
//
// It includes an in-memory store and SQL stores (SQLite, PostgreSQL) for episode snapshots,
// tasks, and call scripts with their consent records.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface. Writes are at-least-once and may fail; callers decide
// whether to surface the failure and never retry automatically.
type Store interface {
	SaveSnapshot(sessionID string, snap models.EpisodeSnapshot) error
	// GetSnapshot returns nil, nil when no snapshot exists.
	GetSnapshot(sessionID string) (*models.EpisodeSnapshot, error)
	DeleteSnapshot(sessionID string) error

	SaveTask(sessionID string, task models.Task) error
	GetTask(sessionID, id string) (*models.Task, error)
	// ListTasks returns tasks ordered by creation time.
	ListTasks(sessionID string) ([]models.Task, error)
	DeleteTask(sessionID, id string) error
	DeleteTasks(sessionID string) error

	// SaveCallScript stores the script and its consent record together, or neither.
	SaveCallScript(script models.CallScript, consent models.ConsentRecord) error
	GetCallScript(id string) (*models.CallScript, error)
	ListCallScripts(ownerID string) ([]models.CallScript, error)
	GetConsent(scriptID string) (*models.ConsentRecord, error)

	Close() error
}

// Opts holds configuration options for stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DSN types
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite3"
)

// DetectDSNType returns DSNTypePostgres for postgres URLs and keyword DSNs, otherwise
// DSNTypeSQLite.
func DetectDSNType(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") ||
		strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// InMemoryStore keeps everything in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]models.EpisodeSnapshot
	tasks     map[string]map[string]models.Task
	scripts   map[string]models.CallScript
	consents  map[string]models.ConsentRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]models.EpisodeSnapshot),
		tasks:     make(map[string]map[string]models.Task),
		scripts:   make(map[string]models.CallScript),
		consents:  make(map[string]models.ConsentRecord),
	}
}

func (s *InMemoryStore) SaveSnapshot(sessionID string, snap models.EpisodeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sessionID] = snap
	return nil
}

func (s *InMemoryStore) GetSnapshot(sessionID string) (*models.EpisodeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *InMemoryStore) DeleteSnapshot(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

func (s *InMemoryStore) SaveTask(sessionID string, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[sessionID] == nil {
		s.tasks[sessionID] = make(map[string]models.Task)
	}
	s.tasks[sessionID][task.ID] = task
	return nil
}

func (s *InMemoryStore) GetTask(sessionID, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[sessionID][id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) ListTasks(sessionID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.tasks[sessionID]))
	for _, t := range s.tasks[sessionID] {
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) DeleteTask(sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[sessionID][id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks[sessionID], id)
	return nil
}

func (s *InMemoryStore) DeleteTasks(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, sessionID)
	return nil
}

func (s *InMemoryStore) SaveCallScript(script models.CallScript, consent models.ConsentRecord) error {
	if script.ID == "" || consent.ScriptID != script.ID {
		return errors.New("consent record must reference the call script")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[script.ID] = script
	s.consents[script.ID] = consent
	return nil
}

func (s *InMemoryStore) GetCallScript(id string) (*models.CallScript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.scripts[id]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *InMemoryStore) ListCallScripts(ownerID string) ([]models.CallScript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CallScript
	for _, cs := range s.scripts {
		if cs.OwnerID == ownerID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovedAt.Before(out[j].ApprovedAt) })
	return out, nil
}

func (s *InMemoryStore) GetConsent(scriptID string) (*models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[scriptID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
