package reports

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

// Sessions hands out one Store per client id over a shared backend.
type Sessions struct {
	mu      sync.Mutex
	backend repository.Backend
	prefix  string
	stores  map[string]*Store
	logger  *slog.Logger
}

// NewSessions scopes slots under prefix (DefaultSlot when empty).
func NewSessions(backend repository.Backend, prefix string, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultSlot
	}
	return &Sessions{
		backend: backend,
		prefix:  prefix,
		stores:  make(map[string]*Store),
		logger:  logger,
	}
}

// SlotName maps a client id to its slot; the empty id is the unscoped slot.
func (s *Sessions) SlotName(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return s.prefix
	}
	return s.prefix + ":" + clientID
}

// For returns the store of clientID, creating it on first use.
func (s *Sessions) For(clientID string) *Store {
	name := s.SlotName(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[name]
	if !ok {
		st = NewStore(s.backend.Slot(name), s.logger)
		s.stores[name] = st
	}
	return st
}
