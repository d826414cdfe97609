package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

// DefaultSlot is the slot name of the unscoped history.
const DefaultSlot = "pastReports"

// Store is the report history of one client, backed by one durable slot.
// The in-memory history only changes after the slot write succeeded.
type Store struct {
	mu      sync.Mutex
	slot    repository.Slot
	history entity.History
	loaded  bool
	logger  *slog.Logger
}

func NewStore(slot repository.Slot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slot: slot, logger: logger.With("slot", slot.Name())}
}

// Load reads the persisted history. It never fails: a missing, unreadable or
// malformed slot yields an empty history. An unreadable slot is retried on
// the next access instead of being treated as empty.
func (s *Store) Load(ctx context.Context) entity.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, true); err != nil {
		return entity.History{}
	}
	return s.history.Clone()
}

// legacyIDSpace namespaces the IDs derived for reports stored without one.
var legacyIDSpace = uuid.MustParse("5b0d2f6e-4c1a-4f57-9a43-2d8f0c6b7e11")

// read decodes the slot. Only a failed slot read is returned as an error;
// an empty or malformed slot decodes to an empty history.
func (s *Store) read(ctx context.Context) (entity.History, error) {
	data, err := s.slot.Get(ctx)
	if errors.Is(err, repository.ErrSlotEmpty) {
		s.logger.Debug("no stored history")
		return entity.History{}, nil
	}
	if err != nil {
		s.logger.Warn("history unreadable", "error", err)
		return nil, err
	}
	if err := validateHistory(data); err != nil {
		s.logger.Warn("history malformed; starting empty", "error", err)
		return entity.History{}, nil
	}
	var h entity.History
	if err := json.Unmarshal(data, &h); err != nil {
		s.logger.Warn("history malformed; starting empty", "error", err)
		return entity.History{}, nil
	}
	if h == nil {
		h = entity.History{}
	}
	// History only grows at the end or is wiped, so position is stable.
	for i := range h {
		if h[i].ID == uuid.Nil {
			h[i].ID = uuid.NewSHA1(legacyIDSpace, []byte(fmt.Sprintf("%s#%d", s.slot.Name(), i)))
		}
	}
	s.logger.Debug("history loaded", "reports", len(h))
	return h, nil
}

func (s *Store) ensureLoaded(ctx context.Context, force bool) error {
	if s.loaded && !force {
		return nil
	}
	h, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.history = h
	s.loaded = true
	return nil
}

// Append persists the history with r added at the end and returns it.
func (s *Store) Append(ctx context.Context, r entity.Report) (entity.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, false); err != nil {
		return entity.History{}, fmt.Errorf("load history: %w", err)
	}

	next := make(entity.History, 0, len(s.history)+1)
	next = append(next, s.history...)
	next = append(next, r.Clone())

	data, err := json.Marshal(next)
	if err != nil {
		return s.history.Clone(), fmt.Errorf("encode history: %w", err)
	}
	if err := s.slot.Set(ctx, data); err != nil {
		s.logger.Error("history write failed", "error", err)
		return s.history.Clone(), fmt.Errorf("persist history: %w", err)
	}
	s.history = next
	s.logger.Info("report appended", "report_id", r.ID, "file_name", r.FileName, "reports", len(next))
	return next.Clone(), nil
}

// Clear erases the slot and returns the empty history.
func (s *Store) Clear(ctx context.Context) (entity.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.Delete(ctx); err != nil {
		s.logger.Error("history clear failed", "error", err)
		if lerr := s.ensureLoaded(ctx, false); lerr != nil {
			return entity.History{}, fmt.Errorf("clear history: %w", err)
		}
		return s.history.Clone(), fmt.Errorf("clear history: %w", err)
	}
	s.history = entity.History{}
	s.loaded = true
	s.logger.Info("history cleared")
	return entity.History{}, nil
}

// History returns the current history, loading it on first use. It is empty
// while the slot cannot be read.
func (s *Store) History(ctx context.Context) entity.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, false); err != nil {
		return entity.History{}
	}
	return s.history.Clone()
}

func (s *Store) Summaries(ctx context.Context) []entity.ReportSummary {
	return s.History(ctx).Summaries()
}
