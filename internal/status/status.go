// Package status applies bullet-journal status changes to stored notebooks.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/observability"
	"github.com/efebarandurmaz/bujo/internal/store"
)

// Request identifies one extracted item and its new status.
type Request struct {
	PageIndex int    `json:"page_index"`
	ItemIndex int    `json:"item_index"`
	Status    string `json:"new_status"`
}

// Service updates item statuses with a read-modify-write against the store.
// Concurrent updates of the same notebook are last-writer-wins.
type Service struct {
	store  store.Store
	audit  *observability.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// New creates a status service. audit may be nil.
func New(s store.Store, audit *observability.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, audit: audit, logger: logger, now: time.Now}
}

// Update loads the notebook, changes one item and writes it back. Nothing is
// written when the item already has the requested status.
func (s *Service) Update(ctx context.Context, id string, req Request) (notebook.StatusChange, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return notebook.StatusChange{}, fmt.Errorf("load notebook %s: %w", id, err)
	}

	change, err := notebook.UpdateItemStatus(&rec, req.PageIndex, req.ItemIndex, req.Status, s.now())
	if err != nil {
		return change, err
	}
	if !change.Changed {
		s.logger.Debug("status unchanged", "id", id, "page", req.PageIndex, "item", req.ItemIndex)
		return change, nil
	}

	if err := s.store.Replace(ctx, rec); err != nil {
		return change, fmt.Errorf("save notebook %s: %w", id, err)
	}
	s.logger.Info("status updated", "id", id, "page", req.PageIndex, "item", req.ItemIndex, "status", change.Status)

	if aerr := s.audit.Log(&observability.AuditEvent{
		EventType:  observability.AuditEventStatusUpdate,
		NotebookID: id,
		Success:    true,
		Details: map[string]any{
			"page_index": req.PageIndex,
			"item_index": req.ItemIndex,
			"status":     change.Status,
			"symbol":     change.Symbol,
		},
	}); aerr != nil {
		s.logger.Warn("audit write failed", "error", aerr)
	}
	return change, nil
}
