package database

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"waypoint/internal/models"
)

// Transition describes the side fields written together with a status change.
type Transition struct {
	Actor     string // who caused the change; recorded in the audit log
	Tick      int64  // simulation tick at the time of the change
	DecidedBy string // set on approve/decline/auto-approve
	Error     string // set on execution failure
	OrderID   string // order produced by a successful execution
	Note      string
}

// ActionFilter narrows ListActions.
type ActionFilter struct {
	Status  models.ActionStatus
	AgentID string
	Limit   int
	Oldest  bool // oldest first instead of newest first
}

// CreateAction inserts a freshly proposed action and its creation audit
// entry in one transaction.
func (s *Store) CreateAction(ctx context.Context, a *models.Action, actor string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if a.Status != models.StatusProposed {
		return fmt.Errorf("%w: new action must start %s, got %s", ErrIllegalTransition, models.StatusProposed, a.Status)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("database: create action: %w", err)
		}
		entry := models.AuditEntry{
			ActionID:  a.ActionID,
			ToStatus:  a.Status,
			Actor:     actor,
			Tick:      a.Tick,
			Note:      a.Payload.Rationale,
			Timestamp: a.CreatedAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("database: audit create action: %w", err)
		}
		return nil
	})
}

// GetAction loads an action by id.
func (s *Store) GetAction(ctx context.Context, id string) (*models.Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var a models.Action
	if err := db.Where("action_id = ?", id).First(&a).Error; err != nil {
		return nil, fmt.Errorf("database: get action %s: %w", id, notFound(err))
	}
	return &a, nil
}

// TransitionAction atomically moves an action from one status to another.
// The update only applies while the row is still in from; otherwise
// ErrStatusConflict is returned and nothing is written. The audit entry is
// appended in the same transaction.
func (s *Store) TransitionAction(ctx context.Context, id string, from, to models.ActionStatus, t Transition) (*models.Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	now := s.now().UTC()
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.StatusAutoApproved, models.StatusApproved, models.StatusDeclined:
		if t.DecidedBy != "" {
			updates["decided_by"] = t.DecidedBy
			updates["decided_at"] = now
		}
	case models.StatusExecuted, models.StatusExecutionFailed:
		updates["executed_at"] = now
		updates["error"] = t.Error
		if t.OrderID != "" {
			updates["order_id"] = t.OrderID
		}
	}

	var out models.Action
	err = db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Action{}).Where("action_id = ? AND status = ?", id, from)
		switch to {
		case models.StatusExecuted, models.StatusExecutionFailed:
			// Only the holder of the execution claim may record an outcome.
			q = q.Where("claimed_at IS NOT NULL AND executed_at IS NULL")
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("database: transition action %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return s.conflictOrMissing(tx, id)
		}

		entry := models.AuditEntry{
			ActionID:   id,
			FromStatus: from,
			ToStatus:   to,
			Actor:      t.Actor,
			Tick:       t.Tick,
			Note:       firstNonEmpty(t.Error, t.Note),
			Timestamp:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("database: audit transition %s: %w", id, err)
		}
		return tx.Where("action_id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimExecution marks an approved action as being executed. Exactly one
// caller can win the claim for a given action; every other caller gets
// ErrStatusConflict.
func (s *Store) ClaimExecution(ctx context.Context, id string) (*models.Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var out models.Action
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Action{}).
			Where("action_id = ? AND status = ? AND claimed_at IS NULL", id, models.StatusApproved).
			Updates(map[string]interface{}{"claimed_at": s.now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("database: claim action %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return s.conflictOrMissing(tx, id)
		}
		return tx.Where("action_id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActions returns actions ordered by tick and creation time.
func (s *Store) ListActions(ctx context.Context, f ActionFilter) ([]models.Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&models.Action{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.Oldest {
		q = q.Order("tick asc").Order("created_at asc")
	} else {
		q = q.Order("tick desc").Order("created_at desc")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	actions := []models.Action{}
	if err := q.Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("database: list actions: %w", err)
	}
	return actions, nil
}

// ListPendingActions returns actions awaiting a human decision, oldest first.
func (s *Store) ListPendingActions(ctx context.Context) ([]models.Action, error) {
	return s.ListActions(ctx, ActionFilter{Status: models.StatusPendingApproval, Oldest: true})
}

// ListActionHistory returns the most recent actions in any state.
func (s *Store) ListActionHistory(ctx context.Context, limit int) ([]models.Action, error) {
	return s.ListActions(ctx, ActionFilter{Limit: limit})
}

// CountActionsByStatus returns the number of actions in each status.
func (s *Store) CountActionsByStatus(ctx context.Context) (map[models.ActionStatus]int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	type row struct {
		Status models.ActionStatus
		Count  int
	}
	var rows []row
	if err := db.Model(&models.Action{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("database: count actions: %w", err)
	}
	out := make(map[models.ActionStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *Store) conflictOrMissing(tx *gorm.DB, id string) error {
	var count int
	if err := tx.Model(&models.Action{}).Where("action_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("database: lookup action %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("database: action %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("database: action %s: %w", id, ErrStatusConflict)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
