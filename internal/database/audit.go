package database

import (
	"context"
	"fmt"

	"waypoint/internal/models"
)

// ListAudit returns the audit trail of one action in the order it was written.
func (s *Store) ListAudit(ctx context.Context, actionID string) ([]models.AuditEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	entries := []models.AuditEntry{}
	if err := db.Where("action_id = ?", actionID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("database: list audit: %w", err)
	}
	return entries, nil
}

// ListRecentAudit returns the newest audit entries across all actions.
func (s *Store) ListRecentAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	entries := []models.AuditEntry{}
	if err := db.Order("id desc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("database: list recent audit: %w", err)
	}
	return entries, nil
}
