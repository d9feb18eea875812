package database

import (
	"context"
	"fmt"
	"time"

	"waypoint/internal/models"
)

// ListAgents returns every persisted agent ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	agents := []models.Agent{}
	if err := db.Order("agent_id asc").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("database: list agents: %w", err)
	}
	return agents, nil
}

// SaveAgent inserts or fully updates an agent record.
func (s *Store) SaveAgent(ctx context.Context, a models.Agent) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(&a).Error; err != nil {
		return fmt.Errorf("database: save agent %s: %w", a.AgentID, err)
	}
	return nil
}

// SetAgentActive toggles an agent's active flag.
func (s *Store) SetAgentActive(ctx context.Context, agentID string, active bool) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Agent{}).Where("agent_id = ?", agentID).Updates(map[string]interface{}{"is_active": active})
	if res.Error != nil {
		return fmt.Errorf("database: set agent active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database: agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

// TouchAgent records the time an agent last produced an action.
func (s *Store) TouchAgent(ctx context.Context, agentID string, at time.Time) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Agent{}).Where("agent_id = ?", agentID).Updates(map[string]interface{}{"last_action_time": at})
	if res.Error != nil {
		return fmt.Errorf("database: touch agent: %w", res.Error)
	}
	return nil
}
