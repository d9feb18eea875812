package database

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"waypoint/internal/models"
)

// ListInventory returns every inventory item ordered by SKU.
func (s *Store) ListInventory(ctx context.Context) ([]models.InventoryItem, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	items := []models.InventoryItem{}
	if err := db.Order("sku asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("database: list inventory: %w", err)
	}
	return items, nil
}

// GetItem loads one inventory item.
func (s *Store) GetItem(ctx context.Context, sku string) (*models.InventoryItem, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var item models.InventoryItem
	if err := db.Where("sku = ?", sku).First(&item).Error; err != nil {
		return nil, fmt.Errorf("database: get item %s: %w", sku, notFound(err))
	}
	return &item, nil
}

// SaveItem inserts or replaces an inventory item.
func (s *Store) SaveItem(ctx context.Context, item models.InventoryItem) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(&item).Error; err != nil {
		return fmt.Errorf("database: save item %s: %w", item.SKU, err)
	}
	return nil
}

// DeleteItem removes an inventory item.
func (s *Store) DeleteItem(ctx context.Context, sku string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("sku = ?", sku).Delete(&models.InventoryItem{})
	if res.Error != nil {
		return fmt.Errorf("database: delete item %s: %w", sku, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database: item %s: %w", sku, ErrNotFound)
	}
	return nil
}

// UpdateItemPrice sets an item's unit price.
func (s *Store) UpdateItemPrice(ctx context.Context, sku string, price float64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return updateItem(db, sku, map[string]interface{}{"unit_price": price})
}

func updateItem(db *gorm.DB, sku string, updates map[string]interface{}) error {
	res := db.Model(&models.InventoryItem{}).Where("sku = ?", sku).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("database: update item %s: %w", sku, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database: item %s: %w", sku, ErrNotFound)
	}
	return nil
}
