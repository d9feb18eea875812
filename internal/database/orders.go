package database

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"waypoint/internal/models"
)

// CreatePurchaseOrder inserts a purchase order and stamps the item's
// last-ordered time.
func (s *Store) CreatePurchaseOrder(ctx context.Context, o *models.PurchaseOrder) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var item models.InventoryItem
		if err := tx.Where("sku = ?", o.SKU).First(&item).Error; err != nil {
			return fmt.Errorf("database: purchase order item %s: %w", o.SKU, notFound(err))
		}
		if o.UnitCost == 0 {
			o.UnitCost = item.UnitCost
		}
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("database: create purchase order: %w", err)
		}
		now := s.now().UTC()
		if err := tx.Model(&models.InventoryItem{}).Where("sku = ?", o.SKU).
			Updates(map[string]interface{}{"last_ordered": now}).Error; err != nil {
			return fmt.Errorf("database: stamp last ordered: %w", err)
		}
		return nil
	})
}

// CreateDisposalOrder inserts a disposal order and removes the disposed
// quantity from stock. It fails with ErrInsufficientStock rather than
// driving stock negative.
func (s *Store) CreateDisposalOrder(ctx context.Context, o *models.DisposalOrder) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var item models.InventoryItem
		if err := tx.Where("sku = ?", o.SKU).First(&item).Error; err != nil {
			return fmt.Errorf("database: disposal item %s: %w", o.SKU, notFound(err))
		}
		if o.Quantity > item.Quantity {
			return fmt.Errorf("%w: %s has %d, disposal wants %d", ErrInsufficientStock, o.SKU, item.Quantity, o.Quantity)
		}
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("database: create disposal order: %w", err)
		}
		if err := tx.Model(&models.InventoryItem{}).Where("sku = ?", o.SKU).
			Updates(map[string]interface{}{"quantity": item.Quantity - o.Quantity}).Error; err != nil {
			return fmt.Errorf("database: decrement stock: %w", err)
		}
		return nil
	})
}

// DiscontinueItem flags an item discontinued and, when stock remains,
// writes o as a disposal of all of it. o.Quantity is filled in from stock.
// It reports whether a disposal order was created.
func (s *Store) DiscontinueItem(ctx context.Context, o *models.DisposalOrder) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	created := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var item models.InventoryItem
		if err := tx.Where("sku = ?", o.SKU).First(&item).Error; err != nil {
			return fmt.Errorf("database: discontinue item %s: %w", o.SKU, notFound(err))
		}
		updates := map[string]interface{}{"discontinued": true}
		if item.Quantity > 0 {
			o.Quantity = item.Quantity
			if err := tx.Create(o).Error; err != nil {
				return fmt.Errorf("database: create disposal order: %w", err)
			}
			updates["quantity"] = 0
			created = true
		}
		if err := tx.Model(&models.InventoryItem{}).Where("sku = ?", o.SKU).Updates(updates).Error; err != nil {
			return fmt.Errorf("database: discontinue item %s: %w", o.SKU, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// ListPurchaseOrders returns purchase orders, newest first.
func (s *Store) ListPurchaseOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	orders := []models.PurchaseOrder{}
	if err := db.Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("database: list purchase orders: %w", err)
	}
	return orders, nil
}

// ListDisposalOrders returns disposal orders, newest first.
func (s *Store) ListDisposalOrders(ctx context.Context) ([]models.DisposalOrder, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	orders := []models.DisposalOrder{}
	if err := db.Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("database: list disposal orders: %w", err)
	}
	return orders, nil
}

// PurchaseOrderForAction returns the purchase order produced by an action.
func (s *Store) PurchaseOrderForAction(ctx context.Context, actionID string) (*models.PurchaseOrder, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var o models.PurchaseOrder
	if err := db.Where("action_id = ?", actionID).First(&o).Error; err != nil {
		return nil, fmt.Errorf("database: purchase order for %s: %w", actionID, notFound(err))
	}
	return &o, nil
}
