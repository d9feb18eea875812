package models

import "time"

// InventoryItem represents a stocked item in the warehouse
type InventoryItem struct {
	SKU          string            `gorm:"primary_key" json:"sku"`
	Name         string            `json:"name"`
	Category     InventoryCategory `json:"category"`
	Quantity     int               `json:"quantity"`
	ReorderLevel int               `json:"reorder_level"`
	MaxLevel     int               `json:"max_level"`
	UnitCost     float64           `json:"unit_cost"`
	UnitPrice    float64           `json:"unit_price"`
	Location     string            `json:"location"`
	Discontinued bool              `json:"discontinued"`
	LastOrdered  *time.Time        `json:"last_ordered,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName sets the table name for InventoryItem
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// Status derives the stock status of an item from its levels
func (i InventoryItem) Status() InventoryStatus {
	switch {
	case i.Discontinued:
		return StatusDiscontinued
	case i.Quantity <= 0:
		return StatusOutOfStock
	case i.Quantity <= i.ReorderLevel:
		return StatusLow
	case i.MaxLevel > 0 && i.Quantity > i.MaxLevel:
		return StatusOverstocked
	}
	return StatusInStock
}

// Margin returns the per-unit margin as a fraction of price
func (i InventoryItem) Margin() float64 {
	if i.UnitPrice <= 0 {
		return 0
	}
	return (i.UnitPrice - i.UnitCost) / i.UnitPrice
}

// InventoryCategory represents the category of an inventory item
type InventoryCategory string

const (
	CategoryElectronics InventoryCategory = "electronics"
	CategoryApparel     InventoryCategory = "apparel"
	CategoryGrocery     InventoryCategory = "grocery"
	CategoryHousehold   InventoryCategory = "household"
	CategoryPackaging   InventoryCategory = "packaging"
)

// InventoryStatus represents the derived stock status of an inventory item
type InventoryStatus string

const (
	StatusInStock      InventoryStatus = "in_stock"
	StatusLow          InventoryStatus = "low"
	StatusOutOfStock   InventoryStatus = "out_of_stock"
	StatusOverstocked  InventoryStatus = "overstocked"
	StatusDiscontinued InventoryStatus = "discontinued"
)
