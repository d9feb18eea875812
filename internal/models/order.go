package models

import (
	"time"
)

// PurchaseOrder is a replenishment order created by an executed restock action
type PurchaseOrder struct {
	OrderID   string      `gorm:"primary_key" json:"order_id"`
	ActionID  string      `gorm:"unique_index" json:"action_id"`
	SKU       string      `gorm:"index" json:"sku"`
	Quantity  int         `json:"quantity"`
	UnitCost  float64     `json:"unit_cost"`
	OrderType string      `json:"order_type"`
	Status    OrderStatus `json:"status"`
	Reason    string      `gorm:"type:text" json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName sets the table name for PurchaseOrder
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// DisposalOrder removes stock from inventory (clearance or discontinuation)
type DisposalOrder struct {
	OrderID      string      `gorm:"primary_key" json:"order_id"`
	ActionID     string      `gorm:"unique_index" json:"action_id"`
	SKU          string      `gorm:"index" json:"sku"`
	Quantity     int         `json:"quantity"`
	DisposalType string      `json:"disposal_type"`
	Status       OrderStatus `json:"status"`
	Reason       string      `gorm:"type:text" json:"reason"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName sets the table name for DisposalOrder
func (DisposalOrder) TableName() string {
	return "disposal_orders"
}

// OrderStatus represents the possible states of a purchase or disposal order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOrdered   OrderStatus = "ordered"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusReceived  OrderStatus = "received"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order types
const (
	OrderTypeRestock = "restock"

	DisposalTypeClearance   = "clearance"
	DisposalTypeDiscontinue = "discontinue"
)
