package models

import "time"

// Vehicle is a delivery vehicle in the fleet
type Vehicle struct {
	VehicleID string        `gorm:"primary_key" json:"vehicle_id"`
	Name      string        `json:"name"`
	Status    VehicleStatus `json:"status"`
	Location  string        `json:"location"`
	Capacity  int           `json:"capacity"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName sets the table name for Vehicle
func (Vehicle) TableName() string {
	return "vehicles"
}

// VehicleStatus represents what a vehicle is doing
type VehicleStatus string

const (
	VehicleIdle        VehicleStatus = "idle"
	VehicleEnRoute     VehicleStatus = "en_route"
	VehicleMaintenance VehicleStatus = "maintenance"
)

// Shipment is a delivery moving between two locations
type Shipment struct {
	ShipmentID  string         `gorm:"primary_key" json:"shipment_id"`
	VehicleID   string         `gorm:"index" json:"vehicle_id,omitempty"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Route       string         `json:"route"`
	Status      ShipmentStatus `json:"status"`
	Units       int            `json:"units"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName sets the table name for Shipment
func (Shipment) TableName() string {
	return "shipments"
}

// ShipmentStatus represents the delivery state of a shipment
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentAssigned  ShipmentStatus = "assigned"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelayed   ShipmentStatus = "delayed"
	ShipmentDelivered ShipmentStatus = "delivered"
)
