package database

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"waypoint/internal/models"
)

// ListVehicles returns the fleet ordered by id.
func (s *Store) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	vehicles := []models.Vehicle{}
	if err := db.Order("vehicle_id asc").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("database: list vehicles: %w", err)
	}
	return vehicles, nil
}

// ListShipments returns shipments ordered by id.
func (s *Store) ListShipments(ctx context.Context) ([]models.Shipment, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	shipments := []models.Shipment{}
	if err := db.Order("shipment_id asc").Find(&shipments).Error; err != nil {
		return nil, fmt.Errorf("database: list shipments: %w", err)
	}
	return shipments, nil
}

// GetShipment loads a shipment by id.
func (s *Store) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var sh models.Shipment
	if err := db.Where("shipment_id = ?", id).First(&sh).Error; err != nil {
		return nil, fmt.Errorf("database: get shipment %s: %w", id, notFound(err))
	}
	return &sh, nil
}

// RerouteShipment changes a shipment's destination and route.
func (s *Store) RerouteShipment(ctx context.Context, id, destination, route string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{"destination": destination}
	if route != "" {
		updates["route"] = route
	}
	res := db.Model(&models.Shipment{}).
		Where("shipment_id = ? AND status <> ?", id, models.ShipmentDelivered).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("database: reroute shipment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database: reroutable shipment %s: %w", id, ErrNotFound)
	}
	return nil
}

// AssignVehicle puts an idle vehicle on a pending shipment. Both rows change
// in one transaction and only if they are still idle/pending.
func (s *Store) AssignVehicle(ctx context.Context, shipmentID, vehicleID string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Vehicle{}).
			Where("vehicle_id = ? AND status = ?", vehicleID, models.VehicleIdle).
			Updates(map[string]interface{}{"status": models.VehicleEnRoute})
		if res.Error != nil {
			return fmt.Errorf("database: assign vehicle %s: %w", vehicleID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("database: idle vehicle %s: %w", vehicleID, ErrNotFound)
		}

		res = tx.Model(&models.Shipment{}).
			Where("shipment_id = ? AND status = ?", shipmentID, models.ShipmentPending).
			Updates(map[string]interface{}{"vehicle_id": vehicleID, "status": models.ShipmentAssigned})
		if res.Error != nil {
			return fmt.Errorf("database: assign shipment %s: %w", shipmentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("database: pending shipment %s: %w", shipmentID, ErrNotFound)
		}
		return nil
	})
}

// SaveVehicle inserts or replaces a vehicle.
func (s *Store) SaveVehicle(ctx context.Context, v models.Vehicle) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(&v).Error; err != nil {
		return fmt.Errorf("database: save vehicle %s: %w", v.VehicleID, err)
	}
	return nil
}

// SaveShipment inserts or replaces a shipment.
func (s *Store) SaveShipment(ctx context.Context, sh models.Shipment) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(&sh).Error; err != nil {
		return fmt.Errorf("database: save shipment %s: %w", sh.ShipmentID, err)
	}
	return nil
}
