package database

import (
	"context"
	"fmt"

	"waypoint/internal/models"
)

// Seed fills empty inventory, fleet and shipment tables with a small
// warehouse so a fresh simulation has something for agents to act on.
// Tables that already hold rows are left alone.
func (s *Store) Seed(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var inventoryCount int
	db.Model(&models.InventoryItem{}).Count(&inventoryCount)
	if inventoryCount == 0 {
		for _, item := range defaultInventory() {
			if err := db.Create(&item).Error; err != nil {
				return fmt.Errorf("database: seed item %s: %w", item.SKU, err)
			}
		}
	}

	var vehicleCount int
	db.Model(&models.Vehicle{}).Count(&vehicleCount)
	if vehicleCount == 0 {
		vehicles := []models.Vehicle{
			{VehicleID: "VAN-01", Name: "Van 1", Status: models.VehicleIdle, Location: "DC-NORTH", Capacity: 120},
			{VehicleID: "VAN-02", Name: "Van 2", Status: models.VehicleIdle, Location: "DC-SOUTH", Capacity: 120},
			{VehicleID: "TRK-01", Name: "Truck 1", Status: models.VehicleMaintenance, Location: "DC-NORTH", Capacity: 400},
		}
		for _, v := range vehicles {
			if err := db.Create(&v).Error; err != nil {
				return fmt.Errorf("database: seed vehicle %s: %w", v.VehicleID, err)
			}
		}
	}

	var shipmentCount int
	db.Model(&models.Shipment{}).Count(&shipmentCount)
	if shipmentCount == 0 {
		shipments := []models.Shipment{
			{ShipmentID: "SHP-1001", Origin: "DC-NORTH", Destination: "STORE-12", Route: "I-90", Status: models.ShipmentPending, Units: 80},
			{ShipmentID: "SHP-1002", VehicleID: "VAN-02", Origin: "DC-SOUTH", Destination: "STORE-07", Route: "US-20", Status: models.ShipmentDelayed, Units: 45},
			{ShipmentID: "SHP-1003", Origin: "DC-SOUTH", Destination: "STORE-03", Route: "SR-9", Status: models.ShipmentPending, Units: 30},
		}
		for _, sh := range shipments {
			if err := db.Create(&sh).Error; err != nil {
				return fmt.Errorf("database: seed shipment %s: %w", sh.ShipmentID, err)
			}
		}
	}

	s.logger.Info("seed data ensured",
		"inventory_existing", inventoryCount,
		"vehicles_existing", vehicleCount,
		"shipments_existing", shipmentCount)
	return nil
}

func defaultInventory() []models.InventoryItem {
	return []models.InventoryItem{
		{SKU: "SKU-1001", Name: "USB-C Cable", Category: models.CategoryElectronics, Quantity: 12, ReorderLevel: 40, MaxLevel: 300, UnitCost: 2.10, UnitPrice: 9.99, Location: "A-01"},
		{SKU: "SKU-1002", Name: "Wireless Mouse", Category: models.CategoryElectronics, Quantity: 85, ReorderLevel: 30, MaxLevel: 150, UnitCost: 7.50, UnitPrice: 24.99, Location: "A-02"},
		{SKU: "SKU-2001", Name: "Rain Jacket", Category: models.CategoryApparel, Quantity: 260, ReorderLevel: 25, MaxLevel: 120, UnitCost: 18.00, UnitPrice: 59.00, Location: "B-04"},
		{SKU: "SKU-2002", Name: "Wool Socks", Category: models.CategoryApparel, Quantity: 4, ReorderLevel: 50, MaxLevel: 400, UnitCost: 1.80, UnitPrice: 7.50, Location: "B-05"},
		{SKU: "SKU-3001", Name: "Ground Coffee 1kg", Category: models.CategoryGrocery, Quantity: 140, ReorderLevel: 60, MaxLevel: 200, UnitCost: 8.40, UnitPrice: 9.10, Location: "C-01"},
		{SKU: "SKU-4001", Name: "Dish Soap", Category: models.CategoryHousehold, Quantity: 0, ReorderLevel: 20, MaxLevel: 180, UnitCost: 1.20, UnitPrice: 3.49, Location: "D-02"},
		{SKU: "SKU-5001", Name: "Shipping Box M", Category: models.CategoryPackaging, Quantity: 900, ReorderLevel: 200, MaxLevel: 600, UnitCost: 0.35, UnitPrice: 0.90, Location: "E-10"},
	}
}
