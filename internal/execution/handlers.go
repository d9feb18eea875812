package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"waypoint/internal/models"
)

// Domain is the slice of the store the built-in handlers mutate.
type Domain interface {
	GetItem(ctx context.Context, sku string) (*models.InventoryItem, error)
	CreatePurchaseOrder(ctx context.Context, o *models.PurchaseOrder) error
	CreateDisposalOrder(ctx context.Context, o *models.DisposalOrder) error
	DiscontinueItem(ctx context.Context, o *models.DisposalOrder) (bool, error)
	UpdateItemPrice(ctx context.Context, sku string, price float64) error
	RerouteShipment(ctx context.Context, id, destination, route string) error
	AssignVehicle(ctx context.Context, shipmentID, vehicleID string) error
}

// Effect kinds
const (
	KindPurchaseOrder = "purchase_order"
	KindDisposalOrder = "disposal_order"
	KindDiscontinue   = "discontinue"
	KindPriceUpdate   = "price_update"
	KindReroute       = "reroute"
	KindDispatch      = "dispatch"
)

// NewDefaultRegistry registers a handler for every action type against d.
func NewDefaultRegistry(d Domain) *Registry {
	h := &handlers{domain: d, newID: func() string { return uuid.New().String() }}
	r := NewRegistry()
	r.Register(models.ActionRestock, HandlerFunc(h.restock))
	r.Register(models.ActionClearance, HandlerFunc(h.clearance))
	r.Register(models.ActionDiscontinue, HandlerFunc(h.discontinue))
	r.Register(models.ActionReprice, HandlerFunc(h.reprice))
	r.Register(models.ActionReroute, HandlerFunc(h.reroute))
	r.Register(models.ActionDispatch, HandlerFunc(h.dispatch))
	return r
}

type handlers struct {
	domain Domain
	newID  func() string
}

func (h *handlers) restock(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.SKU == "" || p.Quantity <= 0 {
		return Effect{}, fmt.Errorf("%w: restock needs sku and positive quantity", ErrInvalidPayload)
	}
	item, err := h.domain.GetItem(ctx, p.SKU)
	if err != nil {
		return Effect{}, err
	}
	if item.Discontinued {
		return Effect{}, fmt.Errorf("execution: cannot restock discontinued item %s", p.SKU)
	}

	po := &models.PurchaseOrder{
		OrderID:   "po-" + h.newID(),
		ActionID:  a.ActionID,
		SKU:       p.SKU,
		Quantity:  p.Quantity,
		UnitCost:  item.UnitCost,
		OrderType: models.OrderTypeRestock,
		Status:    models.OrderStatusPending,
		Reason:    p.Rationale,
	}
	if err := h.domain.CreatePurchaseOrder(ctx, po); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:        KindPurchaseOrder,
		OrderID:     po.OrderID,
		Description: fmt.Sprintf("ordered %d of %s", po.Quantity, po.SKU),
	}, nil
}

func (h *handlers) clearance(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.SKU == "" || p.Quantity <= 0 {
		return Effect{}, fmt.Errorf("%w: clearance needs sku and positive quantity", ErrInvalidPayload)
	}
	do := &models.DisposalOrder{
		OrderID:      "do-" + h.newID(),
		ActionID:     a.ActionID,
		SKU:          p.SKU,
		Quantity:     p.Quantity,
		DisposalType: models.DisposalTypeClearance,
		Status:       models.OrderStatusPending,
		Reason:       p.Rationale,
	}
	if err := h.domain.CreateDisposalOrder(ctx, do); err != nil {
		return Effect{}, err
	}
	return Effect{
		Kind:        KindDisposalOrder,
		OrderID:     do.OrderID,
		Description: fmt.Sprintf("cleared %d of %s", do.Quantity, do.SKU),
	}, nil
}

func (h *handlers) discontinue(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.SKU == "" {
		return Effect{}, fmt.Errorf("%w: discontinue needs sku", ErrInvalidPayload)
	}
	do := &models.DisposalOrder{
		OrderID:      "do-" + h.newID(),
		ActionID:     a.ActionID,
		SKU:          p.SKU,
		DisposalType: models.DisposalTypeDiscontinue,
		Status:       models.OrderStatusPending,
		Reason:       p.Rationale,
	}
	created, err := h.domain.DiscontinueItem(ctx, do)
	if err != nil {
		return Effect{}, err
	}
	if !created {
		return Effect{Kind: KindDiscontinue, Description: fmt.Sprintf("discontinued %s with no stock on hand", p.SKU)}, nil
	}
	return Effect{
		Kind:        KindDiscontinue,
		OrderID:     do.OrderID,
		Description: fmt.Sprintf("discontinued %s, disposing %d", p.SKU, do.Quantity),
	}, nil
}

func (h *handlers) reprice(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.SKU == "" || p.Price <= 0 {
		return Effect{}, fmt.Errorf("%w: reprice needs sku and positive price", ErrInvalidPayload)
	}
	if err := h.domain.UpdateItemPrice(ctx, p.SKU, p.Price); err != nil {
		return Effect{}, err
	}
	return Effect{Kind: KindPriceUpdate, Description: fmt.Sprintf("%s now priced %.2f", p.SKU, p.Price)}, nil
}

func (h *handlers) reroute(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.ShipmentID == "" || p.Location == "" {
		return Effect{}, fmt.Errorf("%w: reroute needs shipment_id and location", ErrInvalidPayload)
	}
	if err := h.domain.RerouteShipment(ctx, p.ShipmentID, p.Location, p.Route); err != nil {
		return Effect{}, err
	}
	return Effect{Kind: KindReroute, Description: fmt.Sprintf("%s rerouted to %s", p.ShipmentID, p.Location)}, nil
}

func (h *handlers) dispatch(ctx context.Context, a *models.Action) (Effect, error) {
	p := a.Payload
	if p.ShipmentID == "" || p.VehicleID == "" {
		return Effect{}, fmt.Errorf("%w: dispatch needs shipment_id and vehicle_id", ErrInvalidPayload)
	}
	if err := h.domain.AssignVehicle(ctx, p.ShipmentID, p.VehicleID); err != nil {
		return Effect{}, err
	}
	return Effect{Kind: KindDispatch, Description: fmt.Sprintf("%s assigned to %s", p.ShipmentID, p.VehicleID)}, nil
}
