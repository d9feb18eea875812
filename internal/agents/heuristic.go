package agents

import (
	"context"
	"fmt"
	"math"

	"waypoint/internal/models"
)

// Heuristic is a deterministic rule-based proposer. It needs no model and
// is the fallback when an LLM reply cannot be used.
type Heuristic struct {
	// TargetMargin is the margin a reprice aims for.
	TargetMargin float64
	// MinMargin triggers a reprice when an item's margin falls below it.
	MinMargin float64
	// RerouteCostPerUnit estimates the value moved by rerouting one unit.
	RerouteCostPerUnit float64
	// DispatchValuePerUnit estimates the value moved by dispatching one unit.
	DispatchValuePerUnit float64
}

// NewHeuristic returns a Heuristic with default tuning.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		TargetMargin:         0.30,
		MinMargin:            0.15,
		RerouteCostPerUnit:   5,
		DispatchValuePerUnit: 10,
	}
}

// Propose implements Proposer.
func (h *Heuristic) Propose(ctx context.Context, agentType models.AgentType, snap Snapshot) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}

	var (
		p  Proposal
		ok bool
	)
	switch agentType {
	case models.AgentTypeRestock:
		if p, ok = h.lowStock(snap); !ok {
			p, ok = h.overstock(snap)
		}
	case models.AgentTypeForecasting:
		if p, ok = h.deadStock(snap); !ok {
			p, ok = h.stockout(snap)
		}
	case models.AgentTypePricing:
		if p, ok = h.marginDrift(snap); !ok {
			p, ok = h.overstock(snap)
		}
	case models.AgentTypeRoute:
		p, ok = h.delayed(snap)
	case models.AgentTypeDispatch:
		p, ok = h.unassigned(snap)
	default:
		return Proposal{}, fmt.Errorf("agents: no heuristic for agent type %q", agentType)
	}
	if !ok {
		return Proposal{}, ErrNoProposal
	}
	return p, nil
}

func sellable(item models.InventoryItem) bool {
	return !item.Discontinued
}

func (h *Heuristic) lowStock(snap Snapshot) (Proposal, bool) {
	for _, item := range snap.Inventory {
		if !sellable(item) || item.Quantity > item.ReorderLevel {
			continue
		}
		target := "sku:" + item.SKU
		if snap.HasOpen(models.ActionRestock, target) {
			continue
		}
		qty := item.MaxLevel - item.Quantity
		if qty <= 0 {
			qty = item.ReorderLevel
		}
		return Proposal{
			ActionType: models.ActionRestock,
			Payload:    models.Payload{SKU: item.SKU, Quantity: qty, Location: item.Location},
			Rationale:  fmt.Sprintf("%s at %d, reorder level %d; refill to %d", item.SKU, item.Quantity, item.ReorderLevel, item.MaxLevel),
			EstimatedImpact: models.Impact{
				Quantity: qty,
				Value:    round2(float64(qty) * item.UnitCost),
			},
		}, true
	}
	return Proposal{}, false
}

func (h *Heuristic) stockout(snap Snapshot) (Proposal, bool) {
	for _, item := range snap.Inventory {
		if !sellable(item) || item.Quantity > 0 {
			continue
		}
		target := "sku:" + item.SKU
		if snap.HasOpen(models.ActionRestock, target) {
			continue
		}
		qty := item.ReorderLevel
		if qty <= 0 {
			qty = 1
		}
		return Proposal{
			ActionType:      models.ActionRestock,
			Payload:         models.Payload{SKU: item.SKU, Quantity: qty, Location: item.Location},
			Rationale:       fmt.Sprintf("%s is out of stock; cover forecast demand of %d", item.SKU, qty),
			EstimatedImpact: models.Impact{Quantity: qty, Value: round2(float64(qty) * item.UnitCost)},
		}, true
	}
	return Proposal{}, false
}

func (h *Heuristic) overstock(snap Snapshot) (Proposal, bool) {
	for _, item := range snap.Inventory {
		if !sellable(item) || item.MaxLevel <= 0 || item.Quantity <= item.MaxLevel {
			continue
		}
		target := "sku:" + item.SKU
		if snap.HasOpen(models.ActionClearance, target) {
			continue
		}
		qty := item.Quantity - item.MaxLevel
		return Proposal{
			ActionType:      models.ActionClearance,
			Payload:         models.Payload{SKU: item.SKU, Quantity: qty, Location: item.Location},
			Rationale:       fmt.Sprintf("%s holds %d over max level %d", item.SKU, qty, item.MaxLevel),
			EstimatedImpact: models.Impact{Quantity: qty, Value: round2(float64(qty) * item.UnitCost)},
		}, true
	}
	return Proposal{}, false
}

// deadStock proposes discontinuing items holding more than twice their max level.
func (h *Heuristic) deadStock(snap Snapshot) (Proposal, bool) {
	for _, item := range snap.Inventory {
		if !sellable(item) || item.MaxLevel <= 0 || item.Quantity <= 2*item.MaxLevel {
			continue
		}
		target := "sku:" + item.SKU
		if snap.HasOpen(models.ActionDiscontinue, target) {
			continue
		}
		return Proposal{
			ActionType:      models.ActionDiscontinue,
			Payload:         models.Payload{SKU: item.SKU, Quantity: item.Quantity},
			Rationale:       fmt.Sprintf("%s holds %d, more than twice max level %d; demand is not there", item.SKU, item.Quantity, item.MaxLevel),
			EstimatedImpact: models.Impact{Quantity: item.Quantity, Value: round2(float64(item.Quantity) * item.UnitCost)},
		}, true
	}
	return Proposal{}, false
}

func (h *Heuristic) marginDrift(snap Snapshot) (Proposal, bool) {
	for _, item := range snap.Inventory {
		if !sellable(item) || item.UnitCost <= 0 || item.Margin() >= h.MinMargin {
			continue
		}
		target := "sku:" + item.SKU
		if snap.HasOpen(models.ActionReprice, target) {
			continue
		}
		price := round2(item.UnitCost / (1 - h.TargetMargin))
		return Proposal{
			ActionType: models.ActionReprice,
			Payload:    models.Payload{SKU: item.SKU, Price: price},
			Rationale: fmt.Sprintf("%s margin %.0f%% below %.0f%%; move price %.2f -> %.2f",
				item.SKU, item.Margin()*100, h.MinMargin*100, item.UnitPrice, price),
			EstimatedImpact: models.Impact{Value: round2(math.Abs(price-item.UnitPrice) * float64(item.Quantity))},
		}, true
	}
	return Proposal{}, false
}

func (h *Heuristic) delayed(snap Snapshot) (Proposal, bool) {
	for _, sh := range snap.Shipments {
		if sh.Status != models.ShipmentDelayed {
			continue
		}
		target := "shipment:" + sh.ShipmentID
		if snap.HasOpen(models.ActionReroute, target) {
			continue
		}
		route := "ALT-" + sh.Route
		return Proposal{
			ActionType:      models.ActionReroute,
			Payload:         models.Payload{ShipmentID: sh.ShipmentID, Location: sh.Destination, Route: route},
			Rationale:       fmt.Sprintf("%s delayed on %s; switch to %s", sh.ShipmentID, sh.Route, route),
			EstimatedImpact: models.Impact{Quantity: sh.Units, Value: round2(float64(sh.Units) * h.RerouteCostPerUnit)},
		}, true
	}
	return Proposal{}, false
}

func (h *Heuristic) unassigned(snap Snapshot) (Proposal, bool) {
	for _, sh := range snap.Shipments {
		if sh.Status != models.ShipmentPending || sh.VehicleID != "" {
			continue
		}
		target := "shipment:" + sh.ShipmentID
		if snap.HasOpen(models.ActionDispatch, target) {
			continue
		}
		for _, v := range snap.Vehicles {
			if v.Status != models.VehicleIdle || v.Capacity < sh.Units || vehicleClaimed(snap, v.VehicleID) {
				continue
			}
			return Proposal{
				ActionType:      models.ActionDispatch,
				Payload:         models.Payload{ShipmentID: sh.ShipmentID, VehicleID: v.VehicleID, Location: sh.Origin},
				Rationale:       fmt.Sprintf("%s waiting at %s; %s is idle with capacity %d", sh.ShipmentID, sh.Origin, v.VehicleID, v.Capacity),
				EstimatedImpact: models.Impact{Quantity: sh.Units, Value: round2(float64(sh.Units) * h.DispatchValuePerUnit)},
			}, true
		}
	}
	return Proposal{}, false
}

func vehicleClaimed(snap Snapshot, vehicleID string) bool {
	for _, a := range snap.OpenActions {
		if a.ActionType == models.ActionDispatch && a.Payload.VehicleID == vehicleID {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
