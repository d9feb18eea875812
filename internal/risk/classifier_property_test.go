package risk

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"waypoint/internal/models"
)

// Property: Classify(t, p) == Classify(t, p) for any input.
func TestClassifyDeterminism(t *testing.T) {
	c, err := New(DefaultConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classification is deterministic", prop.ForAll(
		func(idx int, qty int, value float64) bool {
			at := models.ActionTypes[idx]
			p := models.Payload{SKU: "SKU-1", Quantity: qty, EstimatedImpact: models.Impact{Value: value, Quantity: qty}}
			return c.Classify(at, p) == c.Classify(at, p)
		},
		gen.IntRange(0, len(models.ActionTypes)-1),
		gen.IntRange(-10000, 10000),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

// Property: for auto-approvable types, impact < limit <=> auto.
func TestClassifyThresholdBoundary(t *testing.T) {
	cfg := DefaultConfig()
	c, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("auto iff quantity below restock limit", prop.ForAll(
		func(qty int) bool {
			d := c.Classify(models.ActionRestock, models.Payload{Quantity: qty})
			below := float64(qty) < cfg.Thresholds[models.ActionRestock].Limit
			return d.Auto() == below
		},
		gen.IntRange(1, 200),
	))

	properties.Property("value types without an estimate are never auto", prop.ForAll(
		func(idx int, price float64) bool {
			at := []models.ActionType{models.ActionReprice, models.ActionReroute, models.ActionDispatch}[idx]
			return !c.Classify(at, models.Payload{SKU: "SKU-1", Price: price}).Auto()
		},
		gen.IntRange(0, 2),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("discontinue is never auto", prop.ForAll(
		func(qty int, value float64) bool {
			p := models.Payload{Quantity: qty, EstimatedImpact: models.Impact{Value: value}}
			return !c.Classify(models.ActionDiscontinue, p).Auto()
		},
		gen.IntRange(-1000, 1000),
		gen.Float64Range(-1e4, 1e4),
	))

	properties.TestingRun(t)
}
