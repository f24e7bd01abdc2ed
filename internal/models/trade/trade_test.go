package trade

import (
	"math"
	"testing"

	"github.com/incstep-network/incstep/internal/message"
)

func baseConditions() map[string]interface{} {
	return map[string]interface{}{
		"trade_base": map[string]interface{}{
			"consumption": map[string]interface{}{"wheat": 10.0, "steel": 5.0},
			"prices":      map[string]interface{}{"wheat": 2.0, "steel": 4.0},
		},
	}
}

func configuredModel(t *testing.T) *Model {
	t.Helper()
	m := New()
	if err := m.Configure(baseConditions()); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	return m
}

func TestConfigureMissingFile(t *testing.T) {
	m := New()
	if err := m.Configure(map[string]interface{}{}); err == nil {
		t.Error("expected an error when trade_base is missing")
	}
}

func TestConfigureCalibratesSharesSummingToOne(t *testing.T) {
	m := configuredModel(t)
	sum := 0.0
	for _, s := range m.shares {
		if s < 0 {
			t.Errorf("share should be non-negative, got %v", s)
		}
		sum += s
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("shares sum to %v, want 1.0", sum)
	}
}

func TestIncrementUnchangedPricesReturnsBaseBasket(t *testing.T) {
	m := configuredModel(t)
	inputs := map[string]map[string]message.Envelope{
		"trade_prices": {
			"prices": {Data: map[string]float64{"wheat": 2.0, "steel": 4.0}, Granularity: "country"},
		},
	}
	outputs, _, _, err := m.Increment(inputs)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	consumption := outputs[outputSchema][variable].Data
	for i, good := range m.goods {
		if math.Abs(consumption[good]-m.baseBasket[i]) > 1e-6 {
			t.Errorf("consumption[%s] = %v, want %v (unchanged prices should reproduce the base basket)", good, consumption[good], m.baseBasket[i])
		}
	}

	gdpChange := outputs[outputSchema]["gdp_change"].Data["percent"]
	if math.Abs(gdpChange) > 1e-6 {
		t.Errorf("gdp_change = %v, want ~0 with unchanged prices", gdpChange)
	}
}

func TestIncrementReallocatesTowardCheaperGood(t *testing.T) {
	m := configuredModel(t)
	wheatIdx, steelIdx := -1, -1
	for i, g := range m.goods {
		switch g {
		case "wheat":
			wheatIdx = i
		case "steel":
			steelIdx = i
		}
	}

	inputs := map[string]map[string]message.Envelope{
		"trade_prices": {
			"prices": {Data: map[string]float64{"wheat": 1.0, "steel": 4.0}, Granularity: "country"},
		},
	}
	outputs, _, _, err := m.Increment(inputs)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	consumption := outputs[outputSchema][variable].Data
	if consumption["wheat"] <= m.baseBasket[wheatIdx] {
		t.Errorf("expected wheat consumption to rise when its price falls, got %v (base %v)", consumption["wheat"], m.baseBasket[wheatIdx])
	}
	_ = steelIdx
}

func TestIncrementMissingPriceErrors(t *testing.T) {
	m := configuredModel(t)
	inputs := map[string]map[string]message.Envelope{
		"trade_prices": {
			"prices": {Data: map[string]float64{"wheat": 2.0}, Granularity: "country"},
		},
	}
	if _, _, _, err := m.Increment(inputs); err == nil {
		t.Error("expected an error when a good's new price is missing")
	}
}

func TestIncrementMissingInputSchemaErrors(t *testing.T) {
	m := configuredModel(t)
	if _, _, _, err := m.Increment(map[string]map[string]message.Envelope{}); err == nil {
		t.Error("expected an error when trade_prices input is missing")
	}
}
