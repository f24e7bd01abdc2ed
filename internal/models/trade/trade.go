// Package trade implements an Armington-style constant-elasticity-of-
// substitution (CES) trade model (spec §9), grounded in armington.py /
// inner_wrapper.py: a country's consumption basket reallocates across
// goods as relative prices move, holding total expenditure fixed.
//
// armington.py calibrates CES share parameters and solves the post-shock
// demand system with scipy's least_squares. Both systems have closed-form
// solutions for a standard CES utility function, so this package solves
// them directly with gonum/floats rather than porting a nonlinear solver
// (see DESIGN.md).
package trade

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/incstep-network/incstep/internal/message"
)

const (
	outputSchema = "trade"
	variable     = "consumption"

	elasticity = 2.0 // s in armington.py
)

// Model holds the calibrated CES preferences and the current basket.
type Model struct {
	goods       []string
	shares      []float64 // gamma_i, calibrated once from the base year
	basePrices  []float64
	baseBasket  []float64
	budget      float64
	consumption []float64
}

// New builds an uncalibrated trade Model; Configure supplies the base-year
// basket and prices.
func New() *Model {
	return &Model{}
}

// Configure reads the base-year consumption basket and prices from the
// "trade_base" initial-conditions file and calibrates CES share
// parameters from them.
func (m *Model) Configure(initialConditions map[string]interface{}) error {
	raw, ok := initialConditions["trade_base"]
	if !ok {
		return fmt.Errorf("trade: initial-conditions file %q not found", "trade_base")
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("trade: trade_base: expected a JSON object, got %T", raw)
	}

	consumption, err := numberMap(obj, "consumption")
	if err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	prices, err := numberMap(obj, "prices")
	if err != nil {
		return fmt.Errorf("trade: %w", err)
	}

	goods := make([]string, 0, len(consumption))
	for good := range consumption {
		if _, ok := prices[good]; !ok {
			return fmt.Errorf("trade: good %q has consumption but no price", good)
		}
		goods = append(goods, good)
	}
	if len(goods) == 0 {
		return fmt.Errorf("trade: trade_base has no goods")
	}

	c := make([]float64, len(goods))
	p := make([]float64, len(goods))
	for i, good := range goods {
		c[i] = consumption[good]
		p[i] = prices[good]
	}

	m.goods = goods
	m.basePrices = p
	m.baseBasket = c
	m.budget = floats.Dot(p, c)
	m.shares = calibrateShares(elasticity, p, c)
	m.consumption = append([]float64(nil), c...)
	return nil
}

// Increment applies the new price vector from the "trade_prices" input
// schema and reports the reallocated basket plus the resulting change in
// real GDP.
func (m *Model) Increment(inputs map[string]map[string]message.Envelope) (
	outputs map[string]map[string]message.Envelope,
	htmlFiles map[string]string,
	byteFiles map[string][]byte,
	err error,
) {
	pricesInput, ok := inputs["trade_prices"]
	if !ok {
		return nil, nil, nil, fmt.Errorf("trade: input schema %q not found", "trade_prices")
	}
	envelope, ok := pricesInput["prices"]
	if !ok {
		return nil, nil, nil, fmt.Errorf("trade: input variable %q not found", "prices")
	}

	newPrices := make([]float64, len(m.goods))
	for i, good := range m.goods {
		p, ok := envelope.Data[good]
		if !ok {
			return nil, nil, nil, fmt.Errorf("trade: no new price for good %q", good)
		}
		newPrices[i] = p
	}

	consumption := cesDemand(elasticity, m.shares, newPrices, m.budget)
	m.consumption = consumption

	baseValue := floats.Dot(m.basePrices, m.baseBasket)
	newValueAtBasePrices := floats.Dot(m.basePrices, consumption)
	deltaGDP := (newValueAtBasePrices - baseValue) / baseValue

	consumptionOut := make(map[string]float64, len(m.goods))
	for i, good := range m.goods {
		consumptionOut[good] = consumption[i]
	}

	outputs = map[string]map[string]message.Envelope{
		outputSchema: {
			variable: message.Envelope{Data: consumptionOut, Granularity: "country"},
			"gdp_change": message.Envelope{
				Data:        map[string]float64{"percent": deltaGDP * 100},
				Granularity: "country",
			},
		},
	}
	return outputs, nil, nil, nil
}

// calibrateShares recovers CES share parameters gamma_i from observed
// prices and quantities: for a CES demand system, budget shares satisfy
// gamma_i ∝ p_i^(s-1) * p_i*c_i, normalized to sum to one. This is the
// closed-form counterpart of armington.py's sys_eqs_for_preferences solve.
func calibrateShares(s float64, prices, consumption []float64) []float64 {
	raw := make([]float64, len(prices))
	for i := range prices {
		expenditure := prices[i] * consumption[i]
		raw[i] = expenditure * math.Pow(prices[i], s-1)
	}
	total := floats.Sum(raw)
	for i := range raw {
		raw[i] /= total
	}
	return raw
}

// cesDemand solves the CES demand system in closed form for a new price
// vector, holding the budget fixed — armington.py's sys_eqs_for_consumption
// solved analytically instead of via least_squares.
func cesDemand(s float64, shares, prices []float64, budget float64) []float64 {
	priceIndex := 0.0
	for i := range prices {
		priceIndex += shares[i] * math.Pow(prices[i], 1-s)
	}
	priceIndex = math.Pow(priceIndex, 1/(1-s))

	demand := make([]float64, len(prices))
	for i := range prices {
		demand[i] = shares[i] * math.Pow(priceIndex/prices[i], s) * budget / priceIndex
	}
	return demand
}

func numberMap(obj map[string]interface{}, key string) (map[string]float64, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("trade_base.%s not found", key)
	}
	inner, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("trade_base.%s: expected a JSON object, got %T", key, raw)
	}
	out := make(map[string]float64, len(inner))
	for k, v := range inner {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("trade_base.%s.%s: expected a number, got %T", key, k, v)
		}
		out[k] = f
	}
	return out, nil
}
