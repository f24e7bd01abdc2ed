// Package population implements a logistic-growth regional population
// model (spec §9 "a minimal demonstration model is expected alongside the
// broker"), grounded in LogisticGrowth.py / inner_wrapper.py: every region
// grows toward a carrying capacity derived from its share of the total
// population, scaled to a fixed national ceiling.
package population

import (
	"fmt"

	"github.com/incstep-network/incstep/internal/message"
)

const (
	inputSchema  = "population_inputs"
	outputSchema = "population"
	variable     = "population"

	// growthRate and nationalCeiling mirror the constants LogisticGrowth.py
	// hard-codes (r = 1.0071, k scaled off a 400,000,000 national total).
	growthRate      = 1.0071
	nationalCeiling = 400_000_000.0
)

// Model carries each region's current population between increments.
type Model struct {
	population map[string]float64
}

// New builds an uninitialized population Model; Configure supplies the
// starting counts.
func New() *Model {
	return &Model{}
}

// Configure reads the initial per-region population counts from the
// "populations" initial-conditions file (spec §6 "Configuration").
func (m *Model) Configure(initialConditions map[string]interface{}) error {
	raw, ok := initialConditions["populations"]
	if !ok {
		return fmt.Errorf("population: initial-conditions file %q not found", "populations")
	}

	counts, err := toFloatMap(raw)
	if err != nil {
		return fmt.Errorf("population: parse initial populations: %w", err)
	}
	if len(counts) == 0 {
		return fmt.Errorf("population: initial populations file is empty")
	}
	m.population = counts
	return nil
}

// Increment applies one step of logistic growth to every region and
// reports the new counts under the population output schema.
func (m *Model) Increment(inputs map[string]map[string]message.Envelope) (
	outputs map[string]map[string]message.Envelope,
	htmlFiles map[string]string,
	byteFiles map[string][]byte,
	err error,
) {
	total := 0.0
	for _, n := range m.population {
		total += n
	}
	if total == 0 {
		return nil, nil, nil, fmt.Errorf("population: total population is zero")
	}

	next := make(map[string]float64, len(m.population))
	for region, n := range m.population {
		k := (n / total) * nationalCeiling
		next[region] = n + growthRate*n*((k-n)/k)
	}
	m.population = next

	outputs = map[string]map[string]message.Envelope{
		outputSchema: {
			variable: message.Envelope{Data: next, Granularity: "county"},
		},
	}
	return outputs, nil, nil, nil
}

func toFloatMap(raw interface{}) (map[string]float64, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", raw)
	}
	out := make(map[string]float64, len(obj))
	for k, v := range obj {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("region %q: expected a number, got %T", k, v)
		}
		out[k] = f
	}
	return out, nil
}
