// Package translator implements granularity translation (spec §4.2): pure
// functions over the granularity graph that aggregate, disaggregate, or
// detour through a meet node to move a keyed value mapping between
// resolutions.
package translator

import (
	"fmt"
	"log"

	"github.com/incstep-network/incstep/internal/domain"
	"github.com/incstep-network/incstep/internal/graph"
)

// Translator holds read-only references to the immutable abstract/instance
// graphs and the function registry. All of its methods are pure over their
// arguments.
type Translator struct {
	Abstract *graph.AbstractGraph
	Instance *graph.InstanceGraph
	Registry *graph.Registry
}

// New builds a Translator over the given graphs, installing the built-in
// function registry.
func New(abs *graph.AbstractGraph, inst *graph.InstanceGraph) *Translator {
	return &Translator{Abstract: abs, Instance: inst, Registry: graph.NewRegistry()}
}

// Translate moves data from src granularity to dest granularity for the
// named variable (spec §4.2 algorithm). aggHint/disaggHint are the
// per-variable function name overrides taken from a schema's granularity
// hint (§4.3); pass "" when none apply.
func (t *Translator) Translate(data map[string]float64, src, dest, variable, aggHint, disaggHint string) (map[string]float64, error) {
	if src == dest {
		return data, nil
	}
	if t.Abstract.HasPath(src, dest) {
		return t.Disaggregate(data, src, dest, variable, disaggHint)
	}
	if t.Abstract.HasPath(dest, src) {
		return t.Aggregate(data, src, dest, variable, aggHint)
	}
	meet := graph.Meet(src, dest)
	if t.Abstract.HasPath(src, meet) && t.Abstract.HasPath(dest, meet) {
		disaggregated, err := t.Disaggregate(data, src, meet, variable, disaggHint)
		if err != nil {
			return nil, err
		}
		return t.Aggregate(disaggregated, meet, dest, variable, aggHint)
	}
	return nil, fmt.Errorf("%w: %s from %s to %s", domain.ErrNoTranslationPath, variable, src, dest)
}

// Aggregate coarsens data from src to dest along the abstract graph's
// reverse shortest path, applying the resolved aggregator at every step.
func (t *Translator) Aggregate(data map[string]float64, src, dest, variable, nameHint string) (map[string]float64, error) {
	if src == dest {
		return data, nil
	}
	path, ok := t.Abstract.ShortestPath(dest, src)
	if !ok {
		return nil, fmt.Errorf("%w: aggregation %s -> %s", domain.ErrNoTranslationPath, src, dest)
	}
	reversePath(path)
	next := path[1]

	groups := make(map[string][]graph.InstanceValue)
	for instance, value := range data {
		if !t.Instance.HasNode(instance) {
			log.Printf("[translator] instance %s not in instance graph, skipping", instance)
			continue
		}
		parent, unique, ambiguous := t.Instance.ParentOfKind(instance, next)
		if ambiguous {
			return nil, fmt.Errorf("%w: instance %s has multiple parents of kind %s", domain.ErrAmbiguousParent, instance, next)
		}
		if !unique {
			log.Printf("[translator] instance %s has no parent of kind %s, skipping", instance, next)
			continue
		}
		groups[parent] = append(groups[parent], graph.InstanceValue{ID: instance, Value: value})
	}

	edge := t.Abstract.EdgeFuncs(next, path[0])
	funcName := nameHint
	if funcName == "" {
		funcName = edge.Agg[variable]
	}
	agg := t.Registry.Aggregator(funcName)

	translated := make(map[string]float64, len(groups))
	for parent, values := range groups {
		translated[parent] = agg(graph.AggInput{Values: values, Parent: parent, Graph: t.Instance})
	}

	return t.Aggregate(translated, next, dest, variable, nameHint)
}

// Disaggregate refines data from src to dest along the abstract graph's
// forward shortest path, applying the resolved disaggregator at every step.
func (t *Translator) Disaggregate(data map[string]float64, src, dest, variable, nameHint string) (map[string]float64, error) {
	if src == dest {
		return data, nil
	}
	path, ok := t.Abstract.ShortestPath(src, dest)
	if !ok {
		return nil, fmt.Errorf("%w: disaggregation %s -> %s", domain.ErrNoTranslationPath, src, dest)
	}
	next := path[1]

	edge := t.Abstract.EdgeFuncs(path[0], next)
	funcName := nameHint
	if funcName == "" {
		funcName = edge.Disagg[variable]
	}
	disagg := t.Registry.Disaggregator(funcName)

	translated := make(map[string]float64)
	for parent, value := range data {
		children := disagg(graph.DisaggInput{Value: value, Parent: parent, ChildKind: next, Graph: t.Instance})
		if len(children) == 0 {
			log.Printf("[translator] disaggregating %s from %s produced no children at kind %s", variable, parent, next)
		}
		for child, v := range children {
			translated[child] = v
		}
	}

	return t.Disaggregate(translated, next, dest, variable, nameHint)
}

func reversePath(path []string) {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
}
