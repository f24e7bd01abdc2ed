package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/incstep-network/incstep/internal/domain"
)

// fileNode and fileEdge mirror the on-disk geojson-like document described
// in spec §6.
type fileNode struct {
	ID      string   `json:"id"`
	Name    *string  `json:"name,omitempty"`
	Type    string   `json:"type"`
	Shape   json.RawMessage `json:"shape,omitempty"`
	Area    *float64 `json:"area,omitempty"`
	DefAgg  string   `json:"default_agg,omitempty"`
	DefDagg string   `json:"default_disagg,omitempty"`
}

type fileEdge struct {
	Source string            `json:"source"`
	Target string            `json:"target"`
	Agg    map[string]string `json:"a,omitempty"`
	Disagg map[string]string `json:"d,omitempty"`
}

type fileGraph struct {
	Nodes []fileNode `json:"nodes"`
	Links []fileEdge `json:"links"`
}

// AbstractAttrs is the per-node payload carried by an AbstractGraph's DAG.
type AbstractAttrs struct {
	DefaultAgg   string
	DefaultDagg  string
}

// AbstractEdgeAttrs is the per-edge payload: optional per-variable
// aggregator/disaggregator overrides (spec §4.1 "carrying per-variable
// aggregator/disaggregator names if overridden").
type AbstractEdgeAttrs struct {
	Agg    map[string]string
	Disagg map[string]string
}

// InstanceAttrs is the per-node payload carried by an InstanceGraph's DAG.
type InstanceAttrs struct {
	Area  float64
	Shape json.RawMessage
}

func loadFile(path string) (*fileGraph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file %s: %w", path, err)
	}
	var fg fileGraph
	if err := json.Unmarshal(b, &fg); err != nil {
		return nil, fmt.Errorf("parse graph file %s: %w", path, err)
	}
	return &fg, nil
}

// LoadAbstractGraph loads the abstract granularity graph from a geojson-like
// JSON document (spec §6). Every node and edge endpoint kind must be a
// canonical granularity name (ValidKind). An edge endpoint not listed among
// the nodes is created by AddEdge with an empty kind.
func LoadAbstractGraph(path string) (*AbstractGraph, error) {
	fg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	g := NewAbstractGraph()
	for _, n := range fg.Nodes {
		kind := n.Type
		if kind == "" {
			kind = n.ID
		}
		if !ValidKind(kind) {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGranularity, kind)
		}
		g.dag.AddNode(n.ID, kind, AbstractAttrs{DefaultAgg: n.DefAgg, DefaultDagg: n.DefDagg})
	}
	for _, e := range fg.Links {
		if !ValidKind(e.Source) || !ValidKind(e.Target) {
			return nil, fmt.Errorf("%w: edge %s->%s", domain.ErrUnknownGranularity, e.Source, e.Target)
		}
		g.dag.AddEdge(e.Source, e.Target, AbstractEdgeAttrs{Agg: e.Agg, Disagg: e.Disagg})
	}
	return g, nil
}

// LoadInstanceGraph loads the instance graph from a geojson-like JSON
// document (spec §6). Node "type" names the granularity kind the instance
// inhabits and must exist in abstractGraph.
func LoadInstanceGraph(path string, abstractGraph *AbstractGraph) (*InstanceGraph, error) {
	fg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	g := NewInstanceGraph()
	for _, n := range fg.Nodes {
		if !ValidKind(n.Type) {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGranularity, n.Type)
		}
		if abstractGraph != nil && !abstractGraph.dag.HasNode(n.Type) {
			return nil, fmt.Errorf("instance node %s has kind %q absent from abstract graph", n.ID, n.Type)
		}
		area := 0.0
		if n.Area != nil {
			area = *n.Area
		}
		g.dag.AddNode(n.ID, n.Type, InstanceAttrs{Area: area, Shape: n.Shape})
	}
	for _, e := range fg.Links {
		g.dag.AddEdge(e.Source, e.Target, nil)
	}
	return g, nil
}
