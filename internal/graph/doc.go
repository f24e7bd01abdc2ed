// Package graph implements the granularity graph (spec §3, §4.1): two
// directed acyclic graphs — an abstract graph of granularity kinds and an
// instance graph of concrete regions — loaded once at startup and treated
// as immutable for the run.
//
// Design note (spec §9): rather than inheriting from a general graph
// library the way the original Python implementation subclasses
// networkx.DiGraph, nodes live in a dense arena indexed by integer id, with
// per-node adjacency lists and a separate kind-indexed secondary index so
// that "parent of kind K" and "successors of kind K" queries run in O(deg)
// without rebuilding anything. The shape is adapted from
// katalvlaran-lvlath's graph/core.Graph (string-keyed adjacency list under
// a mutex), generalized with the kind index this domain needs.
//
// Canonical granularity names (spec §9 open question (c)): a kind name must
// be one of country, state, county, nerc, huc8, latlon, or a wedge name
// "a^b" with a and b each one of those names and a < b lexicographically.
// Loading rejects any other name or spelling instead of silently accepting
// inconsistent casing.
//
// Instance graphs are built offline from shapefiles by pairwise polygon
// intersection (dropping intersections below a 1 km² minimum area) — that
// builder is out of scope here per spec §1; this package only loads the
// resulting JSON.
package graph
