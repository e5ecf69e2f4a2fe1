// Package graph orders tables so that referenced tables are created before
// the tables that declare foreign keys against them.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/dbpromote/internal/schema"
)

// Node represents a table in the dependency graph.
type Node struct {
	Name            string // Table name
	ForeignKeyCount int    // Number of FK constraints the table declares
}

// Edge represents a dependency between two tables: From must exist before To.
type Edge struct {
	From string // Referenced table
	To   string // Table declaring the foreign key
}

// Graph holds the full dependency structure for one promotion run.
// Edges point from a referenced table to the table that references it,
// so a topological order of the graph is a valid creation order.
type Graph struct {
	Nodes    map[string]*Node    // table name -> node
	Children map[string][]string // table name -> tables that reference it
	Parents  map[string][]string // table name -> tables it references
	edgeFKs  map[Edge][]schema.ForeignKeyDefinition
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:    make(map[string]*Node),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
		edgeFKs:  make(map[Edge][]schema.ForeignKeyDefinition),
	}
}

// AddNode adds a table node to the graph.
func (g *Graph) AddNode(name string, node *Node) {
	if node == nil {
		node = &Node{Name: name}
	}
	node.Name = name
	g.Nodes[name] = node
}

// AddEdge records that child declares a foreign key against parent.
// Duplicate FKs between the same pair share a single edge.
func (g *Graph) AddEdge(parent, child string, fk schema.ForeignKeyDefinition) {
	edge := Edge{From: parent, To: child}
	if _, exists := g.edgeFKs[edge]; !exists {
		g.Children[parent] = append(g.Children[parent], child)
		g.Parents[child] = append(g.Parents[child], parent)
	}
	g.edgeFKs[edge] = append(g.edgeFKs[edge], fk)
}

// EdgeForeignKeys returns the FK constraints carried by an edge.
func (g *Graph) EdgeForeignKeys(parent, child string) []schema.ForeignKeyDefinition {
	return g.edgeFKs[Edge{From: parent, To: child}]
}

// GetChildren returns the tables that reference parent.
func (g *Graph) GetChildren(parent string) []string {
	return g.Children[parent]
}

// GetParents returns the tables that child references.
func (g *Graph) GetParents(child string) []string {
	return g.Parents[child]
}

// HasNode returns true if the graph contains the named table.
func (g *Graph) HasNode(name string) bool {
	_, exists := g.Nodes[name]
	return exists
}

// NodeCount returns the number of tables in the graph.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of dependency edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.Children {
		count += len(children)
	}
	return count
}

// AllNodes returns all table names in sorted order.
func (g *Graph) AllNodes() []string {
	nodes := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return nodes
}

// InDegree returns the number of tables the named table references.
func (g *Graph) InDegree(name string) int {
	return len(g.Parents[name])
}

// CycleInfo describes one reference cycle the resolver had to break.
type CycleInfo struct {
	Participants []string // Tables that are part of the cycle, sorted
	Path         []string // One concrete path through the cycle (e.g. [a, b, a])
	BrokenAt     string   // Table whose FK edges were deferred to break the cycle
}

// UnresolvableDependencyError is returned when the resolver cannot produce a
// complete order even after deferring foreign keys. It indicates a graph the
// deferral strategy does not cover, which should not happen for FK-only edges.
type UnresolvableDependencyError struct {
	Remaining []string // Tables left without a position in the order
}

func (e *UnresolvableDependencyError) Error() string {
	return fmt.Sprintf("unresolvable dependencies: %d tables could not be ordered: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}
