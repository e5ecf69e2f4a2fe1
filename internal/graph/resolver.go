package graph

import (
	"sort"

	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// Resolution is the outcome of ordering a dependency graph.
type Resolution struct {
	// Order lists every table of the graph; each table appears after all
	// tables it references, except where a foreign key was deferred.
	Order []string
	// DeferredForeignKeys are constraints that must be applied after every
	// table exists: self-referencing constraints and the edges removed to
	// break cycles. Sorted by declaring table, then constraint name.
	DeferredForeignKeys []schema.ForeignKeyDefinition
	// BrokenCycles describes each cycle the resolver had to break.
	BrokenCycles []CycleInfo
}

// Resolver produces a deterministic creation order from a dependency graph.
type Resolver struct {
	logger *logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Resolver{logger: log}
}

// Resolve orders the graph with Kahn's algorithm. Among ready tables the
// lexicographically smallest is taken first, so the order depends only on
// the graph, never on map iteration.
//
// When no table is ready and unresolved tables remain, the graph contains a
// reference cycle. The resolver breaks it: the smallest table inside the
// cycle has its remaining incoming FK edges deferred, which zeroes its
// in-degree and lets the sort continue. Deferred constraints are applied by
// the caller once every table exists.
func (r *Resolver) Resolve(g *Graph, selfRefs []schema.ForeignKeyDefinition) (*Resolution, error) {
	res := &Resolution{
		DeferredForeignKeys: append([]schema.ForeignKeyDefinition(nil), selfRefs...),
	}

	inDegree := make(map[string]int, g.NodeCount())
	for name := range g.Nodes {
		inDegree[name] = g.InDegree(name)
	}

	resolved := make(map[string]bool, g.NodeCount())
	ready := newReadySet()
	for name, degree := range inDegree {
		if degree == 0 {
			ready.Add(name)
		}
	}

	for len(resolved) < g.NodeCount() {
		if ready.Empty() {
			broken, ok := r.breakCycle(g, inDegree, resolved, res)
			if !ok {
				return nil, &UnresolvableDependencyError{Remaining: unresolvedNames(g, resolved)}
			}
			ready.Add(broken)
			continue
		}

		name := ready.Take()
		res.Order = append(res.Order, name)
		resolved[name] = true

		for _, child := range g.GetChildren(name) {
			if resolved[child] {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				ready.Add(child)
			}
		}
	}

	sortForeignKeys(res.DeferredForeignKeys)
	return res, nil
}

// breakCycle picks the smallest cycle participant and defers its unsatisfied
// incoming FK edges. Tables merely blocked behind the cycle keep their inline
// constraints and their position after their referent. Returns the table
// whose in-degree was cleared.
func (r *Resolver) breakCycle(g *Graph, inDegree map[string]int, resolved map[string]bool, res *Resolution) (string, bool) {
	unresolved := unresolvedNames(g, resolved)
	if len(unresolved) == 0 {
		return "", false
	}

	unresolvedSet := make(map[string]bool, len(unresolved))
	for _, name := range unresolved {
		unresolvedSet[name] = true
	}

	pick := unresolved[0]
	if participants := cycleParticipants(g, unresolvedSet); len(participants) > 0 {
		pick = participants[0]
	}

	deferred := 0
	for _, parent := range g.GetParents(pick) {
		if resolved[parent] {
			continue
		}
		for _, fk := range g.EdgeForeignKeys(parent, pick) {
			res.DeferredForeignKeys = append(res.DeferredForeignKeys, fk)
			deferred++
		}
	}
	if deferred == 0 {
		// No FK edge to defer means the stall has another cause.
		return "", false
	}
	inDegree[pick] = 0

	info := CycleInfo{
		Participants: cycleParticipants(g, unresolvedSet),
		Path:         findCyclePath(g, pick, unresolvedSet),
		BrokenAt:     pick,
	}
	res.BrokenCycles = append(res.BrokenCycles, info)

	r.logger.Warnw("Reference cycle broken by deferring foreign keys",
		"table", pick,
		"deferred_constraints", deferred,
		"cycle_participants", info.Participants,
	)
	return pick, true
}

func unresolvedNames(g *Graph, resolved map[string]bool) []string {
	var names []string
	for _, name := range g.AllNodes() {
		if !resolved[name] {
			names = append(names, name)
		}
	}
	return names
}

// cycleParticipants returns the unresolved tables that can reach themselves
// through the unresolved subgraph, sorted by name.
func cycleParticipants(g *Graph, unresolvedSet map[string]bool) []string {
	var participants []string
	for name := range unresolvedSet {
		if canReachSelf(g, name, unresolvedSet) {
			participants = append(participants, name)
		}
	}
	sort.Strings(participants)
	return participants
}

// findCyclePath finds one concrete path from start back to itself inside the
// unresolved subgraph. Returns nil if start is merely blocked, not cyclic.
func findCyclePath(g *Graph, start string, allowed map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}
	if dfsFindPath(g, start, start, visited, allowed, &path) {
		return path
	}
	return nil
}

func dfsFindPath(g *Graph, current, target string, visited, allowed map[string]bool, path *[]string) bool {
	children := append([]string(nil), g.GetChildren(current)...)
	sort.Strings(children)
	for _, child := range children {
		if !allowed[child] {
			continue
		}
		if child == target {
			*path = append(*path, target)
			return true
		}
		if visited[child] {
			continue
		}
		visited[child] = true
		*path = append(*path, child)
		if dfsFindPath(g, child, target, visited, allowed, path) {
			return true
		}
		*path = (*path)[:len(*path)-1]
	}
	return false
}

func canReachSelf(g *Graph, start string, allowed map[string]bool) bool {
	visited := make(map[string]bool)
	return dfsCanReach(g, start, start, visited, allowed, true)
}

func dfsCanReach(g *Graph, current, target string, visited, allowed map[string]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}
	if visited[current] || !allowed[current] {
		return false
	}
	visited[current] = true
	for _, child := range g.GetChildren(current) {
		if dfsCanReach(g, child, target, visited, allowed, false) {
			return true
		}
	}
	return false
}

func sortForeignKeys(fks []schema.ForeignKeyDefinition) {
	sort.Slice(fks, func(i, j int) bool {
		if fks[i].Table != fks[j].Table {
			return fks[i].Table < fks[j].Table
		}
		return fks[i].Name < fks[j].Name
	})
}

// readySet holds the tables whose dependencies are satisfied. Take always
// returns the lexicographically smallest member.
type readySet struct {
	names []string
}

func newReadySet() *readySet {
	return &readySet{}
}

func (s *readySet) Add(name string) {
	idx := sort.SearchStrings(s.names, name)
	s.names = append(s.names, "")
	copy(s.names[idx+1:], s.names[idx:])
	s.names[idx] = name
}

func (s *readySet) Take() string {
	name := s.names[0]
	s.names = s.names[1:]
	return name
}

func (s *readySet) Empty() bool {
	return len(s.names) == 0
}
