package graph

import (
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// Builder constructs a dependency graph from captured table definitions.
type Builder struct {
	logger *logger.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(log *logger.Logger) *Builder {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Builder{logger: log}
}

// Build constructs the dependency graph for the given tables. Each foreign
// key produces an edge from the referenced table to the declaring table,
// with two exceptions:
//
//   - Self-referencing constraints never enter the graph; they are returned
//     separately so the caller can apply them after the table exists.
//   - Constraints referencing tables outside the set produce no edge. Such
//     tables are not part of the promotion, so they impose no ordering.
//
// The returned self-referencing constraints are sorted by table then name.
func (b *Builder) Build(defs map[string]*schema.TableDefinition, names []string) (*Graph, []schema.ForeignKeyDefinition) {
	g := NewGraph()

	for _, name := range names {
		def := defs[name]
		g.AddNode(name, &Node{Name: name, ForeignKeyCount: len(def.ForeignKeys)})
	}

	var selfRefs []schema.ForeignKeyDefinition
	for _, name := range names {
		def := defs[name]
		for _, fkName := range def.ForeignKeyNames() {
			fk := def.ForeignKeys[fkName]

			if fk.SelfReferencing() {
				selfRefs = append(selfRefs, fk)
				continue
			}

			if !g.HasNode(fk.ReferencedTable) {
				b.logger.Debugw("Foreign key references a table outside the promotion set",
					"table", name,
					"constraint", fk.Name,
					"references", fk.ReferencedTable,
				)
				continue
			}

			g.AddEdge(fk.ReferencedTable, name, fk)
		}
	}

	return g, selfRefs
}
