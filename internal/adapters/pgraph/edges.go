package pgraph

import (
	"context"
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/postgres"
)

// LoadEdges derives the FK edge map from information_schema: every
// single-column foreign key becomes one hop. It is the reference stand-in
// for the external schema loader; a deployment that already holds schema
// metadata can build an Edges map directly and skip this.
//
// Composite foreign keys are skipped - a scope path is defined by
// single-column parent pointers.
func LoadEdges(ctx context.Context, repo postgres.BaseRepository) (Edges, error) {
	query := `
		SELECT
			tc.table_schema, tc.table_name, kcu.column_name,
			ccu.table_schema, ccu.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
	`

	rows, err := repo.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgraph: loading foreign keys: %w", err)
	}
	defer rows.Close()

	edges := make(Edges)
	seen := make(map[domain.Relation]int)
	for rows.Next() {
		var childSchema, childName, column, parentSchema, parentName string
		if err := rows.Scan(&childSchema, &childName, &column, &parentSchema, &parentName); err != nil {
			return nil, fmt.Errorf("pgraph: scanning foreign key row: %w", err)
		}
		child := domain.Relation{Schema: childSchema, Name: childName}
		seen[child]++
		edges[child] = Edge{
			Column: column,
			Parent: domain.Relation{Schema: parentSchema, Name: parentName},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgraph: reading foreign keys: %w", err)
	}

	// A child with several FKs has an ambiguous parent hop; a composite
	// FK shows up as repeated rows for the same child. Either way the
	// schema loader owns disambiguation, so drop the guess.
	for child, count := range seen {
		if count > 1 {
			delete(edges, child)
		}
	}

	return edges, nil
}
