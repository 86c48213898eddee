package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/rhale/cascade/internal/engine"
)

// ReadGraph returns every recorded transition for a graph, ordered by the
// engine's logical clock (insertion order breaks seq ties; seqs are only
// unique per engine instance, and multiple runs may share one database).
//
// Returns an empty slice, not nil, when the graph has no transitions.
func (s *Store) ReadGraph(ctx context.Context, graphID string) ([]engine.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT graph_id, unit_id, status, detail, seq, at
		FROM transitions
		WHERE graph_id = ?
		ORDER BY seq ASC, id ASC
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []engine.Transition{}
	for rows.Next() {
		var t engine.Transition
		var at string
		if err := rows.Scan(&t.GraphID, &t.UnitID, &t.Status, &t.Detail, &t.Seq, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse transition timestamp %q: %w", at, err)
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}

	return transitions, nil
}

// Graphs returns the distinct graph ids present in the log, most recently
// written first.
func (s *Store) Graphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT graph_id
		FROM transitions
		GROUP BY graph_id
		ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query graphs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan graph id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}

	return ids, nil
}
