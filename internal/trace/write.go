package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/rhale/cascade/internal/engine"
)

// RecordTransition appends one status transition to the log. Store
// satisfies engine.Recorder, so it can be wired directly into an engine
// via engine.WithRecorder.
//
// Timestamps are stored as RFC 3339 nanosecond strings in UTC so rows
// compare and sort textually.
func (s *Store) RecordTransition(ctx context.Context, t engine.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (graph_id, unit_id, status, detail, seq, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		t.GraphID,
		t.UnitID,
		t.Status,
		t.Detail,
		t.Seq,
		t.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}
