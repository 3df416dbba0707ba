package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// Seed sets a slot's genesis value outside the request protocol.
// No event is logged.
func (s *Store) Seed(ctx context.Context, key slot.Key, value slot.Value) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key[:], value[:])
	if err != nil {
		return fmt.Errorf("seed slot: %w", err)
	}
	return nil
}

// AppendOrigin logs an origin event. Slots and the applied set are untouched.
//
// Uses ON CONFLICT DO NOTHING against the unique origin index: if
// (direction, id) was already committed on this layer, nothing is written and
// appended=false.
func (s *Store) AppendOrigin(ctx context.Context, role request.Role, req request.Request) (ev request.Event, appended bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("append origin: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("append origin: %w", err)
	}

	ev = request.NewEvent(seq, role, request.PhaseOrigin, req)
	inserted, err := insertEvent(ctx, tx, ev)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("append origin: %w", err)
	}
	if !inserted {
		return request.Event{}, false, nil
	}

	if err := tx.Commit(); err != nil {
		return request.Event{}, false, fmt.Errorf("append origin: commit: %w", err)
	}
	return ev, true, nil
}

// ApplyDestination atomically writes the slot, claims (direction, id) in the
// applied set and logs a destination event.
//
// The applied-set insert uses ON CONFLICT DO NOTHING; if no row was affected
// the request was already applied, the transaction is rolled back, and
// applied=false.
func (s *Store) ApplyDestination(ctx context.Context, role request.Role, req request.Request) (ev request.Event, applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: %w", err)
	}

	// Step 1: append the event (applied.seq references it)
	ev = request.NewEvent(seq, role, request.PhaseDestination, req)
	if _, err := insertEvent(ctx, tx, ev); err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: %w", err)
	}

	// Step 2: claim the replay key
	result, err := tx.ExecContext(ctx, `
		INSERT INTO applied (is_exit, request_id, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(is_exit, request_id) DO NOTHING
	`, dirToDB(req.Direction), idToDB(req.ID), seq)
	if err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: insert applied: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Already applied; rollback discards the event from step 1
		return request.Event{}, false, nil
	}

	// Step 3: write the slot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, req.Key[:], req.Value[:])
	if err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: write slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return request.Event{}, false, fmt.Errorf("apply destination: commit: %w", err)
	}
	return ev, true, nil
}

// nextSeq returns the next logical clock value inside tx.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// insertEvent appends ev. Returns false if a uniqueness constraint
// (origin (direction, id)) already holds a row.
func insertEvent(ctx context.Context, tx *sql.Tx, ev request.Event) (bool, error) {
	req := ev.Request
	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(seq, phase, is_exit, request_id, requestor, key, value, hash, subject)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Seq,
		ev.Phase.String(),
		dirToDB(req.Direction),
		idToDB(req.ID),
		req.Requestor[:],
		req.Key[:],
		req.Value[:],
		ev.Hash[:],
		ev.Subject[:],
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
