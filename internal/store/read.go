package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// CurrentValue returns the slot word at key. Unset slots return the zero word.
func (s *Store) CurrentValue(ctx context.Context, key slot.Key) (slot.Value, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, key[:])
	v, err := scanValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return slot.Value{}, nil
	}
	if err != nil {
		return slot.Value{}, fmt.Errorf("read slot: %w", err)
	}
	return v, nil
}

// Slots returns every set slot.
func (s *Store) Slots(ctx context.Context) (map[slot.Key]slot.Value, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM slots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	out := make(map[slot.Key]slot.Value)
	for rows.Next() {
		var rawKey, rawValue []byte
		if err := rows.Scan(&rawKey, &rawValue); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		var k slot.Key
		var v slot.Value
		if err := copyExact(k[:], rawKey, "key"); err != nil {
			return nil, err
		}
		if err := copyExact(v[:], rawValue, "value"); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return out, nil
}

// IsApplied reports whether (direction, id) is in the applied set.
func (s *Store) IsApplied(ctx context.Context, rk request.ReplayKey) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applied WHERE is_exit = ? AND request_id = ?
	`, dirToDB(rk.Direction), idToDB(rk.ID)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check applied: %w", err)
	}
	return count > 0, nil
}

// HasOrigin reports whether an origin event exists for (direction, id).
func (s *Store) HasOrigin(ctx context.Context, rk request.ReplayKey) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
		WHERE phase = 'origin' AND is_exit = ? AND request_id = ?
	`, dirToDB(rk.Direction), idToDB(rk.ID)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check origin: %w", err)
	}
	return count > 0, nil
}

// Events returns events with seq > afterSeq, ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) Events(ctx context.Context, afterSeq int64) ([]request.Event, error) {
	role, err := s.roleOrZero(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []request.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows, role)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// FindOrigin returns the origin event whose request subject matches.
func (s *Store) FindOrigin(ctx context.Context, subject request.Hash) (request.Event, bool, error) {
	role, err := s.roleOrZero(ctx)
	if err != nil {
		return request.Event{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE subject = ? AND phase = 'origin'
		ORDER BY seq ASC
		LIMIT 1
	`, subject[:])
	ev, err := scanEvent(row, role)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Event{}, false, nil
	}
	if err != nil {
		return request.Event{}, false, fmt.Errorf("find origin: %w", err)
	}
	return ev, true, nil
}

// NextOriginID returns one more than the highest committed origin id in dir.
//
// Ids are stored bit-cast to signed integers, so ids at or above 2^63 are
// negative. The largest negative value, when any exists, is the largest id.
func (s *Store) NextOriginID(ctx context.Context, dir request.Direction) (uint64, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CASE WHEN request_id < 0 THEN request_id END), MAX(request_id))
		FROM events WHERE phase = 'origin' AND is_exit = ?
	`, dirToDB(dir)).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("next origin id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	highest := idFromDB(maxID.Int64)
	if highest == math.MaxUint64 {
		return 0, fmt.Errorf("next origin id: %w", request.ErrIDSpaceExhausted)
	}
	return highest + 1, nil
}

// LastSeq returns the highest event seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

func (s *Store) roleOrZero(ctx context.Context) (request.Role, error) {
	role, err := s.Role(ctx)
	if errors.Is(err, ErrNoRole) {
		return 0, nil
	}
	return role, err
}
