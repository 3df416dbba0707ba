package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/slot"
)

// eventColumns is the SELECT list scanEvent expects.
const eventColumns = `seq, phase, is_exit, request_id, requestor, key, value, hash, subject`

// dirToDB stores a direction as 0 (enter) or 1 (exit).
func dirToDB(d request.Direction) int {
	if d == request.Exit {
		return 1
	}
	return 0
}

// idToDB bit-casts a request id; SQLite integers are signed 64-bit.
func idToDB(id uint64) int64 { return int64(id) }

func idFromDB(v int64) uint64 { return uint64(v) }

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans one events row. role is the owning layer's role, which is
// not stored per row.
func scanEvent(row rowScanner, role request.Role) (request.Event, error) {
	var ev request.Event
	var phase string
	var isExit int
	var id int64
	var requestor, key, value, hash, subject []byte
	if err := row.Scan(&ev.Seq, &phase, &isExit, &id, &requestor, &key, &value, &hash, &subject); err != nil {
		return request.Event{}, err
	}

	p, err := request.ParsePhase(phase)
	if err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	ev.Phase = p
	ev.Role = role
	ev.Request.Direction = request.Direction(isExit == 1)
	ev.Request.ID = idFromDB(id)

	if err := copyExact(ev.Request.Requestor[:], requestor, "requestor"); err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if err := copyExact(ev.Request.Key[:], key, "key"); err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if err := copyExact(ev.Request.Value[:], value, "value"); err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if err := copyExact(ev.Hash[:], hash, "hash"); err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	if err := copyExact(ev.Subject[:], subject, "subject"); err != nil {
		return request.Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	return ev, nil
}

func scanValue(row *sql.Row) (slot.Value, error) {
	var v slot.Value
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return v, err
	}
	if err := copyExact(v[:], raw, "value"); err != nil {
		return v, err
	}
	return v, nil
}

func copyExact(dst, src []byte, field string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%s: want %d bytes, got %d", field, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}
