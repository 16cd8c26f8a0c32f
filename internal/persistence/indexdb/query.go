package indexdb

import (
	"context"
	"database/sql"
	"errors"

	"actionforge.ai/internal/sim/action"
)

type RequestRow struct {
	Tick      uint64
	RequestID string
	Type      action.TypeID
}

// RequestsBy lists the indexed requests from one messenger, oldest first.
func (s *SQLiteIndex) RequestsBy(ctx context.Context, m action.MessengerID, limit int) ([]RequestRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, request_id, type FROM requests WHERE messenger_id = ? ORDER BY tick, seq LIMIT ?`,
		string(m), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestRow
	for rows.Next() {
		var r RequestRow
		var tick int64
		var typ string
		if err := rows.Scan(&tick, &r.RequestID, &typ); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.Type = action.TypeID(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOutcomes returns how many events of each type were indexed.
func (s *SQLiteIndex) CountOutcomes(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM outcomes GROUP BY event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var ev string
		var n int
		if err := rows.Scan(&ev, &n); err != nil {
			return nil, err
		}
		out[ev] = n
	}
	return out, rows.Err()
}

// TickDigest returns the digest indexed for tick.
func (s *SQLiteIndex) TickDigest(ctx context.Context, tick uint64) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick = ?`, int64(tick)).Scan(&d)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return d, true, nil
}
