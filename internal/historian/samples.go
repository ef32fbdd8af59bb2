package historian

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/san-kum/looptune/internal/dynamo"
)

const insertSample = `INSERT INTO samples(ts_utc, tag_id, value, quality, session_id) VALUES (?,?,?,?,?)`

// Row is one sample addressed by tag name.
type Row struct {
	Tag    string
	Sample dynamo.Sample
}

// WriteSamples inserts samples of one tag in a single transaction.
// session 0 stores them outside any session.
func (h *DB) WriteSamples(ctx context.Context, session int64, tag string, samples []dynamo.Sample) error {
	rows := make([]Row, len(samples))
	for i, s := range samples {
		rows[i] = Row{Tag: tag, Sample: s}
	}
	return h.WriteRows(ctx, session, rows)
}

// WriteRows inserts samples of any tags in a single transaction.
func (h *DB) WriteRows(ctx context.Context, session int64, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make(map[string]int64)
	for _, r := range rows {
		if _, ok := ids[r.Tag]; ok {
			continue
		}
		id, err := h.TagID(ctx, r.Tag, "", "")
		if err != nil {
			return err
		}
		ids[r.Tag] = id
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSample)
	if err != nil {
		return err
	}
	defer stmt.Close()

	sid := sessionArg(session)
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, toEpoch(r.Sample.Time), ids[r.Tag], r.Sample.Value, r.Sample.Quality, sid); err != nil {
			return fmt.Errorf("insert %s sample: %w", r.Tag, err)
		}
	}
	return tx.Commit()
}

// Series returns the samples of tag with from <= ts <= to, oldest first.
// A zero to means no upper bound.
func (h *DB) Series(ctx context.Context, tag string, from, to time.Time) (dynamo.Series, error) {
	hi := toEpoch(to)
	if to.IsZero() {
		hi = 1e18
	}
	return h.query(ctx, tag,
		`SELECT s.ts_utc, s.value, s.quality FROM samples s JOIN tags t ON t.tag_id = s.tag_id
		 WHERE t.name=? AND s.ts_utc BETWEEN ? AND ? ORDER BY s.ts_utc`,
		tag, toEpoch(from), hi)
}

// SessionSeries returns every sample of tag recorded in session.
func (h *DB) SessionSeries(ctx context.Context, session int64, tag string) (dynamo.Series, error) {
	return h.query(ctx, tag,
		`SELECT s.ts_utc, s.value, s.quality FROM samples s JOIN tags t ON t.tag_id = s.tag_id
		 WHERE t.name=? AND s.session_id=? ORDER BY s.ts_utc`,
		tag, session)
}

func (h *DB) query(ctx context.Context, tag, q string, args ...any) (dynamo.Series, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return dynamo.Series{}, err
	}
	defer rows.Close()

	series := dynamo.Series{Tag: tag}
	for rows.Next() {
		var (
			ts float64
			s  dynamo.Sample
		)
		if err := rows.Scan(&ts, &s.Value, &s.Quality); err != nil {
			return dynamo.Series{}, err
		}
		s.Time = fromEpoch(ts)
		series.Samples = append(series.Samples, s)
	}
	return series, rows.Err()
}

func sessionArg(session int64) sql.NullInt64 {
	return sql.NullInt64{Int64: session, Valid: session != 0}
}
