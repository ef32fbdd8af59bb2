package historian

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/identify"
	"github.com/san-kum/looptune/internal/process"
)

// Align joins a PV series to an OP series by zero-order hold: each good PV
// sample is paired with the latest good OP sample at or before it. PV
// samples before the first OP sample are dropped. Times are seconds from
// the first kept PV sample.
func Align(op, pv dynamo.Series) (t, u, y []float64) {
	good := func(s dynamo.Series) []dynamo.Sample {
		out := make([]dynamo.Sample, 0, len(s.Samples))
		for _, smp := range s.Samples {
			if smp.Good() {
				out = append(out, smp)
			}
		}
		return out
	}
	ops, pvs := good(op), good(pv)

	j := -1
	var t0 time.Time
	for _, p := range pvs {
		for j+1 < len(ops) && !ops[j+1].Time.After(p.Time) {
			j++
		}
		if j < 0 {
			continue
		}
		if len(t) == 0 {
			t0 = p.Time
		}
		t = append(t, p.Time.Sub(t0).Seconds())
		u = append(u, ops[j].Value)
		y = append(y, p.Value)
	}
	return t, u, y
}

// StepTest loads two tags of a session, aligns them and segments the step.
func (h *DB) StepTest(ctx context.Context, session int64, opTag, pvTag string, opts identify.SegmentOptions) (identify.StepTestRecord, error) {
	op, err := h.SessionSeries(ctx, session, opTag)
	if err != nil {
		return identify.StepTestRecord{}, err
	}
	pv, err := h.SessionSeries(ctx, session, pvTag)
	if err != nil {
		return identify.StepTestRecord{}, err
	}
	if len(op.Samples) == 0 || len(pv.Samples) == 0 {
		return identify.StepTestRecord{}, fmt.Errorf("%w: session %d has %d %s and %d %s samples",
			dynamo.ErrInsufficientData, session, len(op.Samples), opTag, len(pv.Samples), pvTag)
	}

	t, u, y := Align(op, pv)
	rec, err := identify.Segment(t, u, y, opts)
	if err != nil {
		return identify.StepTestRecord{}, fmt.Errorf("session %d: %w", session, err)
	}
	h.log.Debug("segmented step test",
		slog.Int64("session", session),
		slog.Int("samples", len(t)),
		slog.Float64("step_time", rec.StepTime()),
		slog.Float64("delta_u", rec.DeltaU()))
	return rec, nil
}

// SaveStepTest stores rec and returns its id. session 0 means none.
func (h *DB) SaveStepTest(ctx context.Context, session int64, opTag, pvTag string, rec identify.StepTestRecord) (int64, error) {
	blob, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	res, err := h.db.ExecContext(ctx,
		`INSERT INTO step_tests(session_id, op_tag, pv_tag, step_time, delta_u, delta_y, record_json, created_utc) VALUES (?,?,?,?,?,?,?,?)`,
		sessionArg(session), opTag, pvTag, rec.StepTime(), rec.DeltaU(), rec.DeltaY(), string(blob), toEpoch(h.now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LoadStepTest reads back a stored record.
func (h *DB) LoadStepTest(ctx context.Context, id int64) (identify.StepTestRecord, error) {
	var blob string
	err := h.db.QueryRowContext(ctx, `SELECT record_json FROM step_tests WHERE step_test_id=?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return identify.StepTestRecord{}, fmt.Errorf("%w: step test %d", ErrNotFound, id)
	}
	if err != nil {
		return identify.StepTestRecord{}, err
	}
	var rec identify.StepTestRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return identify.StepTestRecord{}, err
	}
	return rec, nil
}

// SaveFit stores a fit result against a step test (0 for none).
func (h *DB) SaveFit(ctx context.Context, stepTestID int64, res identify.FitResult) error {
	params, err := json.Marshal(res.Params)
	if err != nil {
		return err
	}
	var st sql.NullInt64
	if stepTestID != 0 {
		st = sql.NullInt64{Int64: stepTestID, Valid: true}
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO model_fits(fit_id, step_test_id, family, params_json, offset_value, sse, r2, rmse, n, algorithm, status, created_utc) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.ID, st, string(res.Family), string(params), res.Offset, res.SSE, res.R2, res.RMSE, res.N, res.Algorithm, nullable(res.Status), toEpoch(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert fit %s: %w", res.ID, err)
	}
	h.log.Info("saved model fit",
		slog.String("fit", res.ID),
		slog.String("family", string(res.Family)),
		slog.Float64("r2", res.R2))
	return nil
}

// Fits returns the stored fits of a step test, or of all step tests when
// stepTestID is 0, best R² first. Model is rebuilt from the stored
// parameters.
func (h *DB) Fits(ctx context.Context, stepTestID int64) ([]identify.FitResult, error) {
	q := `SELECT fit_id, family, params_json, offset_value, sse, r2, rmse, n, algorithm, COALESCE(status,''), created_utc FROM model_fits`
	var args []any
	if stepTestID != 0 {
		q += ` WHERE step_test_id=?`
		args = append(args, stepTestID)
	}
	q += ` ORDER BY r2 DESC, created_utc DESC`

	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []identify.FitResult
	for rows.Next() {
		var (
			f       identify.FitResult
			family  string
			params  string
			created float64
		)
		if err := rows.Scan(&f.ID, &family, &params, &f.Offset, &f.SSE, &f.R2, &f.RMSE, &f.N, &f.Algorithm, &f.Status, &created); err != nil {
			return nil, err
		}
		f.Family = process.Family(family)
		f.CreatedAt = fromEpoch(created)
		if err := json.Unmarshal([]byte(params), &f.Params); err != nil {
			return nil, fmt.Errorf("fit %s params: %w", f.ID, err)
		}
		if f.Model, err = process.FromParams(f.Family, f.Params); err != nil {
			return nil, fmt.Errorf("fit %s: %w", f.ID, err)
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
