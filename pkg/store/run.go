package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/report"
	"github.com/mchmarny/outlier/pkg/scorer"
	"github.com/pkg/errors"
)

const (
	insertRunSQL = `INSERT INTO run (
			id,
			source,
			columns,
			summary,
			evaluation,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	insertRecordSQL = `INSERT INTO record (
			run_id,
			idx,
			cluster,
			is_outlier,
			data
		)
		VALUES (?, ?, ?, ?, ?)
	`

	selectRunSQL = `SELECT
			id,
			source,
			columns,
			summary,
			evaluation,
			created_at
		FROM run
		WHERE id = ?
	`

	selectRunsSQL = `SELECT
			id,
			source,
			columns,
			summary,
			evaluation,
			created_at
		FROM run
		ORDER BY created_at DESC, id
	`

	selectRecordsSQL = `SELECT data
		FROM record
		WHERE run_id = ?
		ORDER BY idx
		LIMIT ?
	`

	selectOutlierRecordsSQL = `SELECT data
		FROM record
		WHERE run_id = ?
		  AND is_outlier = 1
		ORDER BY idx
		LIMIT ?
	`

	selectFlagsSQL = `SELECT is_outlier
		FROM record
		WHERE run_id = ?
		ORDER BY idx
	`

	selectRecordsAtSQL = `SELECT idx, is_outlier, data
		FROM record
		WHERE run_id = ?
		  AND idx IN (%s)
		ORDER BY idx
	`

	deleteRunSQL = `DELETE FROM run WHERE id = ?`

	// recordsAtBatchSize keeps the IN list under the sqlite variable limit.
	recordsAtBatchSize = 500

	// NoLimit returns every record.
	NoLimit = -1
)

// Run is one scored dataset kept for the session.
type Run struct {
	ID         string             `json:"id" yaml:"id"`
	Source     string             `json:"source" yaml:"source"`
	Columns    []string           `json:"columns" yaml:"columns"`
	Summary    *report.Summary    `json:"summary" yaml:"summary"`
	Evaluation *report.Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
	CreatedAt  time.Time          `json:"created_at" yaml:"created_at"`
}

// NewRun creates a run with a new ID.
func NewRun(source string, sum *report.Summary, eval *report.Evaluation) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Source:     source,
		Summary:    sum,
		Evaluation: eval,
		CreatedAt:  time.Now().UTC(),
	}
}

// SaveRun stores the run and its augmented records in a single transaction.
func SaveRun(ctx context.Context, db *sql.DB, run *Run, res *scorer.Result) error {
	if db == nil {
		return errDBNotInitialized
	}
	if run == nil || res == nil {
		return errors.New("run and result required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	out := res.Augmented()
	run.Columns = out.Columns

	cols, err := json.Marshal(run.Columns)
	if err != nil {
		return errors.Wrap(err, "failed to marshal columns")
	}
	sum, err := json.Marshal(run.Summary)
	if err != nil {
		return errors.Wrap(err, "failed to marshal summary")
	}
	var eval sql.NullString
	if run.Evaluation != nil {
		b, err := json.Marshal(run.Evaluation)
		if err != nil {
			return errors.Wrap(err, "failed to marshal evaluation")
		}
		eval = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, insertRunSQL,
		run.ID, run.Source, string(cols), string(sum), eval, run.CreatedAt.UnixNano()); err != nil {
		return errors.Wrapf(err, "failed to insert run: %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return errors.Wrap(err, "failed to prepare record insert statement")
	}
	defer stmt.Close()

	for i, row := range out.Rows {
		data, err := json.Marshal(row)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal record %d", i)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, res.Labels[i], res.Outliers[i], string(data)); err != nil {
			return errors.Wrapf(err, "failed to insert record %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetRun returns the run for the ID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	r, err := scanRun(db.QueryRowContext(ctx, selectRunSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "id: %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get run: %s", id)
	}
	return r, nil
}

// ListRuns returns all runs of the session, newest first.
func ListRuns(ctx context.Context, db *sql.DB) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return list, nil
}

// DeleteRun removes the run and its records.
func DeleteRun(ctx context.Context, db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	res, err := db.ExecContext(ctx, deleteRunSQL, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete run: %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "id: %s", id)
	}
	return nil
}

// GetDataset returns up to limit augmented records of the run in input order.
func GetDataset(ctx context.Context, db *sql.DB, id string, limit int) (*dataset.Dataset, error) {
	return queryRecords(ctx, db, id, selectRecordsSQL, limit)
}

// GetOutliers returns up to limit records flagged as outliers in input order.
func GetOutliers(ctx context.Context, db *sql.DB, id string, limit int) (*dataset.Dataset, error) {
	return queryRecords(ctx, db, id, selectOutlierRecordsSQL, limit)
}

// GetFlags returns the outlier flags of the run in input order.
func GetFlags(ctx context.Context, db *sql.DB, id string) ([]bool, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.QueryContext(ctx, selectFlagsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query flags: %s", id)
	}
	defer rows.Close()

	flags := make([]bool, 0)
	for rows.Next() {
		var v bool
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan flag")
		}
		flags = append(flags, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate flags")
	}
	return flags, nil
}

func queryRecords(ctx context.Context, db *sql.DB, id, query string, limit int) (*dataset.Dataset, error) {
	run, err := GetRun(ctx, db, id)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, id, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query records: %s", id)
	}
	defer rows.Close()

	d := &dataset.Dataset{
		Columns: run.Columns,
		Rows:    make([][]string, 0),
	}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		var row []string
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal record")
		}
		d.Rows = append(d.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate records")
	}
	return d, nil
}

// Records is a subset of the run records with their row indexes and outlier flags.
type Records struct {
	Data     *dataset.Dataset
	Indexes  []int
	Outliers []bool
}

// GetRecordsAt returns the records at the given ascending row indexes.
// Indexes past the end of the run are skipped.
func GetRecordsAt(ctx context.Context, db *sql.DB, id string, indexes []int) (*Records, error) {
	run, err := GetRun(ctx, db, id)
	if err != nil {
		return nil, err
	}

	recs := &Records{
		Data: &dataset.Dataset{
			Columns: run.Columns,
			Rows:    make([][]string, 0, len(indexes)),
		},
		Indexes:  make([]int, 0, len(indexes)),
		Outliers: make([]bool, 0, len(indexes)),
	}

	for start := 0; start < len(indexes); start += recordsAtBatchSize {
		batch := indexes[start:min(start+recordsAtBatchSize, len(indexes))]
		if err := queryRecordsAt(ctx, db, id, batch, recs); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func queryRecordsAt(ctx context.Context, db *sql.DB, id string, batch []int, recs *Records) error {
	args := make([]any, 0, len(batch)+1)
	args = append(args, id)
	for _, i := range batch {
		args = append(args, i)
	}
	query := fmt.Sprintf(selectRecordsAtSQL, strings.TrimSuffix(strings.Repeat("?,", len(batch)), ","))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to query records: %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx     int
			outlier bool
			data    string
			row     []string
		)
		if err := rows.Scan(&idx, &outlier, &data); err != nil {
			return errors.Wrap(err, "failed to scan record")
		}
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return errors.Wrap(err, "failed to unmarshal record")
		}
		recs.Data.Rows = append(recs.Data.Rows, row)
		recs.Indexes = append(recs.Indexes, idx)
		recs.Outliers = append(recs.Outliers, outlier)
	}
	return errors.Wrap(rows.Err(), "failed to iterate records")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r       Run
		cols    string
		sum     string
		eval    sql.NullString
		created int64
	)
	if err := s.Scan(&r.ID, &r.Source, &cols, &sum, &eval, &created); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cols), &r.Columns); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal columns")
	}
	r.Summary = &report.Summary{}
	if err := json.Unmarshal([]byte(sum), r.Summary); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal summary")
	}
	if eval.Valid {
		r.Evaluation = &report.Evaluation{}
		if err := json.Unmarshal([]byte(eval.String), r.Evaluation); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal evaluation")
		}
	}

	r.CreatedAt = time.Unix(0, created).UTC()
	return &r, nil
}
