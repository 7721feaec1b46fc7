package calllog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Resinat/Dashgate/internal/model"
	"go.uber.org/zap"
)

// Repo reads and writes call records.
type Repo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepo wraps an opened database. See OpenDB.
func NewRepo(db *sql.DB, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{db: db, logger: logger}
}

// Close closes the database.
func (r *Repo) Close() error {
	return r.db.Close()
}

const callColumns = `id, ts_ns, request_id, domain, operation, http_method, target_url,
	http_status, outcome, duration_ns, credential_fp, error_kind, error_message,
	response_body_bytes`

// InsertBatch inserts records in one transaction and returns how many rows
// were written. A failing row is skipped, not fatal.
func (r *Repo) InsertBatch(records []model.CallRecord) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("calllog repo begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO downstream_calls (` + callColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("calllog repo prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		res, err := stmt.Exec(
			rec.ID, rec.TsNs, rec.RequestID, rec.Domain, rec.Operation, rec.HTTPMethod, rec.TargetURL,
			rec.HTTPStatus, rec.Outcome, rec.DurationNs, rec.CredentialFP, rec.ErrorKind, rec.ErrorMessage,
			rec.ResponseBodyBytes,
		)
		if err != nil {
			r.logger.Warn("call log row insert failed", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("calllog repo commit: %w", err)
	}
	return inserted, nil
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Domain    string
	Operation string
	Outcome   string
	RequestID string
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 10000
)

// List returns matching records newest first, plus the total match count.
func (r *Repo) List(f ListFilter) ([]model.CallRecord, int, error) {
	var where []string
	var args []any
	for _, cond := range []struct {
		column, value string
	}{
		{"domain", f.Domain},
		{"operation", f.Operation},
		{"outcome", f.Outcome},
		{"request_id", f.RequestID},
	} {
		if cond.value != "" {
			where = append(where, cond.column+" = ?")
			args = append(args, cond.value)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM downstream_calls`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("calllog repo count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(f.Offset, 0)

	rows, err := r.db.Query(`SELECT `+callColumns+` FROM downstream_calls`+clause+
		` ORDER BY ts_ns DESC, id ASC LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("calllog repo list: %w", err)
	}
	defer rows.Close()

	out := []model.CallRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("calllog repo scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("calllog repo list: %w", err)
	}
	return out, total, nil
}

// GetByID returns the record with id, or nil when absent.
func (r *Repo) GetByID(id string) (*model.CallRecord, error) {
	row := r.db.QueryRow(`SELECT `+callColumns+` FROM downstream_calls WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calllog repo get %s: %w", id, err)
	}
	return &rec, nil
}

// Prune keeps the newest retain rows and deletes the rest.
func (r *Repo) Prune(retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	res, err := r.db.Exec(`DELETE FROM downstream_calls WHERE id IN (
		SELECT id FROM downstream_calls ORDER BY ts_ns DESC, id ASC LIMIT -1 OFFSET ?
	)`, retain)
	if err != nil {
		return 0, fmt.Errorf("calllog repo prune: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored rows.
func (r *Repo) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM downstream_calls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("calllog repo count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.CallRecord, error) {
	var rec model.CallRecord
	err := s.Scan(
		&rec.ID, &rec.TsNs, &rec.RequestID, &rec.Domain, &rec.Operation, &rec.HTTPMethod, &rec.TargetURL,
		&rec.HTTPStatus, &rec.Outcome, &rec.DurationNs, &rec.CredentialFP, &rec.ErrorKind, &rec.ErrorMessage,
		&rec.ResponseBodyBytes,
	)
	return rec, err
}
