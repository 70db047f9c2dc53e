// Package repositories implements domain repositories on PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/postgres"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

type postgresSessionRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewSessionRepository returns a session.Repository storing each session as
// one analysis_sessions row with JSONB payload columns.
func NewSessionRepository(conn *postgres.Connection, log logging.Logger) session.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresSessionRepo{conn: conn, log: log}
}

func (r *postgresSessionRepo) executor() queryExecutor {
	return r.conn.DB()
}

const insertSessionSQL = `
	INSERT INTO analysis_sessions (
		id, labels, accessions, cutoff, summary, structures, result, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

// Save inserts the session. Sessions are immutable, so saving an id twice
// keeps the first row.
func (r *postgresSessionRepo) Save(ctx context.Context, s *session.Session) error {
	labels, err := json.Marshal(s.Labels)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode labels")
	}
	accessions := s.Accessions
	if accessions == nil {
		accessions = []string{}
	}
	accJSON, err := json.Marshal(accessions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode accessions")
	}
	var summary contact.Summary
	if s.Result != nil {
		summary = s.Result.Summary
	}
	sumJSON, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode summary")
	}
	structJSON, err := json.Marshal(s.Structures)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode structures")
	}
	resJSON, err := json.Marshal(s.Result)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}

	_, err = r.executor().ExecContext(ctx, insertSessionSQL,
		s.ID.String(), labels, accJSON, s.Cutoff, sumJSON, structJSON, resJSON,
		s.Duration.Milliseconds(), s.CreatedAt,
	)
	if err != nil {
		r.log.Error("failed to save analysis session", logging.String("id", s.ID.String()), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save analysis session")
	}
	return nil
}

const selectSessionSQL = `
	SELECT id, labels, accessions, cutoff, structures, result, duration_ms, created_at
	FROM analysis_sessions
	WHERE id = $1`

func (r *postgresSessionRepo) FindByID(ctx context.Context, id common.ID) (*session.Session, error) {
	if err := id.Validate(); err != nil {
		return nil, session.NotFound(id)
	}
	row := r.executor().QueryRowContext(ctx, selectSessionSQL, id.String())
	s, err := scanSession(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, session.NotFound(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load analysis session")
	}
	return s, nil
}

func scanSession(row scanner) (*session.Session, error) {
	var (
		id                 string
		labels, accessions []byte
		structures, result []byte
		durationMS         int64
		s                  session.Session
		createdAt          time.Time
	)
	if err := row.Scan(&id, &labels, &accessions, &s.Cutoff, &structures, &result, &durationMS, &createdAt); err != nil {
		return nil, err
	}
	s.ID = common.ID(id)
	s.Duration = time.Duration(durationMS) * time.Millisecond
	s.CreatedAt = createdAt.UTC()

	if err := json.Unmarshal(labels, &s.Labels); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt labels column")
	}
	if err := json.Unmarshal(accessions, &s.Accessions); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt accessions column")
	}
	if err := json.Unmarshal(structures, &s.Structures); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt structures column")
	}
	var res contact.AnalysisResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt result column")
	}
	s.Result = &res
	if len(s.Accessions) == 0 {
		s.Accessions = nil
	}
	return &s, nil
}

const (
	countSessionsSQL = `SELECT COUNT(*) FROM analysis_sessions`
	listSessionsSQL  = `
	SELECT id, labels, accessions, summary, created_at
	FROM analysis_sessions
	ORDER BY created_at DESC, id
	LIMIT $1 OFFSET $2`
)

// List returns headers newest first without loading result payloads.
func (r *postgresSessionRepo) List(ctx context.Context, page common.Pagination) ([]session.Header, int64, error) {
	page = page.Normalize(20, 100)

	var total int64
	if err := r.executor().QueryRowContext(ctx, countSessionsSQL).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count analysis sessions")
	}

	rows, err := r.executor().QueryContext(ctx, listSessionsSQL, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list analysis sessions")
	}
	defer rows.Close()

	out := make([]session.Header, 0, page.PageSize)
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate analysis sessions")
	}
	return out, total, nil
}

func scanHeader(row scanner) (session.Header, error) {
	var (
		h                           session.Header
		id                          string
		labels, accessions, summary []byte
	)
	if err := row.Scan(&id, &labels, &accessions, &summary, &h.CreatedAt); err != nil {
		return h, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan analysis session")
	}
	h.ID = common.ID(id)
	h.CreatedAt = h.CreatedAt.UTC()
	if err := json.Unmarshal(labels, &h.Labels); err != nil {
		return h, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt labels column")
	}
	if err := json.Unmarshal(accessions, &h.Accessions); err != nil {
		return h, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt accessions column")
	}
	if len(h.Accessions) == 0 {
		h.Accessions = nil
	}
	if err := json.Unmarshal(summary, &h.Summary); err != nil {
		return h, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt summary column")
	}
	return h, nil
}

func (r *postgresSessionRepo) Delete(ctx context.Context, id common.ID) error {
	if err := id.Validate(); err != nil {
		return session.NotFound(id)
	}
	res, err := r.executor().ExecContext(ctx, `DELETE FROM analysis_sessions WHERE id = $1`, id.String())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete analysis session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete analysis session")
	}
	if n == 0 {
		return session.NotFound(id)
	}
	return nil
}
