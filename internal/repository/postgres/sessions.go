package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/repository"
)

// SessionRepository implements port.SessionRepository using PostgreSQL.
// Rotation runs inside a transaction so an old refresh token can be consumed
// by at most one concurrent request.
type SessionRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewSessionRepository wires a PostgreSQL-backed session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert appends a session and evicts the oldest entries beyond capacity.
func (r *SessionRepository) Insert(ctx context.Context, session domain.Session, capacity int) ([]domain.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.insertRow(ctx, tx, session); err != nil {
		return nil, err
	}

	var evicted []domain.Session
	if capacity > 0 {
		rows, err := tx.Query(ctx, `
			DELETE FROM account_sessions
			WHERE account_id = $1
			  AND refresh_token_id NOT IN (
				SELECT refresh_token_id FROM account_sessions
				WHERE account_id = $1
				ORDER BY issued_at DESC
				LIMIT $2
			  )
			RETURNING id, account_id, refresh_token_id, issued_at, expires_at, source_addr, user_agent`,
			session.AccountID, capacity,
		)
		if err != nil {
			return nil, fmt.Errorf("evict sessions: %w", err)
		}
		evicted, err = collectSessions(rows)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert session tx: %w", err)
	}

	return evicted, nil
}

// GetByTokenID returns the session holding the refresh-token ID.
func (r *SessionRepository) GetByTokenID(ctx context.Context, accountID, refreshTokenID string) (*domain.Session, error) {
	stmt, args, err := r.selectSessions().
		Where(squirrel.Eq{"account_id": accountID, "refresh_token_id": refreshTokenID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	row := r.pool.QueryRow(ctx, stmt, args...)

	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.RefreshTokenID,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.SourceAddr,
		&session.UserAgent,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

// Rotate atomically removes the session holding oldTokenID and inserts the
// replacement.
func (r *SessionRepository) Rotate(ctx context.Context, accountID, oldTokenID string, replacement domain.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		"DELETE FROM account_sessions WHERE account_id = $1 AND refresh_token_id = $2",
		accountID, oldTokenID,
	)
	if err != nil {
		return fmt.Errorf("delete rotated session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := r.insertRow(ctx, tx, replacement); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate tx: %w", err)
	}

	return nil
}

// Delete removes the session holding the refresh-token ID, idempotently.
func (r *SessionRepository) Delete(ctx context.Context, accountID, refreshTokenID string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		"DELETE FROM account_sessions WHERE account_id = $1 AND refresh_token_id = $2",
		accountID, refreshTokenID,
	)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteAll clears the account's session set.
func (r *SessionRepository) DeleteAll(ctx context.Context, accountID string) (int, error) {
	ct, err := r.pool.Exec(ctx,
		"DELETE FROM account_sessions WHERE account_id = $1",
		accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete all sessions: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// ListByAccount returns the live sessions ordered oldest first.
func (r *SessionRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	stmt, args, err := r.selectSessions().
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("issued_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return collectSessions(rows)
}

func (r *SessionRepository) insertRow(ctx context.Context, tx pgx.Tx, session domain.Session) error {
	stmt, args, err := r.builder.Insert("account_sessions").
		Columns("id", "account_id", "refresh_token_id", "issued_at", "expires_at", "source_addr", "user_agent").
		Values(session.ID, session.AccountID, session.RefreshTokenID, session.IssuedAt, session.ExpiresAt, session.SourceAddr, session.UserAgent).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) selectSessions() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"account_id",
		"refresh_token_id",
		"issued_at",
		"expires_at",
		"source_addr",
		"user_agent",
	).From("account_sessions")
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.AccountID,
			&session.RefreshTokenID,
			&session.IssuedAt,
			&session.ExpiresAt,
			&session.SourceAddr,
			&session.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
