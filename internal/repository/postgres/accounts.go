package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planbeam/identity-service/internal/core/domain"
	"github.com/planbeam/identity-service/internal/core/port"
	"github.com/planbeam/identity-service/internal/repository"
)

const accountColumns = "id, username, email, secret_hash, status, failed_attempts, locked_until, secret_changed_at, reset_digest, reset_created_at, reset_expires_at, display_name, timezone, registered_at, last_login"

// AccountRepository implements port.AccountRepository using PostgreSQL.
// Lockout mutations run as single UPDATE statements so two concurrent failed
// logins for the same account cannot both observe the pre-increment count.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	query := r.builder.Insert("accounts").
		Columns(
			"id",
			"username",
			"email",
			"secret_hash",
			"status",
			"failed_attempts",
			"locked_until",
			"secret_changed_at",
			"display_name",
			"timezone",
			"registered_at",
		).
		Values(
			account.ID,
			domain.NormalizeIdentifier(account.Username),
			domain.NormalizeIdentifier(account.Email),
			account.SecretHash,
			account.Status,
			account.FailedAttempts,
			account.LockedUntil,
			account.SecretChangedAt,
			account.Profile.DisplayName,
			account.Profile.Timezone,
			account.RegisteredAt,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves an account by normalized username or email.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	normalized := domain.NormalizeIdentifier(identifier)

	stmt, args, err := r.selectAccounts().
		Where(squirrel.Or{
			squirrel.Eq{"username": normalized},
			squirrel.Eq{"email": normalized},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by identifier sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordFailure atomically increments failed_attempts and sets the lock when
// the post-increment count reaches threshold.
func (r *AccountRepository) RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (*domain.Account, error) {
	lockUntil := at.Add(lockFor)

	row := r.exec.QueryRow(ctx, `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id = $1
		RETURNING `+accountColumns,
		id, threshold, lockUntil,
	)

	return r.scanAccount(row)
}

// ResetLockout zeroes the failed-attempt counter and clears any lock.
func (r *AccountRepository) ResetLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset lockout sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordLogin stamps a successful login and resets the lockout counters.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("last_login", at).
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateSecret replaces the secret hash and bumps secret_changed_at.
func (r *AccountRepository) UpdateSecret(ctx context.Context, id, secretHash string, at time.Time) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("secret_hash", secretHash).
		Set("secret_changed_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update secret sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SecretHistory returns up to limit prior secret hashes, newest first.
func (r *AccountRepository) SecretHistory(ctx context.Context, id string, limit int) ([]string, error) {
	query := r.builder.Select("secret_hash").
		From("account_secret_history").
		Where(squirrel.Eq{"account_id": id}).
		OrderBy("set_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select secret history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select secret history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan secret history: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secret history: %w", err)
	}

	return hashes, nil
}

// AddSecretHistory pushes a prior hash and evicts the oldest beyond keep.
func (r *AccountRepository) AddSecretHistory(ctx context.Context, id, secretHash string, at time.Time, keep int) error {
	stmt, args, err := r.builder.Insert("account_secret_history").
		Columns("account_id", "secret_hash", "set_at").
		Values(id, secretHash, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert secret history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert secret history: %w", err)
	}

	if keep <= 0 {
		return nil
	}

	if _, err := r.exec.Exec(ctx, `
		DELETE FROM account_secret_history
		WHERE account_id = $1
		  AND id NOT IN (
			SELECT id FROM account_secret_history
			WHERE account_id = $1
			ORDER BY set_at DESC
			LIMIT $2
		  )`,
		id, keep,
	); err != nil {
		return fmt.Errorf("trim secret history: %w", err)
	}

	return nil
}

// SetResetToken stores the single active reset token, superseding any
// previous one.
func (r *AccountRepository) SetResetToken(ctx context.Context, id string, token domain.ResetToken) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("reset_digest", token.DigestHash).
		Set("reset_created_at", token.CreatedAt).
		Set("reset_expires_at", token.ExpiresAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByResetDigest retrieves the account owning the reset token digest.
func (r *AccountRepository) GetByResetDigest(ctx context.Context, digest string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"reset_digest": digest}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by reset digest sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// ClearResetToken removes the active reset token, if any.
func (r *AccountRepository) ClearResetToken(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("reset_digest", nil).
		Set("reset_created_at", nil).
		Set("reset_expires_at", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetStatus flips the account's active/disabled flag.
func (r *AccountRepository) SetStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set status sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendActivity records one activity entry and evicts the oldest beyond keep.
func (r *AccountRepository) AppendActivity(ctx context.Context, id string, entry domain.ActivityEntry, keep int) error {
	stmt, args, err := r.builder.Insert("account_activity").
		Columns("account_id", "action", "source_addr", "user_agent", "at", "success").
		Values(id, entry.Action, entry.SourceAddr, entry.UserAgent, entry.At, entry.Success).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert activity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	if keep <= 0 {
		return nil
	}

	if _, err := r.exec.Exec(ctx, `
		DELETE FROM account_activity
		WHERE account_id = $1
		  AND id NOT IN (
			SELECT id FROM account_activity
			WHERE account_id = $1
			ORDER BY at DESC
			LIMIT $2
		  )`,
		id, keep,
	); err != nil {
		return fmt.Errorf("trim activity: %w", err)
	}

	return nil
}

// ListActivity returns up to limit activity entries, newest first.
func (r *AccountRepository) ListActivity(ctx context.Context, id string, limit int) ([]domain.ActivityEntry, error) {
	query := r.builder.Select("action", "source_addr", "user_agent", "at", "success").
		From("account_activity").
		Where(squirrel.Eq{"account_id": id}).
		OrderBy("at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select activity sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select activity: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(&entry.Action, &entry.SourceAddr, &entry.UserAgent, &entry.At, &entry.Success); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}

	return entries, nil
}

func (r *AccountRepository) selectAccounts() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"username",
		"email",
		"secret_hash",
		"status",
		"failed_attempts",
		"locked_until",
		"secret_changed_at",
		"reset_digest",
		"reset_created_at",
		"reset_expires_at",
		"display_name",
		"timezone",
		"registered_at",
		"last_login",
	).From("accounts")
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account        domain.Account
		lockedUntil    *time.Time
		lastLogin      *time.Time
		resetDigest    *string
		resetCreatedAt *time.Time
		resetExpiresAt *time.Time
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.SecretHash,
		&account.Status,
		&account.FailedAttempts,
		&lockedUntil,
		&account.SecretChangedAt,
		&resetDigest,
		&resetCreatedAt,
		&resetExpiresAt,
		&account.Profile.DisplayName,
		&account.Profile.Timezone,
		&account.RegisteredAt,
		&lastLogin,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.LockedUntil = lockedUntil
	account.LastLogin = lastLogin
	if resetDigest != nil && resetCreatedAt != nil && resetExpiresAt != nil {
		account.ResetToken = &domain.ResetToken{
			DigestHash: *resetDigest,
			CreatedAt:  *resetCreatedAt,
			ExpiresAt:  *resetExpiresAt,
		}
	}

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
