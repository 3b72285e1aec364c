// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/contact-intake/internal/intake"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "leads"

// LeadStoreConfig controls the Postgres connection pool used for lead rows.
type LeadStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// LeadStore implements intake.LeadStore on Postgres.
type LeadStore struct {
	pool  pgxPool
	table string
}

// NewLeadStore creates a Postgres-backed LeadStore using the provided config.
func NewLeadStore(ctx context.Context, cfg LeadStoreConfig) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{pool: pool, table: table}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(pool pgxPool, table string) (*LeadStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LeadStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *LeadStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the lead table and its sync-status index if missing.
func (s *LeadStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(schemaTemplate, s.table)); err != nil {
		return fmt.Errorf("ensure lead schema: %w", err)
	}
	return nil
}

// Insert stores a new lead and returns it with its assigned id.
func (s *LeadStore) Insert(ctx context.Context, lead intake.NewLead) (intake.Lead, error) {
	status := lead.SyncStatus
	if status == "" {
		status = intake.SyncStatusPending
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	name,
	email,
	phone,
	message,
	is_suspicious,
	suspicion_reason,
	sync_status
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) RETURNING id::text, created_at`, s.table)

	out := intake.Lead{
		Name:            lead.Name,
		Email:           lead.Email,
		Phone:           lead.Phone,
		Message:         lead.Message,
		IsSuspicious:    lead.IsSuspicious,
		SuspicionReason: lead.SuspicionReason,
		SyncStatus:      status,
	}
	err := s.pool.QueryRow(ctx, query,
		lead.Name,
		lead.Email,
		nullable(lead.Phone),
		lead.Message,
		lead.IsSuspicious,
		nullable(string(lead.SuspicionReason)),
		string(status),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return intake.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return out, nil
}

// UpdateSync records a sync attempt on an existing lead.
func (s *LeadStore) UpdateSync(ctx context.Context, leadID string, update intake.SyncUpdate) error {
	if !update.Status.Valid() {
		return fmt.Errorf("invalid sync status %q", update.Status)
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	sync_status = $1,
	external_crm_id = COALESCE($2, external_crm_id),
	last_sync_attempt = $3
WHERE id = $4`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		string(update.Status),
		nullable(update.ExternalCRMID),
		update.AttemptedAt,
		leadID,
	)
	if err != nil {
		return fmt.Errorf("update lead sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return intake.ErrLeadNotFound
	}
	return nil
}

// ListBySyncStatus returns up to limit leads in status, oldest first.
func (s *LeadStore) ListBySyncStatus(ctx context.Context, status intake.SyncStatus, limit int) ([]intake.Lead, error) {
	query := fmt.Sprintf(`
SELECT
	id::text,
	name,
	email,
	phone,
	message,
	is_suspicious,
	suspicion_reason,
	sync_status,
	external_crm_id,
	last_sync_attempt,
	created_at
FROM %s
WHERE sync_status = $1
ORDER BY created_at ASC
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []intake.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

// Get loads one lead by id.
func (s *LeadStore) Get(ctx context.Context, leadID string) (intake.Lead, error) {
	query := fmt.Sprintf(`
SELECT
	id::text,
	name,
	email,
	phone,
	message,
	is_suspicious,
	suspicion_reason,
	sync_status,
	external_crm_id,
	last_sync_attempt,
	created_at
FROM %s
WHERE id = $1`, s.table)

	lead, err := scanLead(s.pool.QueryRow(ctx, query, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intake.Lead{}, intake.ErrLeadNotFound
		}
		return intake.Lead{}, err
	}
	return lead, nil
}

func scanLead(row pgx.Row) (intake.Lead, error) {
	var (
		lead       intake.Lead
		phone      *string
		reason     *string
		status     string
		externalID *string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&phone,
		&lead.Message,
		&lead.IsSuspicious,
		&reason,
		&status,
		&externalID,
		&lead.LastSyncAttempt,
		&lead.CreatedAt,
	); err != nil {
		return intake.Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	if phone != nil {
		lead.Phone = *phone
	}
	if reason != nil {
		lead.SuspicionReason = intake.SuspicionReason(*reason)
	}
	if externalID != nil {
		lead.ExternalCRMID = *externalID
	}
	lead.SyncStatus = intake.SyncStatus(status)
	return lead, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
