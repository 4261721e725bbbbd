package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/third-eye/overseer/pkg/envelope"
)

// PGStore is the PostgreSQL Store. All writes use plain SQL over the pooled
// *sql.DB; JSON-shaped columns (overrides, next_tools, limits, data,
// metadata) are stored as JSONB. Timestamps are stored in UTC.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle. Migrations must already have run.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	// pgx stdlib surfaces the SQLSTATE in the message for some paths.
	return err != nil && strings.Contains(err.Error(), uniqueViolation)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (p *PGStore) CreateSession(ctx context.Context, s *Session) error {
	overrides, err := marshalJSON(s.Overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	nextTools, err := marshalJSON(s.NextTools)
	if err != nil {
		return fmt.Errorf("marshal next_tools: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO sessions (id, tenant, profile, overrides, next_tools, state_version, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Tenant, s.Profile, overrides, nextTools, s.StateVersion,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PGStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(tenant, ''), profile, overrides, next_tools, state_version, created_at, updated_at
		 FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s         Session
		overrides []byte
		nextTools []byte
	)
	err := row.Scan(&s.ID, &s.Tenant, &s.Profile, &overrides, &nextTools,
		&s.StateVersion, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &s.Overrides); err != nil {
			return nil, fmt.Errorf("unmarshal overrides: %w", err)
		}
	}
	if len(nextTools) > 0 {
		if err := json.Unmarshal(nextTools, &s.NextTools); err != nil {
			return nil, fmt.Errorf("unmarshal next_tools: %w", err)
		}
	}
	return &s, nil
}

func (p *PGStore) ListSessions(ctx context.Context, tenant string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, COALESCE(tenant, ''), profile, overrides, next_tools, state_version, created_at, updated_at
		 FROM sessions`
	args := []any{}
	if tenant != "" {
		query += ` WHERE tenant = $1`
		args = append(args, tenant)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdateSessionSettings(ctx context.Context, id, profile string, overrides map[string]any) error {
	raw, err := marshalJSON(overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET profile = $1, overrides = $2, updated_at = $3 WHERE id = $4`,
		profile, raw, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session settings: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) CASPipelineState(ctx context.Context, id string, fromVersion int, next []envelope.Tool) error {
	raw, err := marshalJSON(next)
	if err != nil {
		return fmt.Errorf("marshal next_tools: %w", err)
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET next_tools = $1, state_version = state_version + 1, updated_at = $2
		 WHERE id = $3 AND state_version = $4`,
		raw, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("cas pipeline state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas pipeline state: %w", err)
	}
	if n == 0 {
		// Distinguish a lost CAS from a missing session.
		if _, getErr := p.GetSession(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

func (p *PGStore) AppendEvent(ctx context.Context, e *PipelineEvent) (int64, error) {
	data, err := marshalJSON(e.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var ok sql.NullBool
	if e.OK != nil {
		ok = sql.NullBool{Bool: *e.OK, Valid: true}
	}

	err = p.db.QueryRowContext(ctx,
		`INSERT INTO pipeline_events (session_id, type, eye, ok, code, tool_version, md, data, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9) RETURNING id`,
		e.SessionID, string(e.Type), e.Eye, ok, e.Code, e.ToolVersion, e.MD, data,
		e.CreatedAt.UTC()).Scan(&e.ID)
	if err != nil {
		return 0, fmt.Errorf("insert pipeline event: %w", err)
	}
	return e.ID, nil
}

func (p *PGStore) ListEvents(ctx context.Context, sessionID string, f EventFilter) ([]*PipelineEvent, error) {
	query := `SELECT id, session_id, type, eye, ok, COALESCE(code, ''), tool_version, md, data, created_at
		 FROM pipeline_events WHERE session_id = $1`
	args := []any{sessionID}

	if f.FromTS != nil {
		args = append(args, f.FromTS.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.ToTS != nil {
		args = append(args, f.ToTS.UTC())
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return p.queryEvents(ctx, query, args...)
}

func (p *PGStore) TailEvents(ctx context.Context, sessionID string, n int) ([]*PipelineEvent, error) {
	if n <= 0 {
		n = 50
	}
	// Inner query takes the newest n, outer restores oldest-first order.
	query := fmt.Sprintf(
		`SELECT id, session_id, type, eye, ok, COALESCE(code, ''), tool_version, md, data, created_at FROM (
			SELECT * FROM pipeline_events WHERE session_id = $1 ORDER BY id DESC LIMIT %d
		 ) tail ORDER BY id ASC`, n)
	return p.queryEvents(ctx, query, sessionID)
}

func (p *PGStore) queryEvents(ctx context.Context, query string, args ...any) ([]*PipelineEvent, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pipeline events: %w", err)
	}
	defer rows.Close()

	var out []*PipelineEvent
	for rows.Next() {
		var (
			e    PipelineEvent
			ok   sql.NullBool
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Eye, &ok, &e.Code,
			&e.ToolVersion, &e.MD, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		if ok.Valid {
			b := ok.Bool
			e.OK = &b
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *PGStore) GetKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, secret_hash, role, COALESCE(tenant, ''), limits, COALESCE(account_id, ''),
		        created_at, expires_at, revoked_at, last_used_at, rotated_at
		 FROM api_keys WHERE secret_hash = $1`, hash)

	var (
		k      APIKey
		limits []byte
	)
	err := row.Scan(&k.ID, &k.SecretHash, &k.Role, &k.Tenant, &limits, &k.AccountID,
		&k.CreatedAt, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt, &k.RotatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &k.Limits); err != nil {
			return nil, fmt.Errorf("unmarshal key limits: %w", err)
		}
	}
	return &k, nil
}

func (p *PGStore) PutKey(ctx context.Context, k *APIKey) error {
	limits, err := marshalJSON(k.Limits)
	if err != nil {
		return fmt.Errorf("marshal key limits: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, secret_hash, role, tenant, limits, account_id,
		                       created_at, expires_at, revoked_at, last_used_at, rotated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   secret_hash = EXCLUDED.secret_hash,
		   role = EXCLUDED.role,
		   tenant = EXCLUDED.tenant,
		   limits = EXCLUDED.limits,
		   account_id = EXCLUDED.account_id,
		   expires_at = EXCLUDED.expires_at,
		   revoked_at = EXCLUDED.revoked_at,
		   rotated_at = EXCLUDED.rotated_at`,
		k.ID, k.SecretHash, string(k.Role), k.Tenant, limits, k.AccountID,
		k.CreatedAt.UTC(), k.ExpiresAt, k.RevokedAt, k.LastUsedAt, k.RotatedAt)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}

func (p *PGStore) TouchKey(ctx context.Context, id string, usedAt time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, usedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, display_name, COALESCE(description, ''), metadata, tags, archived, created_at, updated_at
		 FROM tenants WHERE id = $1`, id)

	var (
		t        Tenant
		metadata []byte
		tags     []byte
	)
	err := row.Scan(&t.ID, &t.DisplayName, &t.Description, &metadata, &tags,
		&t.Archived, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal tenant metadata: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tenant tags: %w", err)
		}
	}
	return &t, nil
}

func (p *PGStore) PutTenant(ctx context.Context, t *Tenant) error {
	metadata, err := marshalJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal tenant metadata: %w", err)
	}
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tenant tags: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO tenants (id, display_name, description, metadata, tags, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   description = EXCLUDED.description,
		   metadata = EXCLUDED.metadata,
		   tags = EXCLUDED.tags,
		   archived = EXCLUDED.archived,
		   updated_at = EXCLUDED.updated_at`,
		t.ID, t.DisplayName, t.Description, metadata, tags, t.Archived,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

func (p *PGStore) GetProfile(ctx context.Context, name string) (map[string]any, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE name = $1`, name)

	var raw []byte
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal profile data: %w", err)
	}
	return data, nil
}

func (p *PGStore) PutProfile(ctx context.Context, name string, data map[string]any) error {
	raw, err := marshalJSON(data)
	if err != nil {
		return fmt.Errorf("marshal profile data: %w", err)
	}

	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO profiles (name, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		name, raw, now)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (p *PGStore) AppendAudit(ctx context.Context, r *AuditRecord) error {
	metadata, err := marshalJSON(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO audit (actor, action, target, metadata, ip, session_id, tenant_id, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`,
		r.Actor, r.Action, r.Target, metadata, r.IP, r.SessionID, r.TenantID,
		r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
