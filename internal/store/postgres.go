package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/db"
	"github.com/sells-group/estimator/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL UNIQUE,
	profile    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS estimates (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	project_title TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'draft',
	total         NUMERIC(14,2) NOT NULL DEFAULT 0,
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS estimate_feedback (
	id                  TEXT PRIMARY KEY,
	estimate_id         TEXT NOT NULL REFERENCES estimates(id) ON DELETE CASCADE,
	user_id             TEXT NOT NULL,
	original_line_items JSONB NOT NULL,
	edited_line_items   JSONB NOT NULL,
	approved            BOOLEAN NOT NULL DEFAULT true,
	feedback_notes      TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_memory (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	content     TEXT NOT NULL,
	metadata    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS advisor_conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	topic      TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	messages   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_estimates_user_created ON estimates(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_estimate ON estimate_feedback(estimate_id);
CREATE INDEX IF NOT EXISTS idx_agent_memory_user_created ON agent_memory(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_advisor_user ON advisor_conversations(user_id, updated_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Company profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, accountID string) (*model.CompanyProfile, error) {
	var (
		p    model.CompanyProfile
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, profile, created_at, updated_at FROM company_profiles WHERE user_id = $1`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &data, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", accountID)
	}
	return decodeProfile(&p, data)
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO company_profiles (id, user_id, profile, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.ID, p.AccountID, data, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert profile")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileExists
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE company_profiles SET profile = $1, updated_at = $2 WHERE user_id = $3`,
		data, now, p.AccountID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile %s", p.AccountID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

// --- Estimates ---

func (s *PostgresStore) CreateEstimate(ctx context.Context, e *model.Estimate) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.EstimateStatusDraft
	}
	data, err := json.Marshal(toDoc(e))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal estimate")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO estimates (id, user_id, project_title, status, total, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, e.ProjectTitle, string(e.Status), e.Total, data, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert estimate")
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (s *PostgresStore) GetEstimate(ctx context.Context, accountID, id string) (*model.Estimate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, data, created_at, updated_at FROM estimates WHERE id = $1 AND user_id = $2`,
		id, accountID,
	)
	e, err := scanPgEstimate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get estimate %s", id)
	}
	return e, nil
}

func (s *PostgresStore) ListEstimates(ctx context.Context, accountID string, filter EstimateFilter) ([]model.Estimate, error) {
	query := `SELECT id, user_id, status, data, created_at, updated_at FROM estimates WHERE user_id = $1`
	args := []any{accountID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list estimates")
	}
	defer rows.Close()

	out := []model.Estimate{}
	for rows.Next() {
		e, err := scanPgEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate estimates")
}

func (s *PostgresStore) UpdateEstimate(ctx context.Context, e *model.Estimate) error {
	now := time.Now().UTC()
	data, err := json.Marshal(toDoc(e))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal estimate")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE estimates SET project_title = $1, status = $2, total = $3, data = $4, updated_at = $5
		 WHERE id = $6 AND user_id = $7`,
		e.ProjectTitle, string(e.Status), e.Total, data, now, e.ID, e.AccountID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update estimate %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	e.UpdatedAt = now
	return nil
}

func (s *PostgresStore) DeleteEstimate(ctx context.Context, accountID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM estimates WHERE id = $1 AND user_id = $2`, id, accountID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete estimate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Feedback and memories ---

func (s *PostgresStore) CreateFeedback(ctx context.Context, f *model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	orig, err := json.Marshal(f.OriginalLineItems)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal original line items")
	}
	edited, err := json.Marshal(f.EditedLineItems)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal edited line items")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO estimate_feedback (id, estimate_id, user_id, original_line_items, edited_line_items, approved, feedback_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.EstimateID, f.AccountID, orig, edited, f.Approved, nullString(f.Notes), f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert feedback")
}

var memoryColumns = []string{"id", "user_id", "memory_type", "content", "metadata", "created_at"}

// AppendMemories copies the memories in and prunes the account down to the
// newest keep entries in one transaction.
func (s *PostgresStore) AppendMemories(ctx context.Context, accountID string, memories []model.Memory, keep int) error {
	if len(memories) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(memories))
	for i := range memories {
		m := &memories[i]
		prepareMemory(m, accountID)
		meta, err := json.Marshal(m.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal memory metadata")
		}
		rows = append(rows, []any{m.ID, m.AccountID, string(m.Type), m.Content, meta, m.CreatedAt})
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := db.CopyFrom(ctx, tx, "agent_memory", memoryColumns, rows); err != nil {
			return eris.Wrap(err, "postgres: append memories")
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM agent_memory WHERE user_id = $1 AND id NOT IN (
				SELECT id FROM agent_memory WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2)`,
			accountID, memoryCap(keep),
		)
		return eris.Wrap(err, "postgres: prune memories")
	})
}

func (s *PostgresStore) RecentMemories(ctx context.Context, accountID string, limit int) ([]model.Memory, error) {
	query := `SELECT id, user_id, memory_type, content, metadata, created_at FROM agent_memory
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent memories")
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		var (
			m     model.Memory
			mtype string
			meta  []byte
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &mtype, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan memory")
		}
		m.Type = model.MemoryType(mtype)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal memory metadata")
			}
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate memories")
}

// --- Advisor conversations ---

func (s *PostgresStore) GetAdvisorConversation(ctx context.Context, accountID, id string) (*model.AdvisorConversation, error) {
	var (
		c     model.AdvisorConversation
		topic string
		msgs  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, topic, title, messages, created_at, updated_at FROM advisor_conversations
		 WHERE id = $1 AND user_id = $2`,
		id, accountID,
	).Scan(&c.ID, &c.AccountID, &topic, &c.Title, &msgs, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get advisor conversation %s", id)
	}
	c.Topic = model.AdvisorTopic(topic)
	if err := json.Unmarshal(msgs, &c.Messages); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal advisor messages")
	}
	return &c, nil
}

// SaveAdvisorConversation inserts c, or replaces its title and messages when
// it already exists for the same account.
func (s *PostgresStore) SaveAdvisorConversation(ctx context.Context, c *model.AdvisorConversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	msgs, err := json.Marshal(c.Messages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal advisor messages")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO advisor_conversations (id, user_id, topic, title, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
		 WHERE advisor_conversations.user_id = EXCLUDED.user_id`,
		c.ID, c.AccountID, string(c.Topic), c.Title, msgs, c.CreatedAt, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save advisor conversation")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

func scanPgEstimate(row pgx.Row) (*model.Estimate, error) {
	var (
		e      model.Estimate
		status string
		data   []byte
	)
	if err := row.Scan(&e.ID, &e.AccountID, &status, &data, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = model.EstimateStatus(status)
	var doc estimateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "unmarshal estimate")
	}
	doc.apply(&e)
	return &e, nil
}
