package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/estimator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL UNIQUE,
	profile    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS estimates (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	project_title TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'draft',
	total         REAL NOT NULL DEFAULT 0,
	data          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS estimate_feedback (
	id                  TEXT PRIMARY KEY,
	estimate_id         TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	original_line_items TEXT NOT NULL,
	edited_line_items   TEXT NOT NULL,
	approved            INTEGER NOT NULL DEFAULT 1,
	feedback_notes      TEXT,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_memory (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS advisor_conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	topic      TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	messages   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_estimates_user_created ON estimates(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_estimate ON estimate_feedback(estimate_id);
CREATE INDEX IF NOT EXISTS idx_agent_memory_user_created ON agent_memory(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_advisor_user ON advisor_conversations(user_id, updated_at);
`

// sqliteTimeLayout is fixed width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Company profiles ---

func (s *SQLiteStore) GetProfile(ctx context.Context, accountID string) (*model.CompanyProfile, error) {
	var (
		out                    = &model.CompanyProfile{}
		data, created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, profile, created_at, updated_at FROM company_profiles WHERE user_id = ?`,
		accountID,
	).Scan(&out.ID, &out.AccountID, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", accountID)
	}
	if out.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if out.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return decodeProfile(out, []byte(data))
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO company_profiles (id, user_id, profile, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.ID, p.AccountID, string(data), formatTime(now), formatTime(now),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert profile")
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	} else if n == 0 {
		return ErrProfileExists
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE company_profiles SET profile = ?, updated_at = ? WHERE user_id = ?`,
		string(data), formatTime(now), p.AccountID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile %s", p.AccountID)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// --- Estimates ---

func (s *SQLiteStore) CreateEstimate(ctx context.Context, e *model.Estimate) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.EstimateStatusDraft
	}
	data, err := json.Marshal(toDoc(e))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal estimate")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO estimates (id, user_id, project_title, status, total, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.ProjectTitle, string(e.Status), e.Total, string(data), formatTime(now), formatTime(now),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert estimate")
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (s *SQLiteStore) GetEstimate(ctx context.Context, accountID, id string) (*model.Estimate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, data, created_at, updated_at FROM estimates WHERE id = ? AND user_id = ?`,
		id, accountID,
	)
	e, err := scanSQLiteEstimate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get estimate %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) ListEstimates(ctx context.Context, accountID string, filter EstimateFilter) ([]model.Estimate, error) {
	query := `SELECT id, user_id, status, data, created_at, updated_at FROM estimates WHERE user_id = ?`
	args := []any{accountID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list estimates")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Estimate{}
	for rows.Next() {
		e, err := scanSQLiteEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan estimate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate estimates")
}

func (s *SQLiteStore) UpdateEstimate(ctx context.Context, e *model.Estimate) error {
	now := time.Now().UTC()
	data, err := json.Marshal(toDoc(e))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal estimate")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE estimates SET project_title = ?, status = ?, total = ?, data = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		e.ProjectTitle, string(e.Status), e.Total, string(data), formatTime(now), e.ID, e.AccountID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update estimate %s", e.ID)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeleteEstimate(ctx context.Context, accountID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM estimates WHERE id = ? AND user_id = ?`, id, accountID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete estimate %s", id)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM estimate_feedback WHERE estimate_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete feedback for %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Feedback and memories ---

func (s *SQLiteStore) CreateFeedback(ctx context.Context, f *model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	orig, err := json.Marshal(f.OriginalLineItems)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal original line items")
	}
	edited, err := json.Marshal(f.EditedLineItems)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal edited line items")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO estimate_feedback (id, estimate_id, user_id, original_line_items, edited_line_items, approved, feedback_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EstimateID, f.AccountID, string(orig), string(edited), f.Approved, nullString(f.Notes), formatTime(f.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) AppendMemories(ctx context.Context, accountID string, memories []model.Memory, keep int) error {
	if len(memories) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range memories {
		m := &memories[i]
		prepareMemory(m, accountID)
		meta, err := json.Marshal(m.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal memory metadata")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agent_memory (id, user_id, memory_type, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.AccountID, string(m.Type), m.Content, string(meta), formatTime(m.CreatedAt),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert memory")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM agent_memory WHERE user_id = ?1 AND id NOT IN (
			SELECT id FROM agent_memory WHERE user_id = ?1 ORDER BY created_at DESC, id DESC LIMIT ?2)`,
		accountID, memoryCap(keep),
	); err != nil {
		return eris.Wrap(err, "sqlite: prune memories")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) RecentMemories(ctx context.Context, accountID string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, memory_type, content, metadata, created_at FROM agent_memory
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent memories")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Memory
	for rows.Next() {
		var (
			m              model.Memory
			mtype, created string
			meta           sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &mtype, &m.Content, &meta, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan memory")
		}
		m.Type = model.MemoryType(mtype)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal memory metadata")
			}
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate memories")
}

// --- Advisor conversations ---

func (s *SQLiteStore) GetAdvisorConversation(ctx context.Context, accountID, id string) (*model.AdvisorConversation, error) {
	var (
		c                model.AdvisorConversation
		topic, msgs      string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, topic, title, messages, created_at, updated_at FROM advisor_conversations
		 WHERE id = ? AND user_id = ?`,
		id, accountID,
	).Scan(&c.ID, &c.AccountID, &topic, &c.Title, &msgs, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get advisor conversation %s", id)
	}
	c.Topic = model.AdvisorTopic(topic)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msgs), &c.Messages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal advisor messages")
	}
	return &c, nil
}

func (s *SQLiteStore) SaveAdvisorConversation(ctx context.Context, c *model.AdvisorConversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	msgs, err := json.Marshal(c.Messages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal advisor messages")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO advisor_conversations (id, user_id, topic, title, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, messages = excluded.messages, updated_at = excluded.updated_at
		 WHERE advisor_conversations.user_id = excluded.user_id`,
		c.ID, c.AccountID, string(c.Topic), c.Title, string(msgs), formatTime(c.CreatedAt), formatTime(now),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save advisor conversation")
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteEstimate(row scannable) (*model.Estimate, error) {
	var (
		e                model.Estimate
		status, data     string
		created, updated string
	)
	if err := row.Scan(&e.ID, &e.AccountID, &status, &data, &created, &updated); err != nil {
		return nil, err
	}
	e.Status = model.EstimateStatus(status)
	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	var doc estimateDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, eris.Wrap(err, "unmarshal estimate")
	}
	doc.apply(&e)
	return &e, nil
}
