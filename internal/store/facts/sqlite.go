package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		type        TEXT NOT NULL,
		content     TEXT NOT NULL,
		content_key TEXT NOT NULL,
		importance  INTEGER NOT NULL DEFAULT 5,
		tags        TEXT,
		context     TEXT,
		ts          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id, importance DESC, ts DESC);
	CREATE INDEX IF NOT EXISTS idx_facts_user_key ON facts(user_id, content_key);
	CREATE INDEX IF NOT EXISTS idx_facts_user_type ON facts(user_id, type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// NormalizeKey lowercases and collapses whitespace so prefix matching is not
// defeated by casing or spacing differences.
func NormalizeKey(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

func (s *SQLiteStore) Create(ctx context.Context, fact *memory.Fact) error {
	if !memory.ValidFactTypes[fact.Type] {
		return ErrInvalidType
	}

	fact.ID = s.newID()
	fact.Importance = memory.ClampImportance(fact.Importance)
	if fact.Timestamp.IsZero() {
		fact.Timestamp = time.Now().UTC()
	}

	tagsJSON, err := marshalTags(fact.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_id, type, content, content_key, importance, tags, context, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.UserID, string(fact.Type), fact.Content, NormalizeKey(fact.Content),
		fact.Importance, tagsJSON, fact.Context, fact.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (*memory.Fact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, content, importance, tags, context, ts
		FROM facts WHERE id = ? AND user_id = ?`, id, userID)
	return scanFact(row)
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, content, importance, tags, context, ts
		FROM facts WHERE user_id = ?
		ORDER BY importance DESC, ts DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

func (s *SQLiteStore) SearchPrefix(ctx context.Context, userID, prefix string) ([]memory.Fact, error) {
	key := NormalizeKey(prefix)
	if key == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, content, importance, tags, context, ts
		FROM facts WHERE user_id = ? AND content_key LIKE ? ESCAPE '\'
		ORDER BY importance DESC, ts DESC`,
		userID, escapeLike(key)+"%")
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

func (s *SQLiteStore) Update(ctx context.Context, userID, id string, patch Patch) (*memory.Fact, error) {
	fact, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		fact.Content = *patch.Content
	}
	if patch.Importance != nil {
		fact.Importance = memory.ClampImportance(*patch.Importance)
	}
	if patch.Tags != nil {
		fact.Tags = patch.Tags
	}
	if patch.Context != nil {
		fact.Context = *patch.Context
	}
	fact.Timestamp = time.Now().UTC()

	tagsJSON, err := marshalTags(fact.Tags)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE facts SET content = ?, content_key = ?, importance = ?, tags = ?, context = ?, ts = ?
		WHERE id = ? AND user_id = ?`,
		fact.Content, NormalizeKey(fact.Content), fact.Importance, tagsJSON, fact.Context,
		fact.Timestamp.Format(time.RFC3339Nano), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update fact: %w", err)
	}
	return fact, nil
}

func (s *SQLiteStore) Reinforce(ctx context.Context, id string, importance int) error {
	importance = memory.ClampImportance(importance)
	_, err := s.db.ExecContext(ctx, `
		UPDATE facts SET importance = MAX(importance, ?), ts = ? WHERE id = ?`,
		importance, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("reinforce fact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSummary(ctx context.Context, userID, content string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
		UPDATE facts SET content = ?, content_key = ?, ts = ?
		WHERE user_id = ? AND type = ?`,
		content, NormalizeKey(content), now, userID, string(memory.FactUserSummary),
	)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	return s.Create(ctx, &memory.Fact{
		UserID:     userID,
		Type:       memory.FactUserSummary,
		Content:    content,
		Importance: 10,
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user facts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context, userID string, keep int) error {
	if keep <= 0 {
		keep = 100
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM facts WHERE user_id = ? AND id NOT IN (
			SELECT id FROM facts WHERE user_id = ?
			ORDER BY importance DESC, ts DESC
			LIMIT ?
		)`, userID, userID, keep)
	if err != nil {
		return fmt.Errorf("prune facts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*memory.Fact, error) {
	var f memory.Fact
	var factType, ts string
	var tagsJSON, factContext sql.NullString

	err := row.Scan(&f.ID, &f.UserID, &factType, &f.Content, &f.Importance, &tagsJSON, &factContext, &ts)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan fact: %w", err)
	}

	f.Type = memory.FactType(factType)
	f.Context = factContext.String
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &f.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		f.Timestamp = parsed
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]memory.Fact, error) {
	var out []memory.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
