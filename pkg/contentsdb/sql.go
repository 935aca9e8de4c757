// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package contentsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

const defaultTable = "knowledge_contents"

// SQLStore persists content records in PostgreSQL, MySQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string
	table   string
}

// NewSQLStore creates a store on an open connection and ensures its schema.
// dialect is one of "postgres", "mysql" or "sqlite".
func NewSQLStore(db *sql.DB, dialect, table string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	if table == "" {
		table = defaultTable
	}

	s := &SQLStore{db: db, dialect: dialect, table: table}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLStoreFromConfig opens (or reuses) a pooled connection for cfg.
func NewSQLStoreFromConfig(ctx context.Context, pool *Pool, cfg *config.DatabaseConfig, table string) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := pool.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, cfg.Dialect(), table)
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    knowledge VARCHAR(255) NOT NULL,
    id VARCHAR(64) NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    source TEXT,
    hash VARCHAR(64) NOT NULL,
    metadata TEXT,
    status VARCHAR(32) NOT NULL,
    status_message TEXT,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    size BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (knowledge, id)
)`, s.table)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; the primary key covers lookups
	// by ID and hash lookups stay scoped to one knowledge base.
	if s.dialect != "mysql" {
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(knowledge, hash)", s.table, s.table)
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const contentColumns = "knowledge, id, name, description, source, hash, metadata, status, status_message, chunk_count, size, created_at, updated_at"

func (s *SQLStore) Upsert(ctx context.Context, c *Content) error {
	if c.ID == "" {
		return fmt.Errorf("content id is required")
	}

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		if existing, err := s.Get(ctx, c.Knowledge, c.ID); err == nil {
			c.CreatedAt = existing.CreatedAt
		} else {
			c.CreatedAt = now
		}
	}
	c.UpdatedAt = now

	var query string
	switch s.dialect {
	case "mysql":
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), description = VALUES(description), source = VALUES(source),
hash = VALUES(hash), metadata = VALUES(metadata), status = VALUES(status), status_message = VALUES(status_message),
chunk_count = VALUES(chunk_count), size = VALUES(size), updated_at = VALUES(updated_at)`, s.table, contentColumns)
	default:
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (knowledge, id) DO UPDATE SET name = excluded.name, description = excluded.description,
source = excluded.source, hash = excluded.hash, metadata = excluded.metadata, status = excluded.status,
status_message = excluded.status_message, chunk_count = excluded.chunk_count, size = excluded.size,
updated_at = excluded.updated_at`, s.table, contentColumns)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		c.Knowledge, c.ID, c.Name, c.Description, c.Source, c.Hash, string(metadata),
		string(c.Status), c.StatusMessage, c.ChunkCount, c.Size,
		c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*Content, error) {
	var (
		c                              Content
		description, source, statusMsg sql.NullString
		metadata                       sql.NullString
		status                         string
		createdAt, updatedAt           int64
	)

	err := row.Scan(&c.Knowledge, &c.ID, &c.Name, &description, &source, &c.Hash, &metadata,
		&status, &statusMsg, &c.ChunkCount, &c.Size, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	c.Source = source.String
	c.StatusMessage = statusMsg.String
	c.Status = Status(status)
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()

	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (s *SQLStore) Get(ctx context.Context, knowledge, id string) (*Content, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE knowledge = ? AND id = ?", contentColumns, s.table)
	c, err := scanContent(s.db.QueryRowContext(ctx, s.rebind(query), knowledge, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return c, nil
}

func (s *SQLStore) GetByHash(ctx context.Context, knowledge, hash string) (*Content, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE knowledge = ? AND hash = ? ORDER BY updated_at DESC LIMIT 1",
		contentColumns, s.table)
	c, err := scanContent(s.db.QueryRowContext(ctx, s.rebind(query), knowledge, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content by hash: %w", err)
	}
	return c, nil
}

func (s *SQLStore) List(ctx context.Context, knowledge string, opts ListOptions) ([]*Content, int, error) {
	where := "WHERE knowledge = ?"
	args := []any{knowledge}
	if opts.Status != "" {
		where += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", s.table, where)
	if err := s.db.QueryRowContext(ctx, s.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contents: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY created_at, id", contentColumns, s.table, where)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		// Every dialect needs a LIMIT before OFFSET.
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", int64(1)<<62, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contents: %w", err)
	}
	defer rows.Close()

	items := []*Content{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan content: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list contents: %w", err)
	}

	return items, total, nil
}

func (s *SQLStore) Delete(ctx context.Context, knowledge, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE knowledge = ? AND id = ?", s.table)
	res, err := s.db.ExecContext(ctx, s.rebind(query), knowledge, id)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteAll(ctx context.Context, knowledge string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE knowledge = ?", s.table)
	if _, err := s.db.ExecContext(ctx, s.rebind(query), knowledge); err != nil {
		return fmt.Errorf("failed to delete contents: %w", err)
	}
	return nil
}

func (s *SQLStore) MetadataKeys(ctx context.Context, knowledge string) ([]string, error) {
	query := fmt.Sprintf("SELECT metadata FROM %s WHERE knowledge = ?", s.table)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), knowledge)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		if !raw.Valid || raw.String == "" {
			continue
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
			continue
		}
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	return sortedKeys(seen), nil
}

// Close is a no-op; the connection belongs to the pool.
func (s *SQLStore) Close() error {
	return nil
}

var _ Store = (*SQLStore)(nil)
