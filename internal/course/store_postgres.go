package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. The full course document is
// kept in a JSONB column; filterable fields are mirrored into columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed course store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Course) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal course: %w", err)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO courses (id, title, description, difficulty, status, tags, enrolled_count, data, created_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $9)`,
		c.ID,
		c.Title,
		c.Description,
		string(c.Difficulty),
		string(c.Status),
		tagsOrEmpty(c.Tags),
		c.EnrolledCount,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// parseID returns id in canonical uuid form. Ids that do not parse cannot
// exist in the table.
func parseID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Course, error) {
	id, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx,
		`SELECT data, enrolled_count, created_at, updated_at FROM courses WHERE id = $1::uuid`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query, args := buildListQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []*Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Course) error {
	id, ok := parseID(c.ID)
	if !ok {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal course: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE courses
		 SET title = $2, description = $3, difficulty = $4, status = $5, tags = $6,
		     data = $7::jsonb, updated_at = NOW()
		 WHERE id = $1::uuid`,
		id,
		c.Title,
		c.Description,
		string(c.Difficulty),
		string(c.Status),
		tagsOrEmpty(c.Tags),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	id, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementEnrolled(ctx context.Context, id string, delta int) error {
	id, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE courses SET enrolled_count = GREATEST(enrolled_count + $2, 0) WHERE id = $1::uuid`,
		id,
		delta,
	)
	if err != nil {
		return fmt.Errorf("increment enrolled count: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildListQuery(f Filter) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Difficulty != "" {
		where = append(where, "difficulty = "+arg(string(f.Difficulty)))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if len(f.Tags) > 0 {
		where = append(where, "tags && "+arg(f.Tags)+"::text[]")
	}
	if f.Search != "" {
		p := arg(f.Search)
		where = append(where, fmt.Sprintf("(title ILIKE '%%' || %s || '%%' OR description ILIKE '%%' || %s || '%%')", p, p))
	}
	var exclude []string
	for _, id := range f.ExcludeIDs {
		if id, ok := parseID(id); ok {
			exclude = append(exclude, id)
		}
	}
	if len(exclude) > 0 {
		where = append(where, "NOT (id = ANY("+arg(exclude)+"::uuid[]))")
	}

	query := `SELECT data, enrolled_count, created_at, updated_at FROM courses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Popular {
		query += " ORDER BY enrolled_count DESC, created_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	return query, args
}

func scanCourse(row pgx.Row) (*Course, error) {
	var data []byte
	var enrolled int
	var createdAt, updatedAt time.Time

	if err := row.Scan(&data, &enrolled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan course: %w", err)
	}

	c := &Course{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode course: %w", err)
	}
	c.EnrolledCount = enrolled
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
