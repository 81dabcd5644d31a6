package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout       = 5 * time.Second
	uniqueViolation = "23505"
)

const selectUser = `SELECT id::text, name, email, password_hash, role, avatar, bio, location,
	streak, last_active, enrolled_courses, quiz_results, version, created_at, updated_at
 FROM users`

// PostgresStore is a PostgreSQL-backed Store. Enrollments and quiz results
// live in JSONB columns of the user row so the document is read and written
// as one unit.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	enrollments, results, err := marshalHistory(u)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, avatar, bio, location,
		   streak, last_active, enrolled_courses, quiz_results, version, created_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, 1, $13, $13)`,
		u.ID,
		u.Name,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		u.Avatar,
		u.Bio,
		u.Location,
		u.Streak,
		u.LastActive,
		enrollments,
		results,
		u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}

	u.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.getByQuery(ctx, selectUser+` WHERE id = $1::uuid`, parsed.String())
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.getByQuery(ctx, selectUser+` WHERE email = $1`, normalized)
}

func (s *PostgresStore) Save(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	enrollments, results, err := marshalHistory(u)
	if err != nil {
		return err
	}

	var updatedAt time.Time
	err = s.pool.QueryRow(ctx,
		`UPDATE users
		 SET name = $3, role = $4, avatar = $5, bio = $6, location = $7, streak = $8,
		     last_active = $9, enrolled_courses = $10::jsonb, quiz_results = $11::jsonb,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1::uuid AND version = $2
		 RETURNING updated_at`,
		u.ID,
		u.Version,
		u.Name,
		string(u.Role),
		u.Avatar,
		u.Bio,
		u.Location,
		u.Streak,
		u.LastActive,
		enrollments,
		results,
	).Scan(&updatedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save user: %w", err)
		}
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1::uuid)`, u.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	u.Version++
	u.UpdatedAt = updatedAt
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectUser+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM users
		 WHERE enrolled_courses @> jsonb_build_array(jsonb_build_object('course', $1::text))`,
		courseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count enrolled users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) getByQuery(ctx context.Context, query string, args ...any) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var role string
	var enrollments, results []byte

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Avatar,
		&u.Bio,
		&u.Location,
		&u.Streak,
		&u.LastActive,
		&enrollments,
		&results,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)

	u.EnrolledCourses = []Enrollment{}
	if len(enrollments) > 0 {
		if err := json.Unmarshal(enrollments, &u.EnrolledCourses); err != nil {
			return nil, fmt.Errorf("decode enrollments: %w", err)
		}
	}
	u.QuizResults = []QuizResult{}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &u.QuizResults); err != nil {
			return nil, fmt.Errorf("decode quiz results: %w", err)
		}
	}
	return u, nil
}

func marshalHistory(u *User) (string, string, error) {
	enrollments := u.EnrolledCourses
	if enrollments == nil {
		enrollments = []Enrollment{}
	}
	results := u.QuizResults
	if results == nil {
		results = []QuizResult{}
	}

	e, err := json.Marshal(enrollments)
	if err != nil {
		return "", "", fmt.Errorf("marshal enrollments: %w", err)
	}
	r, err := json.Marshal(results)
	if err != nil {
		return "", "", fmt.Errorf("marshal quiz results: %w", err)
	}
	return string(e), string(r), nil
}
