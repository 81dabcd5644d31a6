package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// DailyActivity aggregates one user's learning activity for one UTC day.
type DailyActivity struct {
	User             string    `json:"user"`
	Date             time.Time `json:"date"`
	HoursSpent       float64   `json:"hoursSpent"`
	LessonsCompleted int       `json:"lessonsCompleted"`
	CoursesCompleted int       `json:"coursesCompleted"`
}

// ActivityLog records and reads daily activity counters.
type ActivityLog interface {
	// Record adds delta's counters to the user's row for delta.Date.
	Record(ctx context.Context, delta DailyActivity) error
	// Range returns the user's rows with from <= date <= to, oldest first.
	Range(ctx context.Context, userID string, from, to time.Time) ([]DailyActivity, error)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MemoryActivityLog stores activity in memory for tests and local runs.
type MemoryActivityLog struct {
	mu   sync.Mutex
	rows map[string]*DailyActivity
}

func NewMemoryActivityLog() *MemoryActivityLog {
	return &MemoryActivityLog{
		rows: make(map[string]*DailyActivity),
	}
}

func (l *MemoryActivityLog) Record(_ context.Context, delta DailyActivity) error {
	if delta.User == "" {
		return fmt.Errorf("user is required")
	}
	day := Day(delta.Date)
	key := delta.User + "|" + day.Format(time.DateOnly)

	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rows[key]
	if !ok {
		row = &DailyActivity{User: delta.User, Date: day}
		l.rows[key] = row
	}
	row.HoursSpent += delta.HoursSpent
	row.LessonsCompleted += delta.LessonsCompleted
	row.CoursesCompleted += delta.CoursesCompleted
	return nil
}

func (l *MemoryActivityLog) Range(_ context.Context, userID string, from, to time.Time) ([]DailyActivity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []DailyActivity{}
	for _, row := range l.rows {
		if row.User != userID || row.Date.Before(Day(from)) || row.Date.After(to) {
			continue
		}
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b DailyActivity) int { return a.Date.Compare(b.Date) })
	return out, nil
}

// PostgresActivityLog upserts activity into the daily_activity table.
type PostgresActivityLog struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityLog(pool *pgxpool.Pool) *PostgresActivityLog {
	return &PostgresActivityLog{pool: pool}
}

func (l *PostgresActivityLog) Record(ctx context.Context, delta DailyActivity) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("activity log pool is nil")
	}
	if delta.User == "" {
		return fmt.Errorf("user is required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO daily_activity (user_id, date, hours_spent, lessons_completed, courses_completed)
		 VALUES ($1::uuid, $2::date, $3, $4, $5)
		 ON CONFLICT (user_id, date) DO UPDATE
		 SET hours_spent = daily_activity.hours_spent + EXCLUDED.hours_spent,
		     lessons_completed = daily_activity.lessons_completed + EXCLUDED.lessons_completed,
		     courses_completed = daily_activity.courses_completed + EXCLUDED.courses_completed,
		     updated_at = NOW()`,
		delta.User,
		Day(delta.Date),
		delta.HoursSpent,
		delta.LessonsCompleted,
		delta.CoursesCompleted,
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	slog.Debug("activity recorded",
		"user_id", delta.User,
		"lessons_completed", delta.LessonsCompleted,
		"courses_completed", delta.CoursesCompleted,
	)
	return nil
}

func (l *PostgresActivityLog) Range(ctx context.Context, userID string, from, to time.Time) ([]DailyActivity, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("activity log pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT user_id::text, date, hours_spent, lessons_completed, courses_completed
		 FROM daily_activity
		 WHERE user_id = $1::uuid AND date >= $2::date AND date <= $3::date
		 ORDER BY date ASC`,
		userID,
		Day(from),
		Day(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	out := []DailyActivity{}
	for rows.Next() {
		var a DailyActivity
		if err := rows.Scan(&a.User, &a.Date, &a.HoursSpent, &a.LessonsCompleted, &a.CoursesCompleted); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
