// Package progress tracks course enrollments, lesson completion and quiz
// grading for users, and derives their learning statistics.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/user"
)

const (
	defaultMaxAttempts = 3
	weeklyWindow       = 7 * 24 * time.Hour
)

// ErrLessonNotFound is returned when a lesson id is not part of the course.
var ErrLessonNotFound = errors.New("lesson not found")

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Users       user.Store
	Courses     course.Store
	Activity    ActivityLog      // defaults to an in-memory log
	Broker      Broker           // defaults to an in-process broker
	MaxAttempts int              // read-modify-write attempts on version conflict (default 3)
	Now         func() time.Time // defaults to time.Now
}

// Engine applies enrollment, lesson-completion and quiz-grading changes to
// user documents.
type Engine struct {
	users       user.Store
	courses     course.Store
	activity    ActivityLog
	broker      Broker
	maxAttempts int
	now         func() time.Time
}

// NewEngine creates a new progress engine.
func NewEngine(cfg EngineConfig) *Engine {
	activity := cfg.Activity
	if activity == nil {
		activity = NewMemoryActivityLog()
	}
	broker := cfg.Broker
	if broker == nil {
		broker = NewMemoryBroker()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		users:       cfg.Users,
		courses:     cfg.Courses,
		activity:    activity,
		broker:      broker,
		maxAttempts: attempts,
		now:         now,
	}
}

// LessonResult reports the enrollment state after CompleteLesson.
type LessonResult struct {
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Changed     bool       `json:"-"`
}

// Enroll adds an enrollment for courseID and bumps the course's enrolled count.
func (e *Engine) Enroll(ctx context.Context, userID, courseID string) error {
	if _, err := e.courses.Get(ctx, courseID); err != nil {
		return err
	}

	now := e.now()
	_, err := e.mutateUser(ctx, userID, func(u *user.User) (bool, error) {
		return true, u.Enroll(courseID, now)
	})
	if err != nil {
		return err
	}

	if err := e.courses.IncrementEnrolled(ctx, courseID, 1); err != nil {
		slog.Warn("failed to update enrolled count", "course_id", courseID, "error", err)
	}
	e.publish(ctx, Event{Type: EventEnrolled, UserID: userID, CourseID: courseID, At: now})

	slog.Info("user enrolled", "user_id", userID, "course_id", courseID)
	return nil
}

// CompleteLesson marks lessonID done in the user's enrollment for courseID and
// returns the resulting progress. Completing an already completed lesson
// changes nothing and reports the current progress. A course without lessons
// always reports 0 for any lesson id.
func (e *Engine) CompleteLesson(ctx context.Context, userID, courseID, lessonID string) (LessonResult, error) {
	c, err := e.courses.Get(ctx, courseID)
	if err != nil {
		return LessonResult{}, err
	}

	now := e.now()
	var res LessonResult
	var justCompleted bool

	_, err = e.mutateUser(ctx, userID, func(u *user.User) (bool, error) {
		enrollment := u.Enrollment(courseID)
		if enrollment == nil {
			return false, user.ErrNotEnrolled
		}
		if c.TotalLessons() == 0 {
			res = LessonResult{Progress: 0}
			return false, nil
		}
		if _, ok := c.Lesson(lessonID); !ok {
			return false, ErrLessonNotFound
		}

		wasCompleted := enrollment.Completed
		changed := enrollment.CompleteLesson(lessonID, c.TotalLessons(), now)

		res = LessonResult{
			Progress:    enrollment.Progress,
			Completed:   enrollment.Completed,
			CompletedAt: enrollment.CompletedAt,
			Changed:     changed,
		}
		justCompleted = !wasCompleted && enrollment.Completed
		return changed, nil
	})
	if err != nil {
		return LessonResult{}, err
	}
	if !res.Changed {
		return res, nil
	}

	delta := DailyActivity{User: userID, Date: now, LessonsCompleted: 1}
	if justCompleted {
		delta.CoursesCompleted = 1
	}
	if err := e.activity.Record(ctx, delta); err != nil {
		slog.Warn("failed to record activity", "user_id", userID, "error", err)
	}

	ev := Event{
		Type:      EventLessonCompleted,
		UserID:    userID,
		CourseID:  courseID,
		LessonID:  lessonID,
		Progress:  res.Progress,
		Completed: res.Completed,
		At:        now,
	}
	e.publish(ctx, ev)
	if justCompleted {
		ev.Type = EventCourseCompleted
		e.publish(ctx, ev)
		slog.Info("course completed", "user_id", userID, "course_id", courseID)
	}
	return res, nil
}

// SubmitQuiz grades answers against the course's questions and appends the
// result to the user's quiz history.
func (e *Engine) SubmitQuiz(ctx context.Context, userID, courseID string, answers map[string]int) (QuizScore, error) {
	c, err := e.courses.Get(ctx, courseID)
	if err != nil {
		return QuizScore{}, err
	}

	score := Grade(c.QuizQuestions, answers)
	now := e.now()

	_, err = e.mutateUser(ctx, userID, func(u *user.User) (bool, error) {
		u.AddQuizResult(user.QuizResult{
			Course:         courseID,
			Score:          score.Score,
			TotalQuestions: score.Total,
			Percentage:     score.Percentage,
			CompletedAt:    now,
		})
		return true, nil
	})
	if err != nil {
		return QuizScore{}, err
	}

	e.publish(ctx, Event{
		Type:       EventQuizSubmitted,
		UserID:     userID,
		CourseID:   courseID,
		Score:      score.Score,
		Percentage: score.Percentage,
		At:         now,
	})
	return score, nil
}

// EnrolledCourse is an enrollment joined with the course it references.
type EnrolledCourse struct {
	user.Enrollment
	Title        string            `json:"title"`
	Image        string            `json:"image"`
	Difficulty   course.Difficulty `json:"difficulty"`
	TotalLessons int               `json:"totalLessons"`
}

// Summary is the progress overview shown on the dashboard.
type Summary struct {
	InProgress     []EnrolledCourse `json:"inProgress"`
	Completed      []EnrolledCourse `json:"completed"`
	TotalCourses   int              `json:"totalCourses"`
	CompletedCount int              `json:"completedCount"`
	AverageScore   int              `json:"averageScore"`
}

// Summary splits the user's enrollments into in-progress (at least one lesson
// done) and completed lists and adds the average quiz score.
func (e *Engine) Summary(ctx context.Context, userID string) (Summary, error) {
	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		InProgress:     []EnrolledCourse{},
		Completed:      []EnrolledCourse{},
		TotalCourses:   len(u.EnrolledCourses),
		CompletedCount: u.CompletedCoursesCount(),
		AverageScore:   u.AverageScore(),
	}
	for _, enrollment := range u.EnrolledCourses {
		if !enrollment.Completed && len(enrollment.CompletedLessons) == 0 {
			continue
		}
		ec := e.joinCourse(ctx, enrollment)
		if enrollment.Completed {
			s.Completed = append(s.Completed, ec)
		} else {
			s.InProgress = append(s.InProgress, ec)
		}
	}
	return s, nil
}

// Weekly returns the user's daily activity for the last seven days.
func (e *Engine) Weekly(ctx context.Context, userID string) ([]DailyActivity, error) {
	now := e.now()
	rows, err := e.activity.Range(ctx, userID, now.Add(-weeklyWindow), now)
	if err != nil {
		return nil, fmt.Errorf("read weekly activity: %w", err)
	}
	return rows, nil
}

func (e *Engine) joinCourse(ctx context.Context, enrollment user.Enrollment) EnrolledCourse {
	ec := EnrolledCourse{Enrollment: enrollment}
	c, err := e.courses.Get(ctx, enrollment.Course)
	if err != nil {
		if !errors.Is(err, course.ErrNotFound) {
			slog.Warn("failed to load enrolled course", "course_id", enrollment.Course, "error", err)
		}
		return ec
	}
	ec.Title = c.Title
	ec.Image = c.Image
	ec.Difficulty = c.Difficulty
	ec.TotalLessons = c.TotalLessons()
	return ec
}

func (e *Engine) mutateUser(ctx context.Context, userID string, fn func(u *user.User) (bool, error)) (*user.User, error) {
	return user.Mutate(ctx, e.users, userID, e.maxAttempts, fn)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if err := e.broker.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish progress event", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}
