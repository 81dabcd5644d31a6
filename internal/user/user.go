// Package user holds learner identity, enrollments, quiz history and the
// statistics derived from them.
package user

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

const (
	maxNameLen = 50
	maxBioLen  = 500
	day        = 24 * time.Hour
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrEmailTaken      = errors.New("user already exists")
	ErrVersionConflict = errors.New("user was modified concurrently")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrNotEnrolled     = errors.New("not enrolled in this course")
	ErrInvalid         = errors.New("invalid user")
)

// Role is the authorization level of a user.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a role name. An empty string yields RoleStudent.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleStudent, nil
	case RoleStudent, RoleInstructor, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// Enrollment links a user to a course together with their completion state.
type Enrollment struct {
	Course           string     `json:"course"`
	EnrolledAt       time.Time  `json:"enrolledAt"`
	CompletedLessons []string   `json:"completedLessons"`
	Progress         int        `json:"progress"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// HasCompleted reports whether lessonID is already in the completed set.
func (e *Enrollment) HasCompleted(lessonID string) bool {
	return slices.Contains(e.CompletedLessons, lessonID)
}

// CompleteLesson marks lessonID as done and recomputes progress against
// totalLessons. It returns false when the lesson was already completed, in
// which case nothing changes.
func (e *Enrollment) CompleteLesson(lessonID string, totalLessons int, now time.Time) bool {
	if e.HasCompleted(lessonID) {
		return false
	}
	e.CompletedLessons = append(e.CompletedLessons, lessonID)
	e.recalculate(totalLessons, now)
	return true
}

// recalculate derives Progress and the completion flag. A course without
// lessons stays at 0 and is never completed. Completion is terminal, so a
// completed enrollment stays at 100 even if lessons are added later.
func (e *Enrollment) recalculate(totalLessons int, now time.Time) {
	if e.Completed {
		e.Progress = 100
		return
	}
	if totalLessons <= 0 {
		e.Progress = 0
		return
	}
	e.Progress = min(Percent(len(e.CompletedLessons), totalLessons), 100)
	if e.Progress == 100 && !e.Completed {
		e.Completed = true
		at := now
		e.CompletedAt = &at
	}
}

// QuizResult is one graded quiz attempt. Results are never modified once appended.
type QuizResult struct {
	Course         string    `json:"course"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     int       `json:"percentage"`
	CompletedAt    time.Time `json:"completedAt"`
}

// User is a learner account and the document that owns its learning state.
type User struct {
	ID              string       `json:"_id"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	PasswordHash    string       `json:"-"`
	Role            Role         `json:"role"`
	Avatar          string       `json:"avatar"`
	Bio             string       `json:"bio"`
	Location        string       `json:"location"`
	Streak          int          `json:"streak"`
	LastActive      time.Time    `json:"lastActive"`
	EnrolledCourses []Enrollment `json:"enrolledCourses"`
	QuizResults     []QuizResult `json:"quizResults"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`

	// Version is the optimistic concurrency token checked by Store.Save.
	Version int `json:"-"`
}

// New builds a validated user. The password must already be hashed.
func New(name, email, passwordHash string, role Role, now time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("name must be at most %d characters", maxNameLen)
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if role == "" {
		role = RoleStudent
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	return &User{
		ID:              uuid.NewString(),
		Name:            name,
		Email:           normalized,
		PasswordHash:    passwordHash,
		Role:            role,
		LastActive:      now,
		EnrolledCourses: []Enrollment{},
		QuizResults:     []QuizResult{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NormalizeEmail case-folds and validates an email address so that lookups
// are case-insensitive.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", fmt.Errorf("invalid email %q", email)
	}
	return cases.Fold().String(email), nil
}

// SetProfile updates the editable profile fields.
func (u *User) SetProfile(name, bio, location string) error {
	name = strings.TrimSpace(name)
	if name != "" {
		if utf8.RuneCountInString(name) > maxNameLen {
			return fmt.Errorf("name must be at most %d characters", maxNameLen)
		}
		u.Name = name
	}
	if utf8.RuneCountInString(bio) > maxBioLen {
		return fmt.Errorf("bio must be at most %d characters", maxBioLen)
	}
	u.Bio = bio
	u.Location = strings.TrimSpace(location)
	return nil
}

// Enrollment returns the user's enrollment for courseID, or nil.
func (u *User) Enrollment(courseID string) *Enrollment {
	for i := range u.EnrolledCourses {
		if u.EnrolledCourses[i].Course == courseID {
			return &u.EnrolledCourses[i]
		}
	}
	return nil
}

// Enroll adds a fresh enrollment for courseID.
func (u *User) Enroll(courseID string, now time.Time) error {
	if u.Enrollment(courseID) != nil {
		return ErrAlreadyEnrolled
	}
	u.EnrolledCourses = append(u.EnrolledCourses, Enrollment{
		Course:           courseID,
		EnrolledAt:       now,
		CompletedLessons: []string{},
	})
	return nil
}

// EnrolledCourseIDs lists the ids of every course the user is enrolled in.
func (u *User) EnrolledCourseIDs() []string {
	ids := make([]string, 0, len(u.EnrolledCourses))
	for _, e := range u.EnrolledCourses {
		ids = append(ids, e.Course)
	}
	return ids
}

// AddQuizResult appends a graded attempt to the history.
func (u *User) AddQuizResult(r QuizResult) {
	u.QuizResults = append(u.QuizResults, r)
}

// UpdateStreak applies the login streak rule and records now as the last
// activity. Whole days are counted from LastActive; a negative difference
// (clock skew) is treated as a same-day login.
func (u *User) UpdateStreak(now time.Time) {
	diffDays := max(int(now.Sub(u.LastActive)/day), 0)

	switch {
	case diffDays == 1:
		u.Streak++
	case diffDays > 1:
		u.Streak = 1
	}
	u.LastActive = now
}

// AverageScore returns the rounded mean quiz percentage.
func (u *User) AverageScore() int {
	return AverageScore(u.QuizResults)
}

// CompletedCoursesCount returns how many enrollments are completed.
func (u *User) CompletedCoursesCount() int {
	return CompletedCoursesCount(u.EnrolledCourses)
}

// AverageScore is the rounded arithmetic mean of the result percentages, or 0
// when there are none.
func AverageScore(results []QuizResult) int {
	if len(results) == 0 {
		return 0
	}
	total := 0
	for _, r := range results {
		total += r.Percentage
	}
	return roundDiv(total, len(results))
}

// CompletedCoursesCount counts completed enrollments.
func CompletedCoursesCount(enrollments []Enrollment) int {
	n := 0
	for _, e := range enrollments {
		if e.Completed {
			n++
		}
	}
	return n
}

// Percent returns round(100*part/whole), rounding halves up. It returns 0
// when whole is not positive.
func Percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return roundDiv(100*part, whole)
}

func roundDiv(a, b int) int {
	return (2*a + b) / (2 * b)
}

// Clone returns a deep copy, used by stores to keep document semantics.
func (u *User) Clone() *User {
	c := *u
	c.EnrolledCourses = make([]Enrollment, len(u.EnrolledCourses))
	for i, e := range u.EnrolledCourses {
		e.CompletedLessons = slices.Clone(e.CompletedLessons)
		if e.CompletedLessons == nil {
			e.CompletedLessons = []string{}
		}
		if e.CompletedAt != nil {
			at := *e.CompletedAt
			e.CompletedAt = &at
		}
		c.EnrolledCourses[i] = e
	}
	c.QuizResults = slices.Clone(u.QuizResults)
	if c.QuizResults == nil {
		c.QuizResults = []QuizResult{}
	}
	return &c
}
