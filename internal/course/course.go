// Package course holds the course catalog: lessons, quiz questions and the
// metadata used for browsing and recommendations.
package course

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 1000
	minOptions        = 2
	maxRating         = 5
)

var (
	ErrNotFound = errors.New("course not found")
	ErrInUse    = errors.New("course has enrolled users")
	ErrInvalid  = errors.New("invalid course")
)

// Difficulty is the course level.
type Difficulty string

const (
	Beginner     Difficulty = "Beginner"
	Intermediate Difficulty = "Intermediate"
	Advanced     Difficulty = "Advanced"
)

// ParseDifficulty validates a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case Beginner, Intermediate, Advanced:
		return d, nil
	}
	return "", fmt.Errorf("invalid difficulty %q", s)
}

// Status is the publication state of a course.
type Status string

const (
	Draft     Status = "Draft"
	Published Status = "Published"
)

// ParseStatus validates a status name. An empty string yields Draft.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "":
		return Draft, nil
	case Draft, Published:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Lesson is one ordered unit of a course.
type Lesson struct {
	ID       string `json:"_id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Duration string `json:"duration" yaml:"duration"`
	Content  string `json:"content" yaml:"content"`
	VideoURL string `json:"videoUrl" yaml:"video_url"`
	Order    int    `json:"order" yaml:"order"`
}

// QuizQuestion is a multiple-choice question; CorrectAnswer indexes Options.
type QuizQuestion struct {
	ID            string   `json:"_id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correct_answer"`
}

// Course is a catalog entry.
type Course struct {
	ID            string         `json:"_id" yaml:"id"`
	Title         string         `json:"title" yaml:"title"`
	Description   string         `json:"description" yaml:"description"`
	Difficulty    Difficulty     `json:"difficulty" yaml:"difficulty"`
	Duration      string         `json:"duration" yaml:"duration"`
	Instructor    string         `json:"instructor" yaml:"instructor"`
	InstructorID  string         `json:"instructorId,omitempty" yaml:"instructor_id"`
	Image         string         `json:"image" yaml:"image"`
	Tags          []string       `json:"tags" yaml:"tags"`
	Lessons       []Lesson       `json:"lessons" yaml:"lessons"`
	QuizQuestions []QuizQuestion `json:"quizQuestions" yaml:"quiz_questions"`
	Rating        float64        `json:"rating" yaml:"rating"`
	RatingsCount  int            `json:"ratingsCount" yaml:"ratings_count"`
	EnrolledCount int            `json:"enrolledCount" yaml:"enrolled_count"`
	Status        Status         `json:"status" yaml:"status"`
	Price         float64        `json:"price" yaml:"price"`
	DiscountPrice float64        `json:"discountPrice" yaml:"discount_price"`
	CreatedAt     time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time      `json:"updatedAt" yaml:"-"`
}

// TotalLessons is the number of lessons in the course.
func (c *Course) TotalLessons() int {
	return len(c.Lessons)
}

// Lesson returns the lesson with the given id.
func (c *Course) Lesson(id string) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// New validates c and returns a normalized copy: ids are assigned where
// missing, lessons are sorted by Order, and status defaults to Draft.
func New(c Course, now time.Time) (*Course, error) {
	out := c
	out.Title = strings.TrimSpace(c.Title)
	out.Description = strings.TrimSpace(c.Description)

	if out.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(out.Title) > maxTitleLen {
		return nil, fmt.Errorf("title must be at most %d characters", maxTitleLen)
	}
	if out.Description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if utf8.RuneCountInString(out.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("description must be at most %d characters", maxDescriptionLen)
	}

	difficulty, err := ParseDifficulty(string(c.Difficulty))
	if err != nil {
		return nil, err
	}
	out.Difficulty = difficulty

	status, err := ParseStatus(string(c.Status))
	if err != nil {
		return nil, err
	}
	out.Status = status

	if c.Rating < 0 || c.Rating > maxRating {
		return nil, fmt.Errorf("rating must be between 0 and %d", maxRating)
	}
	if c.RatingsCount < 0 || c.EnrolledCount < 0 {
		return nil, fmt.Errorf("counters must not be negative")
	}
	if c.Price < 0 || c.DiscountPrice < 0 {
		return nil, fmt.Errorf("prices must not be negative")
	}

	out.Tags = make([]string, 0, len(c.Tags))
	for _, tag := range c.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}

	out.Lessons, err = normalizeLessons(c.Lessons)
	if err != nil {
		return nil, err
	}
	out.QuizQuestions, err = normalizeQuestions(c.QuizQuestions)
	if err != nil {
		return nil, err
	}

	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return &out, nil
}

func normalizeLessons(in []Lesson) ([]Lesson, error) {
	lessons := make([]Lesson, len(in))
	seen := make(map[string]bool, len(in))
	for i, l := range in {
		l.Title = strings.TrimSpace(l.Title)
		if l.Title == "" {
			return nil, fmt.Errorf("lesson %d: title is required", i+1)
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("duplicate lesson id %q", l.ID)
		}
		seen[l.ID] = true
		if l.Order == 0 {
			l.Order = i + 1
		}
		lessons[i] = l
	}
	slices.SortStableFunc(lessons, func(a, b Lesson) int { return a.Order - b.Order })
	return lessons, nil
}

func normalizeQuestions(in []QuizQuestion) ([]QuizQuestion, error) {
	questions := make([]QuizQuestion, len(in))
	seen := make(map[string]bool, len(in))
	for i, q := range in {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			return nil, fmt.Errorf("question %d: text is required", i+1)
		}
		if len(q.Options) < minOptions {
			return nil, fmt.Errorf("question %d: at least %d options are required", i+1, minOptions)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %d: correct answer %d is out of range", i+1, q.CorrectAnswer)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
		q.Options = slices.Clone(q.Options)
		questions[i] = q
	}
	return questions, nil
}

// Clone returns a deep copy.
func (c *Course) Clone() *Course {
	out := *c
	out.Tags = slices.Clone(c.Tags)
	out.Lessons = slices.Clone(c.Lessons)
	out.QuizQuestions = make([]QuizQuestion, len(c.QuizQuestions))
	for i, q := range c.QuizQuestions {
		q.Options = slices.Clone(q.Options)
		out.QuizQuestions[i] = q
	}
	return &out
}
