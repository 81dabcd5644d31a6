package course

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const (
	maxRecommendations = 5
	minTagMatches      = 3
)

// Recommendation reasons.
const (
	ReasonInterests = "Based on your interests"
	ReasonPopular   = "Popular among learners"
)

// EnrollmentCounter reports how many users are enrolled in a course.
type EnrollmentCounter interface {
	CountEnrolled(ctx context.Context, courseID string) (int, error)
}

// Recommendation is a suggested course with the reason it was chosen.
type Recommendation struct {
	*Course
	Reason string `json:"reason"`
}

// Service implements catalog browsing and administration.
type Service struct {
	store       Store
	enrollments EnrollmentCounter
	now         func() time.Time
}

// NewService creates a catalog service. enrollments guards deletion of
// courses that still have enrolled users.
func NewService(store Store, enrollments EnrollmentCounter) *Service {
	return &Service{store: store, enrollments: enrollments, now: time.Now}
}

// List returns courses matching f. Only admins see unpublished courses.
func (s *Service) List(ctx context.Context, f Filter, admin bool) ([]*Course, error) {
	if !admin {
		f.Status = Published
	}
	courses, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if courses == nil {
		courses = []*Course{}
	}
	return courses, nil
}

// Get returns a single course.
func (s *Service) Get(ctx context.Context, id string) (*Course, error) {
	return s.store.Get(ctx, id)
}

// Create validates and stores a new course owned by instructorID.
func (s *Service) Create(ctx context.Context, in Course, instructorID string) (*Course, error) {
	in.ID = ""
	in.EnrolledCount = 0
	in.InstructorID = instructorID

	c, err := New(in, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	slog.Info("course created", "course_id", c.ID, "instructor_id", instructorID)
	return c, nil
}

// Update replaces the editable fields of an existing course.
func (s *Service) Update(ctx context.Context, id string, in Course) (*Course, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in.ID = existing.ID
	in.InstructorID = existing.InstructorID
	in.EnrolledCount = existing.EnrolledCount
	in.CreatedAt = existing.CreatedAt

	c, err := New(in, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a course. Courses that users are enrolled in cannot be
// deleted and yield ErrInUse.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if s.enrollments != nil {
		n, err := s.enrollments.CountEnrolled(ctx, id)
		if err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w (%d enrolled)", ErrInUse, n)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("course deleted", "course_id", id)
	return nil
}

// Recommend suggests published courses the user is not enrolled in: first
// those sharing a tag with enrolled courses, then the most popular ones when
// fewer than three matched.
func (s *Service) Recommend(ctx context.Context, enrolledIDs []string) ([]Recommendation, error) {
	interests := make(map[string]bool)
	for _, id := range enrolledIDs {
		c, err := s.store.Get(ctx, id)
		if err != nil {
			continue
		}
		for _, tag := range c.Tags {
			interests[tag] = true
		}
	}

	var matched []*Course
	if len(interests) > 0 {
		tags := make([]string, 0, len(interests))
		for tag := range interests {
			tags = append(tags, tag)
		}
		slices.Sort(tags)

		var err error
		matched, err = s.store.List(ctx, Filter{
			Status:     Published,
			Tags:       tags,
			ExcludeIDs: enrolledIDs,
			Limit:      maxRecommendations,
		})
		if err != nil {
			return nil, fmt.Errorf("list matching courses: %w", err)
		}
	}

	if len(matched) < minTagMatches {
		exclude := slices.Clone(enrolledIDs)
		for _, c := range matched {
			exclude = append(exclude, c.ID)
		}
		popular, err := s.store.List(ctx, Filter{
			Status:     Published,
			ExcludeIDs: exclude,
			Popular:    true,
			Limit:      maxRecommendations - len(matched),
		})
		if err != nil {
			return nil, fmt.Errorf("list popular courses: %w", err)
		}
		matched = append(matched, popular...)
	}

	recs := make([]Recommendation, 0, len(matched))
	for _, c := range matched {
		reason := ReasonPopular
		if slices.ContainsFunc(c.Tags, func(t string) bool { return interests[t] }) {
			reason = ReasonInterests
		}
		recs = append(recs, Recommendation{Course: c, Reason: reason})
	}
	return recs, nil
}
