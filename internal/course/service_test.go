package course_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/course"
)

type fakeCounter map[string]int

func (f fakeCounter) CountEnrolled(_ context.Context, courseID string) (int, error) {
	return f[courseID], nil
}

func TestService_List_HidesDraftsFromNonAdmins(t *testing.T) {
	ctx := context.Background()
	store := course.NewMemoryStore()
	svc := course.NewService(store, nil)

	store.Create(ctx, mustCourse(t, "Published", course.Published))
	store.Create(ctx, mustCourse(t, "Draft", course.Draft))

	got, err := svc.List(ctx, course.Filter{Status: course.Draft}, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Status != course.Published {
		t.Errorf("List(student) = %d courses, want only the published one", len(got))
	}

	got, _ = svc.List(ctx, course.Filter{}, true)
	if len(got) != 2 {
		t.Errorf("List(admin) = %d courses, want 2", len(got))
	}
}

func TestService_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := course.NewService(course.NewMemoryStore(), nil)

	in := validCourse()
	in.EnrolledCount = 500
	created, err := svc.Create(ctx, in, "instructor-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.InstructorID != "instructor-1" {
		t.Errorf("InstructorID = %q, want instructor-1", created.InstructorID)
	}
	if created.EnrolledCount != 0 {
		t.Errorf("EnrolledCount = %d, want 0 for a new course", created.EnrolledCount)
	}

	edit := *created
	edit.Status = course.Published
	updated, err := svc.Update(ctx, created.ID, edit)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != course.Published {
		t.Errorf("Status = %q, want Published", updated.Status)
	}

	if _, err := svc.Update(ctx, "missing", edit); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	edit.Difficulty = "Impossible"
	if _, err := svc.Update(ctx, created.ID, edit); !errors.Is(err, course.ErrInvalid) {
		t.Errorf("Update(bad difficulty) error = %v, want ErrInvalid", err)
	}
}

func TestService_Delete_RefusesEnrolledCourse(t *testing.T) {
	ctx := context.Background()
	store := course.NewMemoryStore()
	busy := mustCourse(t, "Busy", course.Published)
	idle := mustCourse(t, "Idle", course.Published)
	store.Create(ctx, busy)
	store.Create(ctx, idle)

	svc := course.NewService(store, fakeCounter{busy.ID: 3})

	if err := svc.Delete(ctx, busy.ID); !errors.Is(err, course.ErrInUse) {
		t.Errorf("Delete(busy) error = %v, want ErrInUse", err)
	}
	if err := svc.Delete(ctx, idle.ID); err != nil {
		t.Errorf("Delete(idle) error = %v", err)
	}
	if err := svc.Delete(ctx, idle.ID); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("Delete(idle) twice error = %v, want ErrNotFound", err)
	}
}

func TestService_Recommend(t *testing.T) {
	ctx := context.Background()
	store := course.NewMemoryStore()

	enrolled := mustCourse(t, "Python 101", course.Published, "Python")
	related := mustCourse(t, "Data Science with Python", course.Published, "Python", "Data")
	popular := mustCourse(t, "Design Thinking", course.Published, "Design")
	draft := mustCourse(t, "Python Draft", course.Draft, "Python")
	for _, c := range []*course.Course{enrolled, related, popular, draft} {
		store.Create(ctx, c)
	}
	store.IncrementEnrolled(ctx, popular.ID, 10)

	svc := course.NewService(store, nil)
	recs, err := svc.Recommend(ctx, []string{enrolled.ID})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("Recommend() = %d courses, want 2", len(recs))
	}
	if recs[0].ID != related.ID || recs[0].Reason != course.ReasonInterests {
		t.Errorf("recs[0] = %s (%s), want tag match first", recs[0].Title, recs[0].Reason)
	}
	if recs[1].ID != popular.ID || recs[1].Reason != course.ReasonPopular {
		t.Errorf("recs[1] = %s (%s), want popular fill", recs[1].Title, recs[1].Reason)
	}
}

func TestService_Recommend_NoEnrollments(t *testing.T) {
	ctx := context.Background()
	store := course.NewMemoryStore()
	store.Create(ctx, mustCourse(t, "Only Course", course.Published, "Go"))

	recs, err := course.NewService(store, nil).Recommend(ctx, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Reason != course.ReasonPopular {
		t.Errorf("Recommend() = %+v, want one popular course", recs)
	}
}
