package course_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/course"
)

const catalogYAML = `
courses:
  - title: "Introduction to Machine Learning"
    description: "Learn the fundamentals of ML algorithms and their applications."
    difficulty: Beginner
    duration: "8 weeks"
    instructor: "Dr. Sarah Chen"
    tags: [AI, Python, Data Science]
    status: Published
    price: 99
    discount_price: 49
    lessons:
      - title: "What is Machine Learning?"
        duration: "15 min"
        order: 1
      - title: "Types of ML"
        duration: "20 min"
        order: 2
    quiz_questions:
      - question: "Which type of learning uses labeled data?"
        options: [Supervised, Unsupervised, Reinforcement]
        correct_answer: 0
`

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "ml.yaml"), []byte(catalogYAML), 0o644)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# not a catalog"), 0o644)

	courses, err := course.LoadCatalog(dir, now)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("LoadCatalog() = %d courses, want 1", len(courses))
	}

	c := courses[0]
	if c.Status != course.Published {
		t.Errorf("Status = %q, want Published", c.Status)
	}
	if c.DiscountPrice != 49 {
		t.Errorf("DiscountPrice = %v, want 49", c.DiscountPrice)
	}
	if c.TotalLessons() != 2 {
		t.Errorf("TotalLessons() = %d, want 2", c.TotalLessons())
	}
	if len(c.QuizQuestions) != 1 || len(c.QuizQuestions[0].Options) != 3 {
		t.Errorf("QuizQuestions = %+v, want one question with three options", c.QuizQuestions)
	}
}

func TestLoadCatalog_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	os.WriteFile(path, []byte(catalogYAML), 0o644)

	courses, err := course.LoadCatalog(path, now)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(courses) != 1 {
		t.Errorf("LoadCatalog() = %d courses, want 1", len(courses))
	}
}

func TestLoadCatalog_InvalidCourse(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
courses:
  - title: "No difficulty"
    description: "Missing difficulty"
`), 0o644)

	if _, err := course.LoadCatalog(dir, now); err == nil {
		t.Fatal("LoadCatalog() should reject an invalid course")
	}
}

func TestLoadCatalog_DuplicateTitle(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(catalogYAML), 0o644)
	os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(catalogYAML), 0o644)

	if _, err := course.LoadCatalog(dir, now); err == nil {
		t.Fatal("LoadCatalog() should reject duplicate course titles")
	}
}

func TestLoadCatalog_SkipsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("courses: [unclosed"), 0o644)

	courses, err := course.LoadCatalog(dir, now)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(courses) != 0 {
		t.Errorf("LoadCatalog() = %d courses, want 0", len(courses))
	}
}

func TestSeed_IsRepeatable(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "ml.yaml"), []byte(catalogYAML), 0o644)

	ctx := context.Background()
	store := course.NewMemoryStore()

	created, err := course.Seed(ctx, store, dir, now)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if created != 1 {
		t.Errorf("first Seed() created %d, want 1", created)
	}

	created, err = course.Seed(ctx, store, dir, now)
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if created != 0 {
		t.Errorf("second Seed() created %d, want 0", created)
	}

	list, _ := store.List(ctx, course.Filter{})
	if len(list) != 1 {
		t.Errorf("courses = %d, want 1", len(list))
	}
}

func TestSeed_MissingCatalog(t *testing.T) {
	if _, err := course.Seed(context.Background(), course.NewMemoryStore(), filepath.Join(t.TempDir(), "missing"), now); err == nil {
		t.Error("Seed() should fail for a missing catalog path")
	}
}
