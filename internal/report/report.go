// Package report exports learner progress as spreadsheets.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/user"
)

// Sheet names in the progress workbook.
const (
	EnrollmentsSheet = "Enrollments"
	QuizSheet        = "Quiz Results"
)

const timeLayout = "2006-01-02 15:04"

var (
	enrollmentHeader = []any{"Name", "Email", "Course", "Enrolled At", "Lessons Completed", "Total Lessons", "Progress (%)", "Completed", "Completed At"}
	quizHeader       = []any{"Name", "Email", "Course", "Score", "Total Questions", "Percentage", "Submitted At"}
)

// Generator builds progress workbooks from the user and course stores.
type Generator struct {
	users   user.Store
	courses course.Store
}

func NewGenerator(users user.Store, courses course.Store) *Generator {
	return &Generator{users: users, courses: courses}
}

// WriteProgress writes an XLSX workbook with one row per enrollment and one
// row per quiz attempt across all users.
func (g *Generator) WriteProgress(ctx context.Context, w io.Writer) error {
	users, err := g.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", EnrollmentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(QuizSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	lookup := g.courseLookup(ctx)
	enrollments := [][]any{enrollmentHeader}
	quizzes := [][]any{quizHeader}

	for _, u := range users {
		for _, e := range u.EnrolledCourses {
			c := lookup(e.Course)
			completedAt := ""
			if e.CompletedAt != nil {
				completedAt = e.CompletedAt.UTC().Format(timeLayout)
			}
			enrollments = append(enrollments, []any{
				u.Name, u.Email, c.title,
				e.EnrolledAt.UTC().Format(timeLayout),
				len(e.CompletedLessons), c.lessons, e.Progress,
				yesNo(e.Completed), completedAt,
			})
		}
		for _, r := range u.QuizResults {
			quizzes = append(quizzes, []any{
				u.Name, u.Email, lookup(r.Course).title,
				r.Score, r.TotalQuestions, r.Percentage,
				r.CompletedAt.UTC().Format(timeLayout),
			})
		}
	}

	if err := writeRows(f, EnrollmentsSheet, enrollments, bold); err != nil {
		return err
	}
	if err := writeRows(f, QuizSheet, quizzes, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	slog.Info("progress report generated", "users", len(users), "enrollments", len(enrollments)-1, "quiz_results", len(quizzes)-1)
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

type courseInfo struct {
	title   string
	lessons int
}

// courseLookup memoizes course titles; courses that no longer exist are
// reported by id.
func (g *Generator) courseLookup(ctx context.Context) func(id string) courseInfo {
	seen := make(map[string]courseInfo)
	return func(id string) courseInfo {
		if info, ok := seen[id]; ok {
			return info
		}
		info := courseInfo{title: id}
		c, err := g.courses.Get(ctx, id)
		switch {
		case err == nil:
			info = courseInfo{title: c.Title, lessons: c.TotalLessons()}
		case !errors.Is(err, course.ErrNotFound):
			slog.Warn("failed to load course for report", "course_id", id, "error", err)
		}
		seen[id] = info
		return info
	}
}
