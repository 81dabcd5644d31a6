package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/api"
	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/report"
	"github.com/p-n-ai/pai-academy/internal/user"
)

type testEnv struct {
	srv     *httptest.Server
	auth    *auth.Service
	users   *user.MemoryStore
	courses *course.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := user.NewMemoryStore()
	courses := course.NewMemoryStore()
	broker := progress.NewMemoryBroker()

	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error = %v", err)
	}
	authSvc := auth.NewService(users, tokens)

	srv, err := api.New(api.Config{
		Auth:     authSvc,
		Courses:  course.NewService(courses, users),
		Progress: progress.NewEngine(progress.EngineConfig{Users: users, Courses: courses, Broker: broker}),
		Broker:   broker,
		Reports:  report.NewGenerator(users, courses),
	})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}

	mux := http.NewServeMux()
	srv.Register(mux)
	ts := httptest.NewServer(api.LogRequests(mux))
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, auth: authSvc, users: users, courses: courses}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expect(t *testing.T, resp *http.Response, status int, out any) {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status = %d, want %d; body = %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

type session struct {
	ID    string `json:"_id"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

func (e *testEnv) register(t *testing.T, name, email string) session {
	t.Helper()
	var s session
	resp := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "password123",
	})
	expect(t, resp, http.StatusCreated, &s)
	return s
}

func (e *testEnv) admin(t *testing.T) session {
	t.Helper()
	s := e.register(t, "Admin", "admin@example.com")
	if _, err := e.auth.SetRole(context.Background(), "admin@example.com", user.RoleAdmin); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	s.Role = string(user.RoleAdmin)
	return s
}

type courseJSON struct {
	ID            string `json:"_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	EnrolledCount int    `json:"enrolledCount"`
	Lessons       []struct {
		ID string `json:"_id"`
	} `json:"lessons"`
	QuizQuestions []struct {
		ID            string `json:"_id"`
		CorrectAnswer int    `json:"correctAnswer"`
	} `json:"quizQuestions"`
}

func coursePayload(title, status string, lessons int) map[string]any {
	ls := make([]map[string]any, lessons)
	for i := range ls {
		ls[i] = map[string]any{"title": fmt.Sprintf("Lesson %d", i+1)}
	}
	return map[string]any{
		"title":       title,
		"description": "A course about " + title,
		"difficulty":  "Beginner",
		"status":      status,
		"tags":        []string{"Go"},
		"lessons":     ls,
		"quizQuestions": []map[string]any{
			{"question": "Is Go compiled?", "options": []string{"Yes", "No"}, "correctAnswer": 0},
			{"question": "Does Go have generics?", "options": []string{"No", "Yes"}, "correctAnswer": 1},
		},
	}
}

func (e *testEnv) createCourse(t *testing.T, token, title, status string, lessons int) courseJSON {
	t.Helper()
	var c courseJSON
	expect(t, e.do(t, http.MethodPost, "/api/courses", token, coursePayload(title, status, lessons)), http.StatusCreated, &c)
	return c
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	reg := e.register(t, "Alex Johnson", "alex@example.com")
	if reg.Token == "" || reg.Role != "student" {
		t.Fatalf("register = %+v, want student with token", reg)
	}

	var login session
	expect(t, e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ALEX@example.com", "password": "password123",
	}), http.StatusOK, &login)
	if login.ID != reg.ID {
		t.Errorf("login id = %s, want %s", login.ID, reg.ID)
	}

	var me struct {
		Email            string `json:"email"`
		CompletedCourses int    `json:"completedCourses"`
		AverageScore     int    `json:"averageScore"`
		PasswordHash     string `json:"passwordHash"`
	}
	expect(t, e.do(t, http.MethodGet, "/api/auth/me", login.Token, nil), http.StatusOK, &me)
	if me.Email != "alex@example.com" || me.PasswordHash != "" {
		t.Errorf("me = %+v", me)
	}

	var updated struct {
		Bio string `json:"bio"`
	}
	expect(t, e.do(t, http.MethodPut, "/api/auth/profile", login.Token, map[string]string{"bio": "Gopher"}), http.StatusOK, &updated)
	if updated.Bio != "Gopher" {
		t.Errorf("bio = %q, want Gopher", updated.Bio)
	}
}

func TestAuthErrors(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Alex", "alex@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"duplicate email", http.MethodPost, "/api/auth/register", "", map[string]string{"name": "A", "email": "alex@example.com", "password": "password123"}, http.StatusConflict},
		{"short password", http.MethodPost, "/api/auth/register", "", map[string]string{"name": "B", "email": "b@example.com", "password": "pw"}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/auth/register", "", "{not json", http.StatusBadRequest},
		{"wrong password", http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alex@example.com", "password": "nope-nope"}, http.StatusUnauthorized},
		{"me without token", http.MethodGet, "/api/auth/me", "", nil, http.StatusUnauthorized},
		{"me with bad token", http.MethodGet, "/api/auth/me", "garbage", nil, http.StatusUnauthorized},
		{"public route with bad token", http.MethodGet, "/api/courses", "garbage", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Message string `json:"message"`
			}
			expect(t, e.do(t, tt.method, tt.path, tt.token, tt.body), tt.status, &body)
			if body.Message == "" {
				t.Error("error responses should carry a message")
			}
		})
	}
}

func TestRegister_ValidationErrorsNameFields(t *testing.T) {
	e := newTestEnv(t)

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	expect(t, e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": " ", "email": "nope", "password": "password123",
	}), http.StatusBadRequest, &body)

	if body.Errors["email"] == "" || body.Errors["name"] == "" {
		t.Errorf("errors = %v, want email and name entries", body.Errors)
	}
}

func TestCourseAdministration(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	student := e.register(t, "Student", "student@example.com")

	expect(t, e.do(t, http.MethodPost, "/api/courses", student.Token, coursePayload("Go", "Published", 2)), http.StatusForbidden, nil)

	var invalid struct {
		Errors map[string]string `json:"errors"`
	}
	bad := coursePayload("Go", "Published", 2)
	bad["difficulty"] = "Impossible"
	expect(t, e.do(t, http.MethodPost, "/api/courses", admin.Token, bad), http.StatusBadRequest, &invalid)
	if invalid.Errors["difficulty"] == "" {
		t.Errorf("errors = %v, want difficulty entry", invalid.Errors)
	}

	published := e.createCourse(t, admin.Token, "Go Basics", "Published", 2)
	draft := e.createCourse(t, admin.Token, "Go Internals", "Draft", 1)
	if len(published.Lessons) != 2 || published.Lessons[0].ID == "" {
		t.Fatalf("lessons = %+v, want two with ids", published.Lessons)
	}

	var list []courseJSON
	expect(t, e.do(t, http.MethodGet, "/api/courses", "", nil), http.StatusOK, &list)
	if len(list) != 1 || list[0].ID != published.ID {
		t.Errorf("anonymous list = %+v, want only the published course", list)
	}
	expect(t, e.do(t, http.MethodGet, "/api/courses?status=Draft", admin.Token, nil), http.StatusOK, &list)
	if len(list) != 1 || list[0].ID != draft.ID {
		t.Errorf("admin draft list = %+v, want the draft", list)
	}
	expect(t, e.do(t, http.MethodGet, "/api/courses?difficulty=Expert", "", nil), http.StatusBadRequest, nil)

	expect(t, e.do(t, http.MethodGet, "/api/courses/"+draft.ID, student.Token, nil), http.StatusNotFound, nil)
	expect(t, e.do(t, http.MethodGet, "/api/courses/"+draft.ID, admin.Token, nil), http.StatusOK, nil)

	update := coursePayload("Go Basics, Revised", "Published", 3)
	var updated courseJSON
	expect(t, e.do(t, http.MethodPut, "/api/courses/"+published.ID, admin.Token, update), http.StatusOK, &updated)
	if updated.Title != "Go Basics, Revised" || len(updated.Lessons) != 3 {
		t.Errorf("updated = %+v", updated)
	}

	expect(t, e.do(t, http.MethodPost, "/api/courses/"+published.ID+"/enroll", student.Token, nil), http.StatusOK, nil)
	expect(t, e.do(t, http.MethodPost, "/api/courses/"+published.ID+"/enroll", student.Token, nil), http.StatusConflict, nil)
	expect(t, e.do(t, http.MethodPost, "/api/courses/"+draft.ID+"/enroll", student.Token, nil), http.StatusNotFound, nil)

	draftQuiz := map[string]any{"courseId": draft.ID, "answers": map[string]int{}}
	expect(t, e.do(t, http.MethodPost, "/api/progress/quiz/submit", student.Token, draftQuiz), http.StatusNotFound, nil)
	var staffScore struct {
		Total int `json:"total"`
	}
	expect(t, e.do(t, http.MethodPost, "/api/progress/quiz/submit", admin.Token, draftQuiz), http.StatusOK, &staffScore)
	if staffScore.Total != 2 {
		t.Errorf("staff draft quiz total = %d, want 2", staffScore.Total)
	}

	expect(t, e.do(t, http.MethodDelete, "/api/courses/"+published.ID, student.Token, nil), http.StatusForbidden, nil)
	expect(t, e.do(t, http.MethodDelete, "/api/courses/"+published.ID, admin.Token, nil), http.StatusConflict, nil)
	expect(t, e.do(t, http.MethodDelete, "/api/courses/"+draft.ID, admin.Token, nil), http.StatusOK, nil)
	expect(t, e.do(t, http.MethodGet, "/api/courses/"+draft.ID, admin.Token, nil), http.StatusNotFound, nil)
}

func TestRecommendations(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	student := e.register(t, "Student", "student@example.com")

	first := e.createCourse(t, admin.Token, "Go Basics", "Published", 1)
	second := e.createCourse(t, admin.Token, "Go Concurrency", "Published", 1)
	expect(t, e.do(t, http.MethodPost, "/api/courses/"+first.ID+"/enroll", student.Token, nil), http.StatusOK, nil)

	var recs []struct {
		ID     string `json:"_id"`
		Reason string `json:"reason"`
	}
	expect(t, e.do(t, http.MethodGet, "/api/courses/recommendations", student.Token, nil), http.StatusOK, &recs)
	if len(recs) != 1 || recs[0].ID != second.ID || recs[0].Reason != course.ReasonInterests {
		t.Errorf("recommendations = %+v, want the other Go course by interest", recs)
	}
}

func TestProgressFlow(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	student := e.register(t, "Student", "student@example.com")
	c := e.createCourse(t, admin.Token, "Go Basics", "Published", 5)
	other := e.createCourse(t, admin.Token, "Rust Basics", "Published", 1)

	complete := func(courseID, lessonID string) *http.Response {
		return e.do(t, http.MethodPost, "/api/progress/lesson/complete", student.Token, map[string]string{
			"courseId": courseID, "lessonId": lessonID,
		})
	}

	var notEnrolled struct {
		Message string `json:"message"`
	}
	expect(t, complete(c.ID, c.Lessons[0].ID), http.StatusNotFound, &notEnrolled)
	if notEnrolled.Message != user.ErrNotEnrolled.Error() {
		t.Errorf("message = %q, want %q", notEnrolled.Message, user.ErrNotEnrolled)
	}

	expect(t, e.do(t, http.MethodPost, "/api/courses/"+c.ID+"/enroll", student.Token, nil), http.StatusOK, nil)

	type lessonResp struct {
		Message   string `json:"message"`
		Progress  int    `json:"progress"`
		Completed bool   `json:"completed"`
	}
	for i, l := range c.Lessons {
		var got lessonResp
		expect(t, complete(c.ID, l.ID), http.StatusOK, &got)
		if want := (i + 1) * 20; got.Progress != want {
			t.Errorf("lesson %d progress = %d, want %d", i+1, got.Progress, want)
		}
	}
	var again lessonResp
	expect(t, complete(c.ID, c.Lessons[0].ID), http.StatusOK, &again)
	if again.Progress != 100 || !again.Completed || again.Message != "Lesson completed" {
		t.Errorf("repeat = %+v, want completed at 100", again)
	}
	expect(t, complete(c.ID, other.Lessons[0].ID), http.StatusNotFound, nil)
	expect(t, complete(c.ID, ""), http.StatusBadRequest, nil)

	var score struct {
		Score      int `json:"score"`
		Total      int `json:"total"`
		Percentage int `json:"percentage"`
	}
	answers := map[string]int{}
	for _, q := range c.QuizQuestions {
		answers[q.ID] = q.CorrectAnswer
	}
	expect(t, e.do(t, http.MethodPost, "/api/progress/quiz/submit", student.Token, map[string]any{
		"courseId": c.ID, "answers": answers,
	}), http.StatusOK, &score)
	if score.Score != 2 || score.Total != 2 || score.Percentage != 100 {
		t.Errorf("quiz = %+v, want 2/2 100%%", score)
	}
	expect(t, e.do(t, http.MethodPost, "/api/progress/quiz/submit", student.Token, map[string]any{
		"courseId": c.ID, "answers": map[string]int{},
	}), http.StatusOK, &score)
	if score.Percentage != 0 {
		t.Errorf("empty answers percentage = %d, want 0", score.Percentage)
	}

	var summary struct {
		InProgress     []json.RawMessage `json:"inProgress"`
		Completed      []struct {
			Course string `json:"course"`
			Title  string `json:"title"`
		} `json:"completed"`
		TotalCourses   int `json:"totalCourses"`
		CompletedCount int `json:"completedCount"`
		AverageScore   int `json:"averageScore"`
	}
	expect(t, e.do(t, http.MethodGet, "/api/progress", student.Token, nil), http.StatusOK, &summary)
	if summary.TotalCourses != 1 || summary.CompletedCount != 1 || summary.AverageScore != 50 {
		t.Errorf("summary = %+v, want 1 course completed, average 50", summary)
	}
	if len(summary.Completed) != 1 || summary.Completed[0].Title != "Go Basics" {
		t.Errorf("completed = %+v", summary.Completed)
	}

	var weekly []struct {
		LessonsCompleted int `json:"lessonsCompleted"`
		CoursesCompleted int `json:"coursesCompleted"`
	}
	expect(t, e.do(t, http.MethodGet, "/api/progress/weekly", student.Token, nil), http.StatusOK, &weekly)
	if len(weekly) != 1 || weekly[0].LessonsCompleted != 5 || weekly[0].CoursesCompleted != 1 {
		t.Errorf("weekly = %+v, want one day with 5 lessons and 1 course", weekly)
	}
}

func TestProgressReport(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	student := e.register(t, "Student", "student@example.com")
	c := e.createCourse(t, admin.Token, "Go Basics", "Published", 2)
	expect(t, e.do(t, http.MethodPost, "/api/courses/"+c.ID+"/enroll", student.Token, nil), http.StatusOK, nil)

	expect(t, e.do(t, http.MethodGet, "/api/admin/reports/progress", student.Token, nil), http.StatusForbidden, nil)

	resp := e.do(t, http.MethodGet, "/api/admin/reports/progress", admin.Token, nil)
	expect(t, resp, http.StatusOK, nil)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q, want xlsx", ct)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(report.EnrollmentsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][2] != "Go Basics" {
		t.Errorf("rows = %v, want header and one enrollment", rows)
	}
}

func TestLiveProgress(t *testing.T) {
	e := newTestEnv(t)
	admin := e.admin(t)
	student := e.register(t, "Student", "student@example.com")
	c := e.createCourse(t, admin.Token, "Go Basics", "Published", 2)
	expect(t, e.do(t, http.MethodPost, "/api/courses/"+c.ID+"/enroll", student.Token, nil), http.StatusOK, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/progress/live?token=" + student.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	// The server subscribes right after the handshake.
	time.Sleep(200 * time.Millisecond)

	expect(t, e.do(t, http.MethodPost, "/api/progress/lesson/complete", student.Token, map[string]string{
		"courseId": c.ID, "lessonId": c.Lessons[0].ID,
	}), http.StatusOK, nil)

	var ev progress.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("wsjson.Read() error = %v", err)
	}
	if ev.Type != progress.EventLessonCompleted || ev.Progress != 50 || ev.CourseID != c.ID {
		t.Errorf("event = %+v, want lesson_completed at 50", ev)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestLiveProgress_RequiresToken(t *testing.T) {
	e := newTestEnv(t)
	expect(t, e.do(t, http.MethodGet, "/api/progress/live", "", nil), http.StatusUnauthorized, nil)
}
