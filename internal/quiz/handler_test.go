package quiz

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"

	"quizz/internal/auth"
	"quizz/internal/models"
	"quizz/pkg/quizz"
)

// testUser stands in for the JWT middleware.
func testUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.Header.Get("X-Test-User"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), uint(id), "")))
	})
}

func newTestRouter(t *testing.T) (*mux.Router, *testEnv) {
	t.Helper()
	env := newTestService(t)
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(testUser)
	NewHandler(env.svc).RegisterRoutes(api)
	return router, env
}

func do(t *testing.T, router http.Handler, method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.Itoa(int(userID)))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createViaAPI(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/quiz", hostID, models.CreateQuizRequest{Title: "Capitals"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto models.QuizDTO
	if err := json.NewDecoder(rec.Body).Decode(&dto); err != nil {
		t.Fatalf("Failed to decode quiz: %v", err)
	}
	return dto.Code
}

func TestHandlerGameFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	code := createViaAPI(t, router)
	base := "/api/quiz/" + code

	for _, q := range []models.AddQuestionRequest{
		{Question: "Capital of France?", Answers: []string{"Paris"}},
		{Question: "2+2?", Answers: []string{"4"}},
	} {
		if rec := do(t, router, http.MethodPost, base+"/questions", hostID, q); rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, router, http.MethodGet, base+"/current", playerA, nil)
	var current map[string]string
	json.NewDecoder(rec.Body).Decode(&current)
	if rec.Code != http.StatusOK || current["question"] != "Capital of France?" {
		t.Fatalf("Unexpected current question: %d %v", rec.Code, current)
	}

	rec = do(t, router, http.MethodPost, base+"/answer", playerA, models.AnswerRequest{Answer: "paris"})
	var result models.AnswerResult
	json.NewDecoder(rec.Body).Decode(&result)
	if rec.Code != http.StatusOK || !result.Correct || result.Score != 1 {
		t.Fatalf("Unexpected answer result: %d %+v", rec.Code, result)
	}

	rec = do(t, router, http.MethodPost, base+"/next", hostID, nil)
	var next map[string]bool
	json.NewDecoder(rec.Body).Decode(&next)
	if rec.Code != http.StatusOK || !next["advanced"] {
		t.Fatalf("Unexpected next result: %d %v", rec.Code, next)
	}

	rec = do(t, router, http.MethodGet, base+"/leaderboard", playerB, nil)
	var board []quizz.LeaderboardEntry
	json.NewDecoder(rec.Body).Decode(&board)
	if rec.Code != http.StatusOK || len(board) != 1 || board[0].PlayerID != "2" {
		t.Errorf("Unexpected leaderboard: %d %v", rec.Code, board)
	}

	rec = do(t, router, http.MethodGet, base+"/score", playerA, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected own score, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, base+"/score?player=3", playerA, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a player with no score, got %d", rec.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)
	code := createViaAPI(t, router)
	base := "/api/quiz/" + code

	tests := []struct {
		name   string
		method string
		path   string
		user   uint
		body   interface{}
		status int
	}{
		{"no user", http.MethodGet, base, 0, nil, http.StatusUnauthorized},
		{"unknown quiz", http.MethodGet, "/api/quiz/NOPE00", hostID, nil, http.StatusNotFound},
		{"blank title", http.MethodPost, "/api/quiz", hostID, models.CreateQuizRequest{Title: " "}, http.StatusBadRequest},
		{"bad json", http.MethodPost, base + "/questions", hostID, "{", http.StatusBadRequest},
		{"blank question", http.MethodPost, base + "/questions", hostID, models.AddQuestionRequest{Question: "  ", Answers: []string{"a"}}, http.StatusBadRequest},
		{"not host", http.MethodPost, base + "/questions", playerA, models.AddQuestionRequest{Question: "Q", Answers: []string{"a"}}, http.StatusForbidden},
		{"no current question", http.MethodPost, base + "/answer", playerA, models.AnswerRequest{Answer: "a"}, http.StatusConflict},
		{"current on empty quiz", http.MethodGet, base + "/current", playerA, nil, http.StatusNotFound},
		{"bad index", http.MethodDelete, base + "/questions/abc", hostID, nil, http.StatusBadRequest},
		{"index out of range", http.MethodDelete, base + "/questions/3", hostID, nil, http.StatusBadRequest},
		{"bad snapshot", http.MethodPut, base + "/state", hostID, `{"questions":{}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.user, tt.body)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerDuplicateQuestion(t *testing.T) {
	router, _ := newTestRouter(t)
	base := "/api/quiz/" + createViaAPI(t, router)

	q := models.AddQuestionRequest{Question: "Q", Answers: []string{"a"}}
	do(t, router, http.MethodPost, base+"/questions", hostID, q)
	if rec := do(t, router, http.MethodPost, base+"/questions", hostID, q); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}
}

func TestHandlerStateExportImport(t *testing.T) {
	router, _ := newTestRouter(t)
	code := createViaAPI(t, router)
	base := "/api/quiz/" + code

	snapshot := `{"questions":[{"question":"X","answers":["x"]}],"currentQuestionIndex":0,"score":{"7":2}}`
	if rec := do(t, router, http.MethodPut, base+"/state", hostID, snapshot); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(t, router, http.MethodGet, base+"/state", hostID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var st quizz.State
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if st.ID != code || len(st.Questions) != 1 || len(st.Score) != 1 || st.Score[0].Score != 2 {
		t.Errorf("Unexpected state: %+v", st)
	}

	rec = do(t, router, http.MethodGet, base+"/answers", hostID, nil)
	var answers map[string][]string
	json.NewDecoder(rec.Body).Decode(&answers)
	if rec.Code != http.StatusOK || len(answers["answers"]) != 1 {
		t.Errorf("Unexpected answers: %d %v", rec.Code, answers)
	}
	if rec := do(t, router, http.MethodGet, base+"/answers", playerA, nil); rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a player, got %d", rec.Code)
	}
}

func TestHandlerManageQuizzes(t *testing.T) {
	router, _ := newTestRouter(t)
	code := createViaAPI(t, router)
	base := "/api/quiz/" + code

	do(t, router, http.MethodPost, base+"/questions", hostID, models.AddQuestionRequest{Question: "Q", Answers: []string{"a"}})
	if rec := do(t, router, http.MethodPost, base+"/questions/0/answers", hostID, models.AnswerRequest{Answer: "b"}); rec.Code != http.StatusCreated {
		t.Errorf("Expected 201 adding an answer, got %d", rec.Code)
	}

	rec := do(t, router, http.MethodGet, base+"/questions", playerA, nil)
	var questions []models.QuestionDTO
	json.NewDecoder(rec.Body).Decode(&questions)
	if len(questions) != 1 || questions[0].Answers != nil {
		t.Errorf("Expected one question without answers, got %+v", questions)
	}

	if rec := do(t, router, http.MethodPost, base+"/reset", hostID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on reset, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/delete-all", hostID, nil)
	var deleted map[string]bool
	json.NewDecoder(rec.Body).Decode(&deleted)
	if !deleted["deleted"] {
		t.Errorf("Expected delete-all to report true, got %v", deleted)
	}

	rec = do(t, router, http.MethodGet, "/api/quiz/my-quizzes", hostID, nil)
	var mine []models.QuizDTO
	json.NewDecoder(rec.Body).Decode(&mine)
	if len(mine) != 1 || mine[0].Code != code {
		t.Errorf("Unexpected quiz list: %+v", mine)
	}

	if rec := do(t, router, http.MethodDelete, base, hostID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, base, hostID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}
