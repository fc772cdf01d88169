// internal/quiz/handler.go
package quiz

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"quizz/internal/auth"
	"quizz/internal/models"
	"quizz/pkg/quizz"
)

const maxStateBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the quiz API on an already authenticated router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/quiz/my-quizzes", h.GetMyQuizzes).Methods("GET")
	r.HandleFunc("/quiz", h.CreateQuiz).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}", h.GetQuiz).Methods("GET", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}", h.DeleteQuiz).Methods("DELETE")
	r.HandleFunc("/quiz/{quizCode}/questions", h.GetQuestions).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/questions", h.AddQuestion).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/questions/{index}", h.RemoveQuestion).Methods("DELETE")
	r.HandleFunc("/quiz/{quizCode}/questions/{index}/answers", h.AddAnswer).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/current", h.GetCurrentQuestion).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/answers", h.GetAnswers).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/next", h.NextQuestion).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/answer", h.SubmitAnswer).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/score", h.GetScore).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/leaderboard", h.GetLeaderboard).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/reset", h.Reset).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/delete-all", h.DeleteAll).Methods("POST", "OPTIONS")
	r.HandleFunc("/quiz/{quizCode}/state", h.ExportState).Methods("GET")
	r.HandleFunc("/quiz/{quizCode}/state", h.ImportState).Methods("PUT", "OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quizz.ErrValidation), errors.Is(err, quizz.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, quizz.ErrDuplicate), errors.Is(err, quizz.ErrNoCurrentQuestion):
		status = http.StatusConflict
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func currentUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "Invalid question index", http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	rec, err := h.service.CreateQuiz(r.Context(), req.Title, req.Description, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ToQuizDTO(rec, quizz.New(), userID))
}

func (h *Handler) GetMyQuizzes(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	quizzes, err := h.service.ListQuizzes(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	dto, err := h.service.GetQuiz(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteQuiz(r.Context(), mux.Vars(r)["quizCode"], userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	questions, err := h.service.Questions(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.AddQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.AddQuestion(r.Context(), mux.Vars(r)["quizCode"], userID, req.Question, req.Answers); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) RemoveQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveQuestion(r.Context(), mux.Vars(r)["quizCode"], userID, index); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}

	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.AddAnswer(r.Context(), mux.Vars(r)["quizCode"], userID, index, req.Answer); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) GetCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	text, ok, err := h.service.CurrentQuestion(r.Context(), mux.Vars(r)["quizCode"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, quizz.ErrNoCurrentQuestion.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": text})
}

func (h *Handler) GetAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	answers, err := h.service.Answers(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"answers": answers})
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	advanced, err := h.service.NextQuestion(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"advanced": advanced})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.service.CheckAnswer(r.Context(), mux.Vars(r)["quizCode"], userID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetScore reports the caller's score unless ?player= names someone else.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	player := PlayerID(userID)
	if p := r.URL.Query().Get("player"); p != "" {
		player = quizz.PlayerID(p)
	}

	score, found, err := h.service.Score(r.Context(), mux.Vars(r)["quizCode"], player)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "Player has no score", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, quizz.LeaderboardEntry{PlayerID: player, Score: score})
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context(), mux.Vars(r)["quizCode"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(r.Context(), mux.Vars(r)["quizCode"], userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteAll(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) ExportState(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	st, err := h.service.ExportState(r.Context(), mux.Vars(r)["quizCode"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ImportState(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxStateBytes))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.ImportState(r.Context(), mux.Vars(r)["quizCode"], userID, data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
