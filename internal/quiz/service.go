// internal/quiz/service.go
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"quizz/internal/models"
	"quizz/pkg/cache"
	"quizz/pkg/quizz"
)

var (
	ErrNotFound  = errors.New("quiz not found")
	ErrForbidden = errors.New("only the quiz host can do that")
	ErrHostPlay  = fmt.Errorf("%w: the host cannot answer", ErrForbidden)
)

const (
	maxCodeAttempts = 5
	cacheTimeout    = 2 * time.Second
)

// Broadcaster pushes events to everyone connected to a quiz room.
type Broadcaster interface {
	BroadcastMessage(quizCode string, messageType string, data interface{})
}

type Service struct {
	repo  *Repository
	cache *cache.RedisCache
	wsHub Broadcaster

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// stale holds codes whose redis entry may be older than the database
	// because both the write and the eviction failed.
	stale map[string]bool
}

func NewService(repo *Repository, cache *cache.RedisCache, wsHub Broadcaster) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		wsHub: wsHub,
		locks: make(map[string]*sync.Mutex),
		stale: make(map[string]bool),
	}
}

// PlayerID maps an authenticated user onto a scoreboard key.
func PlayerID(userID uint) quizz.PlayerID {
	return quizz.PlayerID(strconv.FormatUint(uint64(userID), 10))
}

func (s *Service) lock(code string) func() {
	s.mu.Lock()
	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) broadcast(code, messageType string, data interface{}) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.BroadcastMessage(code, messageType, data)
}

func (s *Service) CreateQuiz(ctx context.Context, title, description string, creatorID uint) (*models.QuizRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", quizz.ErrValidation)
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	state, err := encodeState(code, quizz.New(quizz.WithID(code)))
	if err != nil {
		return nil, err
	}

	rec := &models.QuizRecord{
		Title:       title,
		Description: description,
		CreatorID:   creatorID,
		QuizCode:    code,
		State:       state,
	}
	if err := s.repo.CreateQuiz(ctx, rec); err != nil {
		return nil, err
	}

	s.refreshCache(rec, nil)
	return rec, nil
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateQuizCode()
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		log.Printf("Quiz code %s already taken, retrying", code)
	}
	return "", errors.New("could not allocate a unique quiz code")
}

func (s *Service) isStale(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale[code]
}

func (s *Service) setStale(code string, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stale {
		s.stale[code] = true
	} else {
		delete(s.stale, code)
	}
}

// load serves reads through the cache, falling back to the database. It must
// not be called with the quiz lock held.
func (s *Service) load(ctx context.Context, code string) (*models.QuizRecord, *quizz.Quiz, error) {
	if !s.isStale(code) {
		rec, err := s.cache.GetQuiz(ctx, code)
		if err == nil {
			if q, err := decodeState(rec); err == nil {
				return rec, q, nil
			}
			log.Printf("Ignoring undecodable cache entry for quiz %s", code)
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Printf("Error reading quiz %s from cache: %v", code, err)
		}
	}

	// Fill under the quiz lock so an older row never replaces a newer write.
	defer s.lock(code)()

	rec, q, err := s.loadCommitted(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	s.refreshCache(rec, nil)
	return rec, q, nil
}

// loadCommitted reads the quiz from the database. Every mutation starts from
// here so a lagging cache can never be written back.
func (s *Service) loadCommitted(ctx context.Context, code string) (*models.QuizRecord, *quizz.Quiz, error) {
	rec, err := s.repo.GetQuizByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	q, err := decodeState(rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, q, nil
}

// refreshCache writes rec to redis on its own deadline, so a cancelled
// request cannot leave the old snapshot behind. When the write fails the key
// is evicted; when that fails too the quiz bypasses redis until a later write
// succeeds. A nil leaderboard leaves the mirror alone.
func (s *Service) refreshCache(rec *models.QuizRecord, leaderboard []quizz.LeaderboardEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()

	err := s.cache.SetQuiz(ctx, rec)
	if err == nil && leaderboard != nil {
		err = s.cache.SetLeaderboard(ctx, rec.QuizCode, leaderboard)
	}
	if err == nil {
		s.setStale(rec.QuizCode, false)
		return
	}
	log.Printf("Error caching quiz %s: %v", rec.QuizCode, err)

	s.evict(ctx, rec.QuizCode)
}

func (s *Service) evict(ctx context.Context, code string) {
	if err := s.cache.DeleteQuiz(ctx, code); err != nil {
		log.Printf("Error evicting quiz %s from cache, reading it from the database: %v", code, err)
		s.setStale(code, true)
		return
	}
	s.setStale(code, false)
}

// store persists the snapshot and refreshes both cache entries.
func (s *Service) store(ctx context.Context, rec *models.QuizRecord, q *quizz.Quiz) error {
	state, err := encodeState(rec.QuizCode, q)
	if err != nil {
		return err
	}

	if err := s.repo.SaveState(ctx, rec.QuizCode, state); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	rec.State = state

	s.refreshCache(rec, q.Leaderboard())
	return nil
}

// update runs fn against the live quiz under the quiz lock and persists
// the result when fn succeeds.
func (s *Service) update(ctx context.Context, code string, userID uint, fn func(q *quizz.Quiz) error) (*quizz.Quiz, error) {
	defer s.lock(code)()

	rec, q, err := s.loadCommitted(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.CreatorID != userID {
		return nil, ErrForbidden
	}

	if err := fn(q); err != nil {
		return nil, err
	}
	if err := s.store(ctx, rec, q); err != nil {
		return nil, err
	}
	return q, nil
}

func encodeState(code string, q *quizz.Quiz) (string, error) {
	st := q.SaveState()
	st.ID = code
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeState(rec *models.QuizRecord) (*quizz.Quiz, error) {
	if rec.State == "" {
		return quizz.New(quizz.WithID(rec.QuizCode)), nil
	}
	q, err := quizz.Load([]byte(rec.State))
	if err != nil {
		// Stored state is ours, so a bad one is an internal fault.
		return nil, fmt.Errorf("corrupt state for quiz %s: %v", rec.QuizCode, err)
	}
	return q, nil
}

func (s *Service) GetQuiz(ctx context.Context, code string, userID uint) (models.QuizDTO, error) {
	rec, q, err := s.load(ctx, code)
	if err != nil {
		return models.QuizDTO{}, err
	}
	return models.ToQuizDTO(rec, q, userID), nil
}

func (s *Service) ListQuizzes(ctx context.Context, userID uint) ([]models.QuizDTO, error) {
	recs, err := s.repo.GetQuizzesByCreator(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.QuizDTO, 0, len(recs))
	for i := range recs {
		q, err := decodeState(&recs[i])
		if err != nil {
			log.Printf("Skipping quiz %s: %v", recs[i].QuizCode, err)
			continue
		}
		out = append(out, models.ToQuizDTO(&recs[i], q, userID))
	}
	return out, nil
}

func (s *Service) DeleteQuiz(ctx context.Context, code string, userID uint) error {
	defer s.lock(code)()

	rec, _, err := s.loadCommitted(ctx, code)
	if err != nil {
		return err
	}
	if rec.CreatorID != userID {
		return ErrForbidden
	}

	if err := s.repo.DeleteQuiz(ctx, code); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	cacheCtx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	s.evict(cacheCtx, code)

	s.broadcast(code, "quiz_deleted", map[string]string{"code": code})
	return nil
}

func (s *Service) AddQuestion(ctx context.Context, code string, userID uint, text string, answers []string) error {
	q, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		return q.AddQuestion(text, answers)
	})
	if err != nil {
		return err
	}

	s.broadcast(code, "questions_updated", map[string]int{"total": q.Len()})
	return nil
}

// RemoveQuestion may move the cursor, so the room is told what is current now.
func (s *Service) RemoveQuestion(ctx context.Context, code string, userID uint, index int) error {
	q, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		return q.RemoveQuestion(index)
	})
	if err != nil {
		return err
	}

	s.broadcast(code, "questions_updated", map[string]int{"total": q.Len()})
	s.broadcastCurrent(code, q)
	return nil
}

func (s *Service) AddAnswer(ctx context.Context, code string, userID uint, index int, answer string) error {
	_, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		return q.AddAnswerToQuestion(index, answer)
	})
	return err
}

// Exists reports whether a quiz with code is hosted.
func (s *Service) Exists(ctx context.Context, code string) (bool, error) {
	_, _, err := s.load(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) CurrentQuestion(ctx context.Context, code string) (string, bool, error) {
	_, q, err := s.load(ctx, code)
	if err != nil {
		return "", false, err
	}
	text, ok := q.Question()
	return text, ok, nil
}

func (s *Service) Questions(ctx context.Context, code string, userID uint) ([]models.QuestionDTO, error) {
	rec, q, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return models.ToQuestionDTOs(q.Questions(), rec.CreatorID == userID), nil
}

// Answers reveals the accepted answers of the current question to the host.
func (s *Service) Answers(ctx context.Context, code string, userID uint) ([]string, error) {
	rec, q, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.CreatorID != userID {
		return nil, ErrForbidden
	}
	return q.Answers()
}

func (s *Service) NextQuestion(ctx context.Context, code string, userID uint) (bool, error) {
	var advanced bool
	q, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		advanced = q.NextQuestion()
		return nil
	})
	if err != nil {
		return false, err
	}

	if advanced {
		s.broadcastCurrent(code, q)
	} else {
		log.Printf("Quiz %s has no further questions", code)
		s.broadcast(code, "quiz_end", map[string]interface{}{
			"leaderboard": q.Leaderboard(),
		})
	}
	return advanced, nil
}

func (s *Service) broadcastCurrent(code string, q *quizz.Quiz) {
	text, ok := q.Question()
	if !ok {
		return
	}
	s.broadcast(code, "question", map[string]interface{}{
		"question": text,
		"index":    q.CurrentIndex(),
		"total":    q.Len(),
	})
}

// CheckAnswer scores answer for userID against the current question.
func (s *Service) CheckAnswer(ctx context.Context, code string, userID uint, answer string) (models.AnswerResult, error) {
	unlock := s.lock(code)

	rec, q, err := s.loadCommitted(ctx, code)
	if err != nil {
		unlock()
		return models.AnswerResult{}, err
	}
	if rec.CreatorID == userID {
		unlock()
		return models.AnswerResult{}, ErrHostPlay
	}

	player := PlayerID(userID)
	correct, err := q.CheckAnswer(player, answer)
	if err != nil {
		unlock()
		return models.AnswerResult{}, err
	}
	if err := s.store(ctx, rec, q); err != nil {
		unlock()
		return models.AnswerResult{}, err
	}
	unlock()

	score, _ := q.Score(player)
	result := models.AnswerResult{
		PlayerID: string(player),
		Correct:  correct,
		Score:    score,
	}

	s.broadcast(code, "answer_update", result)
	s.broadcast(code, "leaderboard", q.Leaderboard())
	return result, nil
}

func (s *Service) Score(ctx context.Context, code string, player quizz.PlayerID) (int, bool, error) {
	_, q, err := s.load(ctx, code)
	if err != nil {
		return 0, false, err
	}
	score, ok := q.Score(player)
	return score, ok, nil
}

// Leaderboard reads from the snapshot. The redis sorted set is a mirror for
// external readers and does not keep tie order.
func (s *Service) Leaderboard(ctx context.Context, code string) ([]quizz.LeaderboardEntry, error) {
	_, q, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return q.Leaderboard(), nil
}

func (s *Service) Reset(ctx context.Context, code string, userID uint) error {
	q, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		q.Reset()
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcast(code, "quiz_reset", nil)
	s.broadcastCurrent(code, q)
	return nil
}

func (s *Service) DeleteAll(ctx context.Context, code string, userID uint) (bool, error) {
	var deleted bool
	_, err := s.update(ctx, code, userID, func(q *quizz.Quiz) error {
		deleted = q.DeleteAll()
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.broadcast(code, "quiz_reset", nil)
		s.broadcast(code, "questions_updated", map[string]int{"total": 0})
	}
	return deleted, nil
}

func (s *Service) ExportState(ctx context.Context, code string, userID uint) (*quizz.State, error) {
	rec, q, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec.CreatorID != userID {
		return nil, ErrForbidden
	}

	st := q.SaveState()
	st.ID = code
	return st, nil
}

// ImportState replaces the whole quiz with a serialized snapshot.
func (s *Service) ImportState(ctx context.Context, code string, userID uint, data []byte) error {
	imported, err := quizz.Load(data)
	if err != nil {
		return err
	}

	defer s.lock(code)()

	rec, _, err := s.loadCommitted(ctx, code)
	if err != nil {
		return err
	}
	if rec.CreatorID != userID {
		return ErrForbidden
	}
	if err := s.store(ctx, rec, imported); err != nil {
		return err
	}

	s.broadcast(code, "quiz_reset", nil)
	s.broadcastCurrent(code, imported)
	return nil
}

func generateQuizCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, 6)
	for i := range code {
		code[i] = charset[rand.Intn(len(charset))]
	}
	return string(code)
}
