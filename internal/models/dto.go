// internal/models/dto.go
package models

import "quizz/pkg/quizz"

type QuizDTO struct {
	Code            string  `json:"code"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	CreatorID       uint    `json:"creator_id"`
	QuestionCount   int     `json:"question_count"`
	CurrentIndex    int     `json:"current_index"`
	CurrentQuestion *string `json:"current_question"`
	IsHost          bool    `json:"is_host"`
}

type QuestionDTO struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Answers []string `json:"answers,omitempty"` // Only for host
}

type CreateQuizRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type AddQuestionRequest struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type AnswerResult struct {
	PlayerID string `json:"playerId"`
	Correct  bool   `json:"correct"`
	Score    int    `json:"score"`
}

func ToQuizDTO(rec *QuizRecord, q *quizz.Quiz, userID uint) QuizDTO {
	dto := QuizDTO{
		Code:          rec.QuizCode,
		Title:         rec.Title,
		Description:   rec.Description,
		CreatorID:     rec.CreatorID,
		QuestionCount: q.Len(),
		CurrentIndex:  q.CurrentIndex(),
		IsHost:        rec.CreatorID == userID,
	}
	if text, ok := q.Question(); ok {
		dto.CurrentQuestion = &text
	}
	return dto
}

// ToQuestionDTOs hides answers from everyone but the host.
func ToQuestionDTOs(questions []quizz.Question, isHost bool) []QuestionDTO {
	out := make([]QuestionDTO, len(questions))
	for i, q := range questions {
		out[i] = QuestionDTO{Index: i, Text: q.Text}
		if isHost {
			out[i].Answers = q.Answers
		}
	}
	return out
}
