package questions

import (
	"errors"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// ErrInsufficientQuestions is returned when the bank cannot fill a match.
var ErrInsufficientQuestions = errors.New("insufficient questions")

// ErrQuestionNotFound is returned by GetQuestion for an unknown id.
var ErrQuestionNotFound = errors.New("question not found")

// Filter narrows the bank. Empty fields match everything.
type Filter struct {
	Category   models.QuestionCategory   `yaml:"category" json:"category,omitempty"`
	Difficulty models.QuestionDifficulty `yaml:"difficulty" json:"difficulty,omitempty"`
}

// Matches reports whether q passes the filter.
func (f Filter) Matches(q models.Question) bool {
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	return true
}
