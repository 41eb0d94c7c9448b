package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionCategory defines the philosophy topic of a question.
type QuestionCategory string

const (
	QuestionCategoryLogic            QuestionCategory = "LOGIC"
	QuestionCategoryEthics           QuestionCategory = "ETHICS"
	QuestionCategoryEpistemology     QuestionCategory = "EPISTEMOLOGY"
	QuestionCategoryOntology         QuestionCategory = "ONTOLOGY"
	QuestionCategoryMetaphysics      QuestionCategory = "METAPHYSICS"
	QuestionCategoryPolitical        QuestionCategory = "POLITICAL"
	QuestionCategoryExistentialism   QuestionCategory = "EXISTENTIALISM"
	QuestionCategoryAesthetics       QuestionCategory = "AESTHETICS"
	QuestionCategoryEastern          QuestionCategory = "EASTERN"
	QuestionCategoryAncientGreek     QuestionCategory = "ANCIENT_GREEK"
	QuestionCategoryModern           QuestionCategory = "MODERN"
	QuestionCategoryContemporary     QuestionCategory = "CONTEMPORARY"
	QuestionCategoryPhilosophyOfMind QuestionCategory = "PHILOSOPHY_OF_MIND"
	QuestionCategoryPhenomenology    QuestionCategory = "PHENOMENOLOGY"
	QuestionCategoryLanguage         QuestionCategory = "LANGUAGE"
	QuestionCategoryReligion         QuestionCategory = "RELIGION"
)

// QuestionDifficulty defines how hard a question is.
type QuestionDifficulty string

const (
	QuestionDifficultyEasy   QuestionDifficulty = "EASY"
	QuestionDifficultyMedium QuestionDifficulty = "MEDIUM"
	QuestionDifficultyHard   QuestionDifficulty = "HARD"
)

// Valid reports whether c is one of the known categories.
func (c QuestionCategory) Valid() bool {
	switch c {
	case QuestionCategoryLogic, QuestionCategoryEthics, QuestionCategoryEpistemology,
		QuestionCategoryOntology, QuestionCategoryMetaphysics, QuestionCategoryPolitical,
		QuestionCategoryExistentialism, QuestionCategoryAesthetics, QuestionCategoryEastern,
		QuestionCategoryAncientGreek, QuestionCategoryModern, QuestionCategoryContemporary,
		QuestionCategoryPhilosophyOfMind, QuestionCategoryPhenomenology, QuestionCategoryLanguage,
		QuestionCategoryReligion:
		return true
	}
	return false
}

func (d QuestionDifficulty) Valid() bool {
	switch d {
	case QuestionDifficultyEasy, QuestionDifficultyMedium, QuestionDifficultyHard:
		return true
	}
	return false
}

// Question is a read-only entry of the question bank.
type Question struct {
	ID            uuid.UUID          `json:"id"`
	Text          string             `json:"text"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correct_answer"`
	Category      QuestionCategory   `json:"category"`
	Difficulty    QuestionDifficulty `json:"difficulty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Context snapshots q for embedding in a session.
func (q Question) Context() QuestionContext {
	return QuestionContext{
		QuestionID:    q.ID,
		Text:          q.Text,
		Options:       append([]string(nil), q.Options...),
		CorrectAnswer: q.CorrectAnswer,
		Category:      q.Category,
		Difficulty:    q.Difficulty,
	}
}
