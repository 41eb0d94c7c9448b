package redisstore

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
)

const keyPrefix = "quizduel"

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

func answersKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:answers:%s", keyPrefix, sessionID)
}

func statusIndexKey(status models.SessionStatus) string {
	return fmt.Sprintf("%s:sessions:%s", keyPrefix, status)
}

func changesChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:changes:%s", keyPrefix, sessionID)
}

func answerField(playerID string, round int) string {
	return fmt.Sprintf("%d:%s", round, playerID)
}

var allStatuses = []models.SessionStatus{
	models.SessionStatusOpen,
	models.SessionStatusActive,
	models.SessionStatusFinished,
}
