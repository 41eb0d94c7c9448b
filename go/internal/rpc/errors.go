package rpc

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// Error maps domain errors onto connect codes.
func Error(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, questions.ErrQuestionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrDuplicateAnswer):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, store.ErrRoundClosed),
		errors.Is(err, store.ErrPreconditionFailed),
		errors.Is(err, questions.ErrInsufficientQuestions):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case strings.Contains(err.Error(), "validation failed"):
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// InvalidArgument wraps a request decoding problem.
func InvalidArgument(err error) error {
	return connect.NewError(connect.CodeInvalidArgument, err)
}
