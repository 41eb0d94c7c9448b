package answers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/rpc"
)

// LedgerApp defines what the service layer needs from the answer ledger
type LedgerApp interface {
	Submit(ctx context.Context, req SubmitAnswerRequest) (*models.Answer, error)
	ListRoundAnswers(ctx context.Context, sessionID uuid.UUID, round int) ([]models.Answer, error)
}

// Service implements the AnswerService RPCs for clients without a live coordinator
type Service struct {
	app LedgerApp
}

func NewService(app LedgerApp) *Service {
	return &Service{app: app}
}

// SubmitAnswer records an answer. A repeat for the same round succeeds with duplicate=true.
func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRPCRequest]) (*connect.Response[SubmitAnswerRPCResponse], error) {
	sessionID, err := uuid.Parse(req.Msg.SessionID)
	if err != nil {
		return nil, rpc.InvalidArgument(fmt.Errorf("invalid session_id: %w", err))
	}

	answer, err := s.app.Submit(ctx, SubmitAnswerRequest{
		SessionID:   sessionID,
		PlayerID:    req.Msg.PlayerID,
		RoundNumber: req.Msg.RoundNumber,
		AnswerText:  req.Msg.Answer,
		TimeLeft:    req.Msg.TimeLeft,
	})
	if errors.Is(err, ErrDuplicateAnswer) {
		stored, lookupErr := s.findStored(ctx, sessionID, req.Msg.PlayerID, req.Msg.RoundNumber)
		if lookupErr != nil {
			return nil, rpc.Error(lookupErr)
		}
		return connect.NewResponse(&SubmitAnswerRPCResponse{Answer: stored, Duplicate: true}), nil
	}
	if err != nil && answer == nil {
		return nil, rpc.Error(err)
	}
	// answer != nil with err: stored but the award failed; the answer still counts.
	return connect.NewResponse(&SubmitAnswerRPCResponse{Answer: answer}), nil
}

func (s *Service) findStored(ctx context.Context, sessionID uuid.UUID, playerID string, round int) (*models.Answer, error) {
	stored, err := s.app.ListRoundAnswers(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	for i := range stored {
		if stored[i].PlayerID == playerID {
			return &stored[i], nil
		}
	}
	return nil, nil
}

func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(rpc.HandlerOptions(), opts...)
	mux := http.NewServeMux()
	mux.Handle(rpc.AnswerServiceSubmitAnswerProcedure, connect.NewUnaryHandler(
		rpc.AnswerServiceSubmitAnswerProcedure, svc.SubmitAnswer, opts...))
	return rpc.ServicePath(rpc.AnswerServiceName), mux
}

// Client calls a remote AnswerService
type Client struct {
	submit *connect.Client[SubmitAnswerRPCRequest, SubmitAnswerRPCResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(rpc.ClientOptions(), opts...)
	return &Client{
		submit: connect.NewClient[SubmitAnswerRPCRequest, SubmitAnswerRPCResponse](
			httpClient, baseURL+rpc.AnswerServiceSubmitAnswerProcedure, opts...),
	}
}

func (c *Client) SubmitAnswer(ctx context.Context, req *SubmitAnswerRPCRequest) (*SubmitAnswerRPCResponse, error) {
	res, err := c.submit.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
