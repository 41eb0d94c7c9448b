package sessions

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/rpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionResponse struct {
	Session *models.Session `json:"session"`
}

type ListSessionsRPCRequest struct {
	Status string `json:"status,omitempty"`
	HostID string `json:"host_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []*models.Session `json:"sessions"`
}

type DeleteSessionRequest struct {
	SessionID string `json:"session_id"`
}

type ListAnswersRequest struct {
	SessionID string `json:"session_id"`
	Round     *int   `json:"round,omitempty"`
}

type ListAnswersResponse struct {
	Answers []models.Answer `json:"answers"`
}

// SessionsApp defines what the service layer needs from session administration
type SessionsApp interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, req ListSessionsRequest) ([]models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListAnswers(ctx context.Context, id uuid.UUID, round *int) ([]models.Answer, error)
}

// Service implements the SessionService RPCs
type Service struct {
	app SessionsApp
}

func NewService(app SessionsApp) *Service {
	return &Service{app: app}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, rpc.InvalidArgument(fmt.Errorf("invalid session_id: %w", err))
	}
	return id, nil
}

func (s *Service) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	id, err := parseID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.app.GetSession(ctx, id)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&GetSessionResponse{Session: session.Public()}), nil
}

func (s *Service) ListSessions(ctx context.Context, req *connect.Request[ListSessionsRPCRequest]) (*connect.Response[ListSessionsResponse], error) {
	appReq := ListSessionsRequest{HostID: req.Msg.HostID, Limit: req.Msg.Limit}
	if req.Msg.Status != "" {
		status := models.SessionStatus(req.Msg.Status)
		appReq.Status = &status
	}

	sessions, err := s.app.ListSessions(ctx, appReq)
	if err != nil {
		return nil, rpc.Error(err)
	}

	out := make([]*models.Session, len(sessions))
	for i := range sessions {
		out[i] = sessions[i].Public()
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: out}), nil
}

func (s *Service) DeleteSession(ctx context.Context, req *connect.Request[DeleteSessionRequest]) (*connect.Response[emptypb.Empty], error) {
	id, err := parseID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.app.DeleteSession(ctx, id); err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *Service) ListAnswers(ctx context.Context, req *connect.Request[ListAnswersRequest]) (*connect.Response[ListAnswersResponse], error) {
	id, err := parseID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	answers, err := s.app.ListAnswers(ctx, id, req.Msg.Round)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if answers == nil {
		answers = []models.Answer{}
	}
	return connect.NewResponse(&ListAnswersResponse{Answers: answers}), nil
}

func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(rpc.HandlerOptions(), opts...)
	mux := http.NewServeMux()
	mux.Handle(rpc.SessionServiceGetSessionProcedure, connect.NewUnaryHandler(
		rpc.SessionServiceGetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(rpc.SessionServiceListSessionsProcedure, connect.NewUnaryHandler(
		rpc.SessionServiceListSessionsProcedure, svc.ListSessions, opts...))
	mux.Handle(rpc.SessionServiceDeleteSessionProcedure, connect.NewUnaryHandler(
		rpc.SessionServiceDeleteSessionProcedure, svc.DeleteSession, opts...))
	mux.Handle(rpc.SessionServiceListAnswersProcedure, connect.NewUnaryHandler(
		rpc.SessionServiceListAnswersProcedure, svc.ListAnswers, opts...))
	return rpc.ServicePath(rpc.SessionServiceName), mux
}

// Client calls a remote SessionService
type Client struct {
	get     *connect.Client[GetSessionRequest, GetSessionResponse]
	list    *connect.Client[ListSessionsRPCRequest, ListSessionsResponse]
	del     *connect.Client[DeleteSessionRequest, emptypb.Empty]
	answers *connect.Client[ListAnswersRequest, ListAnswersResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(rpc.ClientOptions(), opts...)
	return &Client{
		get: connect.NewClient[GetSessionRequest, GetSessionResponse](
			httpClient, baseURL+rpc.SessionServiceGetSessionProcedure, opts...),
		list: connect.NewClient[ListSessionsRPCRequest, ListSessionsResponse](
			httpClient, baseURL+rpc.SessionServiceListSessionsProcedure, opts...),
		del: connect.NewClient[DeleteSessionRequest, emptypb.Empty](
			httpClient, baseURL+rpc.SessionServiceDeleteSessionProcedure, opts...),
		answers: connect.NewClient[ListAnswersRequest, ListAnswersResponse](
			httpClient, baseURL+rpc.SessionServiceListAnswersProcedure, opts...),
	}
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	res, err := c.get.CallUnary(ctx, connect.NewRequest(&GetSessionRequest{SessionID: id.String()}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Session, nil
}

func (c *Client) ListSessions(ctx context.Context, req *ListSessionsRPCRequest) ([]*models.Session, error) {
	res, err := c.list.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg.Sessions, nil
}

func (c *Client) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := c.del.CallUnary(ctx, connect.NewRequest(&DeleteSessionRequest{SessionID: id.String()}))
	return err
}

func (c *Client) ListAnswers(ctx context.Context, id uuid.UUID, round *int) ([]models.Answer, error) {
	res, err := c.answers.CallUnary(ctx, connect.NewRequest(&ListAnswersRequest{SessionID: id.String(), Round: round}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Answers, nil
}
