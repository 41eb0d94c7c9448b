package matchmaker

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

// MatchmakerApp defines what the service layer needs from the matchmaker
type MatchmakerApp interface {
	FindOrCreateSession(ctx context.Context, playerID string) (*models.Session, error)
	CheckMatchStatus(ctx context.Context, sessionID uuid.UUID) (*MatchStatus, error)
	Cancel(ctx context.Context, sessionID uuid.UUID, playerID string) error
}

// Service implements the MatchService RPCs
type Service struct {
	app MatchmakerApp
}

// NewService creates a new matchmaker service
func NewService(app MatchmakerApp) *Service {
	return &Service{app: app}
}

// FindOrCreateSession seats the caller in a match
func (s *Service) FindOrCreateSession(ctx context.Context, req *connect.Request[FindOrCreateSessionRequest]) (*connect.Response[FindOrCreateSessionResponse], error) {
	session, err := s.app.FindOrCreateSession(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&FindOrCreateSessionResponse{Session: session.Public()}), nil
}

// CheckMatchStatus reports whether the match has filled
func (s *Service) CheckMatchStatus(ctx context.Context, req *connect.Request[CheckMatchStatusRequest]) (*connect.Response[CheckMatchStatusResponse], error) {
	id, err := uuid.Parse(req.Msg.SessionID)
	if err != nil {
		return nil, rpc.InvalidArgument(fmt.Errorf("invalid session_id: %w", err))
	}
	status, err := s.app.CheckMatchStatus(ctx, id)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&CheckMatchStatusResponse{Status: status}), nil
}

// Cancel leaves a match
func (s *Service) Cancel(ctx context.Context, req *connect.Request[CancelRequest]) (*connect.Response[emptypb.Empty], error) {
	id, err := uuid.Parse(req.Msg.SessionID)
	if err != nil {
		return nil, rpc.InvalidArgument(fmt.Errorf("invalid session_id: %w", err))
	}
	if err := s.app.Cancel(ctx, id, req.Msg.PlayerID); err != nil {
		return nil, rpc.Error(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// NewHandler mounts the service under its connect path.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(rpc.HandlerOptions(), opts...)
	mux := http.NewServeMux()
	mux.Handle(rpc.MatchServiceFindOrCreateSessionProcedure, connect.NewUnaryHandler(
		rpc.MatchServiceFindOrCreateSessionProcedure, svc.FindOrCreateSession, opts...))
	mux.Handle(rpc.MatchServiceCheckMatchStatusProcedure, connect.NewUnaryHandler(
		rpc.MatchServiceCheckMatchStatusProcedure, svc.CheckMatchStatus, opts...))
	mux.Handle(rpc.MatchServiceCancelProcedure, connect.NewUnaryHandler(
		rpc.MatchServiceCancelProcedure, svc.Cancel, opts...))
	return rpc.ServicePath(rpc.MatchServiceName), mux
}

// Client calls a remote MatchService
type Client struct {
	findOrCreate *connect.Client[FindOrCreateSessionRequest, FindOrCreateSessionResponse]
	checkStatus  *connect.Client[CheckMatchStatusRequest, CheckMatchStatusResponse]
	cancel       *connect.Client[CancelRequest, emptypb.Empty]
}

// NewClient creates a MatchService client for baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(rpc.ClientOptions(), opts...)
	return &Client{
		findOrCreate: connect.NewClient[FindOrCreateSessionRequest, FindOrCreateSessionResponse](
			httpClient, baseURL+rpc.MatchServiceFindOrCreateSessionProcedure, opts...),
		checkStatus: connect.NewClient[CheckMatchStatusRequest, CheckMatchStatusResponse](
			httpClient, baseURL+rpc.MatchServiceCheckMatchStatusProcedure, opts...),
		cancel: connect.NewClient[CancelRequest, emptypb.Empty](
			httpClient, baseURL+rpc.MatchServiceCancelProcedure, opts...),
	}
}

func (c *Client) FindOrCreateSession(ctx context.Context, playerID string) (*models.Session, error) {
	res, err := c.findOrCreate.CallUnary(ctx, connect.NewRequest(&FindOrCreateSessionRequest{PlayerID: playerID}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Session, nil
}

func (c *Client) CheckMatchStatus(ctx context.Context, sessionID uuid.UUID) (*MatchStatus, error) {
	res, err := c.checkStatus.CallUnary(ctx, connect.NewRequest(&CheckMatchStatusRequest{SessionID: sessionID.String()}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Status, nil
}

func (c *Client) Cancel(ctx context.Context, sessionID uuid.UUID, playerID string) error {
	_, err := c.cancel.CallUnary(ctx, connect.NewRequest(&CancelRequest{SessionID: sessionID.String(), PlayerID: playerID}))
	return err
}
