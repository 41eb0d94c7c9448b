package answers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, f fixture) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewService(f.app)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL)
}

func Test_Service_SubmitAnswer_Reports_Duplicates(t *testing.T) {
	// Arrange
	f := newFixture(t)
	client := newTestClient(t, f)
	ctx := context.Background()
	req := &SubmitAnswerRPCRequest{SessionID: f.session.ID.String(), PlayerID: "A", RoundNumber: 0, Answer: "X", TimeLeft: 20}

	// Act
	first, err := client.SubmitAnswer(ctx, req)
	require.NoError(t, err)
	req.Answer = "Y"
	second, err := client.SubmitAnswer(ctx, req)
	require.NoError(t, err)

	// Assert
	assert.False(t, first.Duplicate)
	assert.True(t, first.Answer.IsCorrect)
	assert.True(t, second.Duplicate)
	require.NotNil(t, second.Answer)
	assert.Equal(t, "X", second.Answer.AnswerText)

	got, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Scores["A"])
}

func Test_Service_SubmitAnswer_Error_Codes(t *testing.T) {
	f := newFixture(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	_, err := client.SubmitAnswer(ctx, &SubmitAnswerRPCRequest{SessionID: "nope", PlayerID: "A", Answer: "X"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.SubmitAnswer(ctx, &SubmitAnswerRPCRequest{SessionID: f.session.ID.String(), PlayerID: "A", RoundNumber: 3, Answer: "X"})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = client.SubmitAnswer(ctx, &SubmitAnswerRPCRequest{SessionID: f.session.ID.String(), PlayerID: "Z", Answer: "X"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
