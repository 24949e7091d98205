package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"story-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeServer отдает заранее заданные состояния и записывает запросы.
type fakeServer struct {
	mu        sync.Mutex
	states    []models.CurrentNodeView
	step      int
	requests  []string
	sessionID string
	failWith  int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_ = json.NewEncoder(w).Encode(models.APIError{Error: "session not found"})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/session":
		_ = json.NewEncoder(w).Encode(models.CreateSessionResponse{SessionID: f.sessionID})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/current"):
		_ = json.NewEncoder(w).Encode(f.states[f.step])
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/choose/"):
		f.step++
		_ = json.NewEncoder(w).Encode(models.ChoiceSuccess())
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

var twoStepStory = []models.CurrentNodeView{
	{
		DisplayText: "A fork in the road.",
		Choices: []models.ChoiceView{
			{ID: "left_path", DisplayText: "Go left"},
			{ID: "right_path", DisplayText: "Go right"},
		},
	},
	{
		DisplayText: "You reached the village.",
		Choices:     []models.ChoiceView{},
		GameOver:    true,
	},
}

func newAPI(t *testing.T, srv *fakeServer) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL, time.Second, zap.NewNop())
}

func TestPlayerSessionGame(t *testing.T) {
	srv := &fakeServer{states: twoStepStory, sessionID: "0f8fad5b-d9cb-469f-a165-70867728950e"}
	api := newAPI(t, srv)
	ctx := context.Background()

	game, err := StartSession(ctx, api)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, NewPlayer(game, strings.NewReader("2\n"), &out).Run(ctx))

	assert.Equal(t, "GAME\n"+
		"\nA fork in the road.\n\n"+
		"1. Go left\n"+
		"2. Go right\n"+
		"\n"+
		"Enter your choice: "+
		"\nYou reached the village.\n\n"+
		"\n", out.String())

	sid := srv.sessionID
	assert.Equal(t, []string{
		"POST /session",
		"GET /session/" + sid + "/current",
		"POST /session/" + sid + "/choose/right_path",
		"GET /session/" + sid + "/current",
	}, srv.recorded())
}

func TestPlayerGlobalGame(t *testing.T) {
	srv := &fakeServer{states: twoStepStory}
	api := newAPI(t, srv)

	var out strings.Builder
	require.NoError(t, NewPlayer(NewGlobalGame(api), strings.NewReader(" 1 \n"), &out).Run(context.Background()))

	assert.Equal(t, []string{
		"GET /current",
		"POST /choose/left_path",
		"GET /current",
	}, srv.recorded())
}

func TestPlayerStopsAtGameOver(t *testing.T) {
	srv := &fakeServer{states: twoStepStory[1:]}
	api := newAPI(t, srv)

	var out strings.Builder
	require.NoError(t, NewPlayer(NewGlobalGame(api), strings.NewReader("1\n"), &out).Run(context.Background()))

	assert.NotContains(t, out.String(), prompt)
	assert.Equal(t, []string{"GET /current"}, srv.recorded())
}

func TestPlayerInputErrors(t *testing.T) {
	for name, input := range map[string]string{
		"not a number": "left\n",
		"zero":         "0\n",
		"too large":    "3\n",
		"negative":     "-1\n",
	} {
		t.Run(name, func(t *testing.T) {
			srv := &fakeServer{states: twoStepStory}
			api := newAPI(t, srv)

			err := NewPlayer(NewGlobalGame(api), strings.NewReader(input), &strings.Builder{}).Run(context.Background())
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, []string{"GET /current"}, srv.recorded(), "no choice is submitted")
		})
	}

	t.Run("end of input", func(t *testing.T) {
		srv := &fakeServer{states: twoStepStory}
		api := newAPI(t, srv)

		err := NewPlayer(NewGlobalGame(api), strings.NewReader(""), &strings.Builder{}).Run(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("last line without newline", func(t *testing.T) {
		srv := &fakeServer{states: twoStepStory}
		api := newAPI(t, srv)

		err := NewPlayer(NewGlobalGame(api), strings.NewReader("2"), &strings.Builder{}).Run(context.Background())
		require.NoError(t, err)
	})
}

func TestPlayerServerErrors(t *testing.T) {
	srv := &fakeServer{states: twoStepStory, failWith: http.StatusNotFound}
	api := newAPI(t, srv)

	var out strings.Builder
	err := NewPlayer(NewGlobalGame(api), strings.NewReader("1\n"), &out).Run(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session not found", apiErr.Message)
	assert.Equal(t, "GAME\n", out.String(), "nothing is rendered before the state is fetched")
}

func TestStartSessionFailure(t *testing.T) {
	srv := &fakeServer{failWith: http.StatusInternalServerError}
	api := newAPI(t, srv)

	_, err := StartSession(context.Background(), api)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, []string{"POST /session"}, srv.recorded())
}

func TestNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	api := NewHTTPClient(url, 200*time.Millisecond, zap.NewNop())
	_, err := api.GetCurrent(context.Background(), "")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestChooseInvalidOptionIsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.InvalidOption("START", "CAVE"))
	}))
	t.Cleanup(ts.Close)

	api := NewHTTPClient(ts.URL+"/", time.Second, zap.NewNop())
	_, err := api.Choose(context.Background(), "abc", "CAVE")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "InvalidOption")
}
