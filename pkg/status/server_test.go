package status

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/scheduler"
)

type fixedProgress scheduler.Progress

func (f fixedProgress) Progress() scheduler.Progress { return scheduler.Progress(f) }

func TestHandleProgress(t *testing.T) {
	s := New(zap.NewNop(), fixedProgress{Stage: "holders", Completed: 3, Total: 10, Failed: 1}, "run-1")
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, scheduler.Progress{Stage: "holders", Completed: 3, Total: 10, Failed: 1}, body.Progress)
}

func TestHandleHealthAndMethods(t *testing.T) {
	s := New(zap.NewNop(), fixedProgress{}, "run-1")
	srv := httptest.NewServer(s.NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(b))

	resp, err = http.Post(srv.URL+"/v1/progress", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(zap.NewNop(), fixedProgress{Stage: "x"}, "run-1")

	addr, err := s.Start(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown()
	http.DefaultClient.CloseIdleConnections()
	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}
