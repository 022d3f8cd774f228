package sse

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/config"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"github.com/shi0417/kongfuworld-sub004/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "sse-secret"

func newStream(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, zap.NewNop())
	h.keepalive = 50 * time.Millisecond

	r := gin.New()
	r.GET("/sse", mw.Auth(config.SecurityConfig{JWTSecret: secret}), h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

// readEvent returns the next "event:"/"data:" pair, skipping keepalives.
func readEvent(t *testing.T, rd *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestServeSSE_RequiresToken(t *testing.T) {
	srv, _ := newStream(t)
	resp, err := http.Get(srv.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_StreamsUserEvents(t *testing.T) {
	srv, h := newStream(t)
	token, err := mw.GenerateToken(42, secret, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	event, data := readEvent(t, rd)
	assert.Equal(t, "connected", event)
	assert.JSONEq(t, `{"user_id":42}`, data)

	require.NoError(t, h.pubsub.Publish(ctx, mission.Channel(42),
		`{"type":"missions_completed","data":{"completed":true}}`))
	require.NoError(t, h.pubsub.Publish(ctx, mission.Channel(7),
		`{"type":"missions_completed","data":{"completed":true}}`))
	require.NoError(t, h.pubsub.Publish(ctx, mission.Channel(42), `not json`))
	require.NoError(t, h.Announce(ctx, `"maintenance at 03:00"`))

	event, data = readEvent(t, rd)
	assert.Equal(t, "missions_completed", event)
	assert.JSONEq(t, `{"completed":true}`, data)

	event, data = readEvent(t, rd)
	assert.Equal(t, "announce", event, "other users' events and malformed payloads are skipped")
	assert.Equal(t, fmt.Sprintf("%q", "maintenance at 03:00"), data)
}
