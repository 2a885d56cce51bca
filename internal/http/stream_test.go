package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

type sseEvent struct {
	id    string
	event string
	data  string
}

// readEvent reads lines until a complete event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamDeliversSummaryPerSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", core.NewTransactionInput{Description: "Salary", Amount: "1000", Type: "income", Date: "2024-03-01"})

	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/holders/u1/stream?month=2&year=2024", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Equal(t, "summary", first.event)
	assert.Equal(t, "1", first.id)
	var initial SummaryResponse
	require.NoError(t, json.Unmarshal([]byte(first.data), &initial))
	assert.Equal(t, "1,000.00", initial.Display.EndingBalance)
	assert.Equal(t, 1, initial.Counts.Period)

	require.Eventually(t, func() bool { return env.hub.Subscribers("u1") == 1 }, time.Second, 10*time.Millisecond)
	env.seed(t, "u1", core.NewTransactionInput{Description: "Rent", Amount: "400", Date: "2024-03-05"})

	second := readEvent(t, reader)
	assert.Equal(t, "2", second.id)
	var updated SummaryResponse
	require.NoError(t, json.Unmarshal([]byte(second.data), &updated))
	assert.Equal(t, "600.00", updated.Display.EndingBalance)
	assert.Equal(t, 2, updated.Counts.Period)
}

func TestStreamRejectsBadPeriod(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/holders/u1/stream?month=99", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestStreamDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Live = nil })
	rr := env.do(t, http.MethodGet, "/api/v1/holders/u1/stream", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
