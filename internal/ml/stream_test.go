package ml

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func zeroFeatures(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage("0")
	}
	return out
}

func TestStream_PredictsPerMessage(t *testing.T) {
	ms, metrics := newTestServer(t, ServerConfig{}, nil)
	srv := httptest.NewServer(ms.Handler())
	defer srv.Close()

	conn := dialStream(t, srv, nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	requests := []StreamRequest{
		{Pipeline: "exoplanet", Features: zeroFeatures(19), RequestID: "a"},
		{Pipeline: "habitability", Features: zeroFeatures(15), RequestID: "b"},
		{Pipeline: "habitability", Features: zeroFeatures(3), RequestID: "c"},
		{Pipeline: "weather", Features: zeroFeatures(1), RequestID: "d"},
	}
	for _, req := range requests {
		require.NoError(t, conn.WriteJSON(req))
	}

	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "a", resp.RequestID)
	assert.Empty(t, resp.Error)
	assert.Equal(t, map[string]any{"prediction": "CONFIRMED", "label": "confirmed", "confidence": 0.8}, resp.Result)

	resp = StreamResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "b", resp.RequestID)
	assert.Equal(t, map[string]any{"status": "habitable", "confidence": 0.75}, resp.Result)

	resp = StreamResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "c", resp.RequestID)
	assert.Equal(t, "exactly 15 features are required, got 3", resp.Error)
	assert.Nil(t, resp.Result)

	resp = StreamResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "d", resp.RequestID)
	assert.Equal(t, `unknown pipeline "weather"`, resp.Error)

	assert.Equal(t, 1, metrics.Predictions("exoplanet"))
	assert.Equal(t, 1, metrics.Failures("habitability", "validation"))
}

func TestStream_InvalidMessageKeepsSessionOpen(t *testing.T) {
	ms, _ := newTestServer(t, ServerConfig{}, nil)
	srv := httptest.NewServer(ms.Handler())
	defer srv.Close()

	conn := dialStream(t, srv, nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Contains(t, resp.Error, "invalid request")

	require.NoError(t, conn.WriteJSON(StreamRequest{Pipeline: "exoplanet", Features: zeroFeatures(19)}))
	resp = StreamResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Empty(t, resp.Error)
	assert.Equal(t, "exoplanet", resp.Pipeline)
}

func TestStream_RejectsDisallowedOrigin(t *testing.T) {
	ms, _ := newTestServer(t, ServerConfig{AllowedOrigins: []string{"https://app.example"}}, nil)
	srv := httptest.NewServer(ms.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predict"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dialStream(t, srv, http.Header{"Origin": []string{"https://app.example"}})
	require.NoError(t, conn.WriteJSON(StreamRequest{Pipeline: "exoplanet", Features: zeroFeatures(19)}))
	var ok StreamResponse
	require.NoError(t, conn.ReadJSON(&ok))
	assert.Empty(t, ok.Error)
}

func TestStream_SessionGauge(t *testing.T) {
	ms, metrics := newTestServer(t, ServerConfig{}, nil)
	srv := httptest.NewServer(ms.Handler())
	defer srv.Close()

	conn := dialStream(t, srv, nil)
	require.NoError(t, conn.WriteJSON(StreamRequest{Pipeline: "exoplanet", Features: zeroFeatures(19)}))
	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))

	metrics.mu.Lock()
	open := metrics.streamSessions
	metrics.mu.Unlock()
	assert.Equal(t, 1.0, open)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.streamSessions == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStream_NullFeaturesAreRejected(t *testing.T) {
	ms, metrics := newTestServer(t, ServerConfig{}, nil)

	nulls := make([]json.RawMessage, 15)
	for i := range nulls {
		nulls[i] = json.RawMessage("null")
	}
	msg, err := json.Marshal(StreamRequest{Pipeline: "habitability", Features: nulls, RequestID: "n"})
	require.NoError(t, err)

	resp := ms.streamPredict(msg)
	assert.Equal(t, "n", resp.RequestID)
	assert.Equal(t, "feature 0 is null", resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, 0, metrics.Predictions("habitability"))
	assert.Equal(t, 1, metrics.Failures("habitability", "validation"))

	resp = ms.streamPredict([]byte(`{"pipeline":"exoplanet","features":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,"x",0]}`))
	assert.Equal(t, "feature 17 is not a number", resp.Error)
	assert.Nil(t, resp.Result)
}

func TestStream_NullFeatureOverConnection(t *testing.T) {
	ms, _ := newTestServer(t, ServerConfig{}, nil)
	srv := httptest.NewServer(ms.Handler())
	defer srv.Close()

	conn := dialStream(t, srv, nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	features := zeroFeatures(19)
	features[5] = json.RawMessage("null")
	require.NoError(t, conn.WriteJSON(StreamRequest{Pipeline: "exoplanet", Features: features, RequestID: "z"}))

	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "z", resp.RequestID)
	assert.Equal(t, "feature 5 is null", resp.Error)
	assert.Nil(t, resp.Result)
}
