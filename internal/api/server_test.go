package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geotrack/internal/config"
	"github.com/banshee-data/geotrack/internal/geostore"
	"github.com/banshee-data/geotrack/internal/overlay"
	"github.com/banshee-data/geotrack/internal/pipeline"
	"github.com/banshee-data/geotrack/internal/timeutil"
	"github.com/banshee-data/geotrack/internal/version"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	srv   *Server
	mux   http.Handler
	p     *pipeline.Pipeline
	store *geostore.MemoryStore
	hub   *overlay.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := timeutil.NewMockClock(epoch)
	store := geostore.NewMemoryStore(geostore.RetryPolicy{MaxAttempts: 10, Clock: clock})
	loc := pipeline.NewLatestFix(0, clock)
	hub := overlay.NewHub()
	t.Cleanup(hub.Close)

	p, err := pipeline.New(pipeline.Config{
		Tuning:     config.EmptyTuningConfig(),
		Repository: geostore.NewRepository(store, nil),
		Location:   loc,
		Publisher:  hub,
		Clock:      clock,
		Session:    "api",
	})
	require.NoError(t, err)

	srv := NewServer(p, loc, store, hub)
	return &testServer{srv: srv, mux: LoggingMiddleware(srv.ServeMux()), p: p, store: store, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, r)
	return w
}

const frameBody = `{
  "width": 1000,
  "height": 1000,
  "timestamp": "2025-06-01T12:00:00Z",
  "detections": [
    {"label": "person", "confidence": 0.9, "box": {"x": 0.45, "y": 0.3, "w": 0.1, "h": 0.4}},
    {"label": "kite", "confidence": 0.7, "box": {"x": 0.1, "y": 0.1, "w": 0.1, "h": 0.1}}
  ],
  "location": {"lat": 52.37, "lon": 4.89, "altitude": 1, "heading": 0}
}`

func TestFrames_ProcessesAndPersists(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/frames", frameBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res pipeline.FrameResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, "person", res.Tracks[0].Class)
	assert.NotNil(t, res.Tracks[0].Spatial)
	assert.True(t, res.Persisting)

	ts.p.Wait()

	w = ts.do(t, http.MethodGet, "/api/geopoints/person-1-api", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec geostore.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Person #1", rec.Name)
	assert.Len(t, rec.Lat, 1)

	w = ts.do(t, http.MethodGet, "/api/geopoints?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []geostore.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestFrames_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"unknown field", `{"width": 10, "height": 10, "fps": 30}`},
		{"zero size", `{"width": 0, "height": 10}`},
		{"huge width", `{"width": 1e308, "height": 10}`},
		{"huge height", `{"width": 10, "height": 100000}`},
		{"invalid location", `{"width": 10, "height": 10, "location": {"lat": 95, "lon": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/frames", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestFrames_MalformedBoxDoesNotPoisonTracks(t *testing.T) {
	ts := newTestServer(t)

	frame := func(boxes string) string {
		return `{"width": 1000, "height": 1000, "detections": [` + boxes + `]}`
	}
	person := `{"label": "person", "confidence": 0.9, "box": {"x": 0.45, "y": 0.3, "w": 0.1, "h": 0.4}}`
	overhang := `{"label": "person", "confidence": 0.9, "box": {"x": 0.5, "y": 0.1, "w": 1.5, "h": 0.5}}`

	w := ts.do(t, http.MethodPost, "/api/frames", frame(person+`,`+overhang))
	require.Equal(t, http.StatusOK, w.Code)
	var result pipeline.FrameResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Tracks, 1, "the malformed box is dropped")

	w = ts.do(t, http.MethodPost, "/api/frames", frame(""))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	w = ts.do(t, http.MethodGet, "/api/tracks", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, int64(1), result.Tracks[0].ID)
}

func TestFrames_WithoutLocationSkipsPersistence(t *testing.T) {
	ts := newTestServer(t)

	body := `{"width": 1000, "height": 1000, "detections": [
	  {"label": "person", "confidence": 0.9, "box": {"x": 0.45, "y": 0.3, "w": 0.1, "h": 0.4}}]}`
	w := ts.do(t, http.MethodPost, "/api/frames", body)
	require.Equal(t, http.StatusOK, w.Code)
	ts.p.Wait()

	w = ts.do(t, http.MethodGet, "/api/geopoints", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLocation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/location", `{"lat": 1.5, "lon": 2.5, "altitude": 3, "heading": 45}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"lat": 1.5, "lon": 2.5, "altitude": 3, "heading": 45}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/location", `{"lat": 1.5, "lon": 200}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/location", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTracks_ReturnsLatestFrame(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/frames", frameBody)
	ts.p.Wait()

	w := ts.do(t, http.MethodGet, "/api/tracks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res pipeline.FrameResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, int64(1), res.Sequence)
	assert.Len(t, res.Tracks, 1)
}

func TestGeoPoints_Errors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/geopoints/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/geopoints/", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/geopoints?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/geopoints?limit=ten", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodDelete, "/api/geopoints/x", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPost, "/api/geopoints", "").Code)
}

func TestGeoPoints_ListOrderAndLimit(t *testing.T) {
	ts := newTestServer(t)
	repo := geostore.NewRepository(ts.store, nil)
	for i, key := range []string{"a", "b", "c"} {
		_, err := repo.UpsertAndAppend(context.Background(), geostore.Observation{
			Key: key, Name: key, Icon: "car", Time: epoch.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	w := ts.do(t, http.MethodGet, "/api/geopoints?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []geostore.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestVersion(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, version.Version, got["version"])
	assert.Equal(t, version.GitSHA, got["git_sha"])
}

func TestFrames_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodGet, "/api/frames", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPost, "/api/tracks", "").Code)
}

func TestWebsocketThroughMiddleware(t *testing.T) {
	ts := newTestServer(t)
	httpSrv := httptest.NewServer(ts.mux)
	defer httpSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Post(httpSrv.URL+"/api/frames", "application/json", bytes.NewBufferString(frameBody))
	require.NoError(t, err)
	resp.Body.Close()
	ts.p.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var res pipeline.FrameResult
	require.NoError(t, json.Unmarshal(msg, &res))
	assert.Len(t, res.Tracks, 1)
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()

	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(301), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestLocation_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)

	body := `{"lat": 1, "lon": 2, "altitude": 0, "heading": 0` + strings.Repeat(" ", maxBodyBytes) + `}`
	w := ts.do(t, http.MethodPost, "/api/location", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
