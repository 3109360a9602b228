package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petems/audio-ingest/internal/sink/webrtc"
	"github.com/petems/audio-ingest/internal/status"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	capturing bool
	info      *track.Info
}

func (f *fakeSession) IsCapturing() bool      { return f.capturing }
func (f *fakeSession) TrackInfo() *track.Info { return f.info.Clone() }

type fakeNegotiator struct {
	offers  []string
	err     error
	removed []string
}

func (f *fakeNegotiator) Answer(_ context.Context, offer string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.offers = append(f.offers, offer)
	return "abc", "v=0 answer", nil
}

func (f *fakeNegotiator) Peers() int { return len(f.offers) - len(f.removed) }

func (f *fakeNegotiator) Remove(id string) error {
	if id != "abc" {
		return webrtc.ErrUnknownSession
	}
	f.removed = append(f.removed, id)
	return nil
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ind := status.New(zerolog.Nop())
	ind.SetCapturing()
	s := New(":0", &fakeSession{capturing: true}, zerolog.Nop(), WithVersion("1.2.3"), WithStatus(ind))

	rec := serve(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, true, body["capturing"])
	assert.Equal(t, "capturing", body["capture_status"])
	assert.NotContains(t, body, "peers")
}

func TestHealthzReportsPeers(t *testing.T) {
	n := &fakeNegotiator{}
	s := New(":0", &fakeSession{}, zerolog.Nop(), WithNegotiator(n))
	require.Equal(t, http.StatusCreated, serve(s, http.MethodPost, "/whep", "v=0 offer").Code)

	rec := serve(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["peers"])
}

func TestTrackInfo(t *testing.T) {
	session := &fakeSession{}
	s := New(":0", session, zerolog.Nop())

	rec := serve(s, http.MethodGet, "/track", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session.info = &track.Info{
		TrackName:    track.AudioTrackName,
		CodecName:    track.CodecNameOpus,
		SampleRate:   16000,
		Channels:     1,
		CodecPrivate: []byte{1, 2},
	}
	rec = serve(s, http.MethodGet, "/track", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got track.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, *session.info, got)
}

func TestMetricsRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	s := New(":0", &fakeSession{}, zerolog.Nop(), WithMetrics(registry))
	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 1")

	without := New(":0", &fakeSession{}, zerolog.Nop())
	assert.Equal(t, http.StatusNotFound, serve(without, http.MethodGet, "/metrics", "").Code)
}

func TestWHEPOffer(t *testing.T) {
	n := &fakeNegotiator{}
	s := New(":0", &fakeSession{}, zerolog.Nop(), WithNegotiator(n))

	rec := serve(s, http.MethodPost, "/whep", "v=0 offer")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/whep/abc", rec.Header().Get("Location"))
	assert.Equal(t, "application/sdp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "v=0 answer", rec.Body.String())
	assert.Equal(t, []string{"v=0 offer"}, n.offers)

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/whep", "").Code)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodDelete, "/whep/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodDelete, "/whep/nope", "").Code)
	assert.Equal(t, []string{"abc"}, n.removed)
}

func TestWHEPOfferErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "bad offer", err: errors.New("bad sdp"), code: http.StatusBadRequest},
		{name: "closed", err: webrtc.ErrClosed, code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(":0", &fakeSession{}, zerolog.Nop(), WithNegotiator(&fakeNegotiator{err: tt.err}))
			assert.Equal(t, tt.code, serve(s, http.MethodPost, "/whep", "v=0").Code)
		})
	}
}

func TestWHEPDisabled(t *testing.T) {
	s := New(":0", &fakeSession{}, zerolog.Nop())
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPost, "/whep", "v=0").Code)
}

func TestStartShutdown(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSession{}, zerolog.Nop())
	errCh := s.Start()
	require.Eventually(t, func() bool { return s.echo.ListenerAddr() != nil }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	for err := range errCh {
		assert.NoError(t, err)
	}
}
