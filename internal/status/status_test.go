package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netaudio/internal/track"
)

type fakeSource struct{}

func (fakeSource) Senders() []*track.SenderPipeline     { return nil }
func (fakeSource) Receivers() []*track.ReceiverPipeline { return nil }

func TestStatusHandlerReturnsEmptySnapshot(t *testing.T) {
	s := NewServer("127.0.0.1:0", fakeSource{}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	s.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Empty(t, snap.Senders)
	assert.Empty(t, snap.Receivers)
}
