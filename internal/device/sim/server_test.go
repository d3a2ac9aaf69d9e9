package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_StateHoldRelease(t *testing.T) {
	s := newTestSim()
	h := s.Handler()
	require.NoError(t, s.SendWeight(context.Background(), 12.5))
	require.NoError(t, s.SendStart(context.Background()))

	rec := do(t, h, http.MethodPost, "/hold?position=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Held)
	assert.Equal(t, 20.0, st.PositionMm)

	rec = do(t, h, http.MethodPost, "/hold?position=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/release", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Held)
	assert.True(t, st.Running)
	assert.Equal(t, 12.5, st.WeightKg)
}

func TestServer_Faults(t *testing.T) {
	s := newTestSim()
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/fault", `{"command":"weight","message":"overload"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualError(t, s.SendWeight(context.Background(), 10), "weight: overload")

	rec = do(t, h, http.MethodPost, "/fault", `{"command":"start"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodDelete, "/fault", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, s.SendStart(context.Background()))

	var lost []error
	s.SubscribeConnectionErrors(func(err error) { lost = append(lost, err) })
	rec = do(t, h, http.MethodPost, "/fault", `{"connection":"out of range"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	ticks(s, 1)
	require.Len(t, lost, 1)
	assert.EqualError(t, lost[0], "out of range")

	for _, body := range []string{`{"command":"launch"}`, `{}`, `not json`} {
		rec = do(t, h, http.MethodPost, "/fault", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServer_CommandsAndMetrics(t *testing.T) {
	s := newTestSim()
	h := s.Handler()
	require.NoError(t, s.SendClearFault(context.Background()))
	require.NoError(t, s.SendReset(context.Background()))

	rec := do(t, h, http.MethodGet, "/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cmds []Command
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmds))
	require.Len(t, cmds, 2)
	assert.Equal(t, "clear_fault", cmds[0].Name)
	assert.Equal(t, "reset", cmds[1].Name)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, h, http.MethodGet, "/hold", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
