package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/factory"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/auth"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/testutil"
)

// testServer wraps the full router over a test app
type testServer struct {
	app       *factory.TestApp
	handler   http.Handler
	shutdowns int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{app: factory.NewTestApp()}
	ts.handler = ts.app.Router(func() { ts.shutdowns++ })
	t.Cleanup(func() {
		_ = ts.app.Shutdown(context.Background())
	})
	return ts
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) player(id string) string {
	return ts.app.MustToken(id, "")
}

func (ts *testServer) admin() string {
	return ts.app.MustToken("ops", auth.RoleAdmin)
}

// join connects a fake client for playerID straight to the engine and joins
// a session of the game type
func (ts *testServer) join(t *testing.T, playerID string, gameType model.GameType) (*testutil.FakeConn, model.SessionID) {
	t.Helper()

	c := testutil.NewFakeConn("conn-" + playerID)
	ts.app.Engine.HandleMessage(c, protocol.Authenticate{Token: ts.player(playerID)})
	require.True(t, c.Authenticated())

	ts.app.Engine.HandleMessage(c, protocol.JoinGame{GameType: gameType, Stake: 5})
	var joined protocol.GameJoinedPayload
	require.True(t, c.DecodeLast(protocol.TypeGameJoined, &joined), "join failed: %v", c.ErrorCodes())
	return c, joined.SessionID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Storage)
	assert.Equal(t, ts.app.Config.WorkerPoolSize, health.Workers.Capacity)
}

func TestHealthReportsLiveSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.join(t, "alice", rules.GameTypeDuel)

	health := decode[response.Health](t, ts.request(http.MethodGet, "/api/v1/health", nil, ""))
	assert.Equal(t, 1, health.Sessions[model.SessionStatusWaiting])
	assert.Equal(t, 1, health.Players)
}

func TestRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/sessions", "/api/v1/results", "/api/v1/players/alice/stats"} {
		rr := ts.request(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := ts.request(http.MethodGet, "/api/v1/sessions", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")
}

func TestExpiredTokenRejected(t *testing.T) {
	ts := newTestServer(t)
	token := ts.player("alice")

	ts.app.MockClock.Advance(ts.app.Config.TokenTTL + time.Minute)

	rr := ts.request(http.MethodGet, "/api/v1/sessions", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	_, duelID := ts.join(t, "alice", rules.GameTypeDuel)
	ts.join(t, "bob", rules.GameTypeTapper)

	rr := ts.request(http.MethodGet, "/api/v1/sessions", nil, ts.player("carol"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[response.SessionList](t, rr).Sessions, 2)

	ts.join(t, "dave", rules.GameTypeDuel)
	rr = ts.request(http.MethodGet, "/api/v1/sessions?status=active", nil, ts.player("carol"))
	list := decode[response.SessionList](t, rr)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, string(duelID), list.Sessions[0].ID)
	assert.Len(t, list.Sessions[0].Roster, 2)
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t)
	_, id := ts.join(t, "alice", rules.GameTypeTapper)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/"+string(id), nil, ts.player("alice"))
	require.Equal(t, http.StatusOK, rr.Code)

	lookup := decode[response.SessionLookup](t, rr)
	require.NotNil(t, lookup.Session)
	assert.Nil(t, lookup.Result)
	assert.Equal(t, "waiting", lookup.Session.Status)
	assert.Equal(t, "tapper", lookup.Session.GameType)
	assert.Equal(t, 300, lookup.Session.Config.MaxDurationSeconds)
}

func TestGetUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/MISSING1", nil, ts.player("alice"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "SESSION_NOT_FOUND")
}

func TestStartSessionRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	_, id := ts.join(t, "alice", rules.GameTypeDuel)

	rr := ts.request(http.MethodPost, "/api/v1/sessions/"+string(id)+"/start", nil, ts.player("alice"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/MISSING1/start", nil, ts.admin())
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartSessionBelowMinimum(t *testing.T) {
	ts := newTestServer(t)
	_, id := ts.join(t, "alice", rules.GameTypeDuel)

	rr := ts.request(http.MethodPost, "/api/v1/sessions/"+string(id)+"/start", nil, ts.admin())
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "WRONG_STATUS")
}

func TestTerminateSession(t *testing.T) {
	ts := newTestServer(t)
	c, id := ts.join(t, "alice", rules.GameTypeDuel)
	ts.join(t, "bob", rules.GameTypeDuel)
	path := "/api/v1/sessions/" + string(id)

	rr := ts.request(http.MethodDelete, path, map[string]string{"reason": "timeout"}, ts.player("alice"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodDelete, path, map[string]string{"reason": "normal"}, ts.admin())
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodDelete, path, nil, ts.admin())
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[response.Result](t, rr)
	assert.Equal(t, "aborted", result.Status)
	assert.Equal(t, "shutdown", result.Reason)
	assert.Nil(t, result.Winner)
	assert.Equal(t, int64(10), result.TotalStake)

	var ended protocol.GameEndedPayload
	require.True(t, c.DecodeLast(protocol.TypeGameEnded, &ended))
	assert.Equal(t, model.EndReasonShutdown, ended.Reason)

	rr = ts.request(http.MethodDelete, path, nil, ts.admin())
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResultsAndStatsAfterSettlement(t *testing.T) {
	ts := newTestServer(t)
	_, id := ts.join(t, "alice", rules.GameTypeTapper)
	ts.join(t, "bob", rules.GameTypeTapper)

	rr := ts.request(http.MethodDelete, "/api/v1/sessions/"+string(id), map[string]string{"reason": "timeout"}, ts.admin())
	require.Equal(t, http.StatusOK, rr.Code)

	token := ts.player("alice")
	require.Eventually(t, func() bool {
		rr := ts.request(http.MethodGet, "/api/v1/results", nil, token)
		return len(decode[response.ResultList](t, rr).Results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/"+string(id), nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	lookup := decode[response.SessionLookup](t, rr)
	require.NotNil(t, lookup.Result)
	assert.Equal(t, "completed", lookup.Result.Status)
	assert.Equal(t, "timeout", lookup.Result.Reason)

	require.Eventually(t, func() bool {
		rr := ts.request(http.MethodGet, "/api/v1/players/bob/stats", nil, token)
		return decode[response.PlayerStats](t, rr).GamesPlayed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResultsLimit(t *testing.T) {
	ts := newTestServer(t)
	for i := range 3 {
		id := model.SessionID("DONE000" + string(rune('1'+i)))
		winner := model.PlayerID("alice")
		_, err := ts.app.Storage.RecordResult(t.Context(), &model.SessionResult{
			SessionID:   id,
			GameType:    rules.GameTypeDuel,
			Status:      model.SessionStatusCompleted,
			Reason:      model.EndReasonNormal,
			Winner:      &winner,
			CompletedAt: ts.app.MockClock.Now().Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	rr := ts.request(http.MethodGet, "/api/v1/results?limit=2", nil, ts.player("alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	results := decode[response.ResultList](t, rr).Results
	require.Len(t, results, 2)
	assert.Equal(t, "DONE0003", results[0].SessionID)

	rr = ts.request(http.MethodGet, "/api/v1/results?limit=abc", nil, ts.player("alice"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlayerStatsForUnknownPlayer(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/players/nobody/stats", nil, ts.player("alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[response.PlayerStats](t, rr)
	assert.Equal(t, "nobody", stats.PlayerID)
	assert.Zero(t, stats.GamesPlayed)
}

func TestAnalysesAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.app.Storage.SaveAnalysis(t.Context(), &model.Analysis{
		PlayerID:       "alice",
		SessionID:      "S0000001",
		RiskScore:      0.9,
		Recommendation: "review",
		AnalyzedAt:     ts.app.MockClock.Now(),
	}))

	rr := ts.request(http.MethodGet, "/api/v1/players/alice/analyses", nil, ts.player("alice"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/players/alice/analyses", nil, ts.admin())
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[response.AnalysisList](t, rr)
	require.Len(t, list.Analyses, 1)
	assert.Equal(t, "review", list.Analyses[0].Recommendation)
}

func TestIssueToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/admin/tokens", map[string]any{"player_id": "carol"}, ts.player("alice"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/admin/tokens", map[string]any{}, ts.admin())
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/admin/tokens", map[string]any{
		"player_id":  "carol",
		"attributes": map[string]any{"region": "eu"},
	}, ts.admin())
	require.Equal(t, http.StatusCreated, rr.Code)

	token := decode[response.Token](t, rr)
	assert.Equal(t, "carol", token.PlayerID)

	identity, err := ts.app.Auth.Verify(token.Token)
	require.NoError(t, err)
	assert.Equal(t, model.PlayerID("carol"), identity.PlayerID)
	assert.False(t, identity.IsAdmin())
	assert.Equal(t, "eu", identity.Attributes["region"])
}

func TestShutdownEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/admin/shutdown", nil, ts.player("alice"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, ts.shutdowns)

	rr = ts.request(http.MethodPost, "/api/v1/admin/shutdown", nil, ts.admin())
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, ts.shutdowns)
}

func TestHealthWhileShuttingDown(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.app.Engine.Shutdown(t.Context()))

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "shutting_down", decode[response.Health](t, rr).Status)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/ANY00001/start", nil, ts.admin())
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
