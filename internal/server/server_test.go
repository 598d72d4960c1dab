package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/curtaincall/internal/auth"
	"github.com/dukerupert/curtaincall/internal/config"
	"github.com/dukerupert/curtaincall/internal/database"
	"github.com/dukerupert/curtaincall/internal/metrics"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	signer *auth.Verifier
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		TokenSecret:       testSecret,
		Location:          time.UTC,
		CollectCodeLimit:  2,
		CollectCodeWindow: time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, cfg, metrics.New(), logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, signer: auth.NewVerifier([]byte(testSecret), "")}
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := ts.signer.Sign(auth.Session{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestRoutesRequireSession(t *testing.T) {
	ts := setupServer(t)

	resp := ts.do(t, "GET", "/api/catalog", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/catalog", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStaffRoutesRejectMembers(t *testing.T) {
	ts := setupServer(t)
	member := ts.token(t, "m1", auth.RoleMember)

	for _, path := range []string{"/api/members", "/api/groups"} {
		resp := ts.do(t, "GET", path, member, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
}

func TestAwardRedeemCollectFlow(t *testing.T) {
	ts := setupServer(t)
	staff := ts.token(t, "staff-1", auth.RoleStaff)

	resp := ts.do(t, "POST", "/api/members", staff, map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ada := decode[model.Member](t, resp)
	member := ts.token(t, ada.ID, auth.RoleMember)

	resp = ts.do(t, "POST", "/api/members/"+ada.ID+"/points", staff, map[string]any{
		"amount": 15, "reason": "Great attitude",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/members/"+ada.ID+"/points", staff, map[string]any{
		"amount": 5, "reason": "Great attitude",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second award from the same staff on the same day")

	resp = ts.do(t, "POST", "/api/catalog", staff, map[string]any{"name": "Sticker", "cost": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sticker := decode[model.CatalogItem](t, resp)

	resp = ts.do(t, "POST", "/api/members/"+ada.ID+"/rewards", staff, map[string]string{"item_id": sticker.ID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "staff cannot redeem on a member's behalf")

	resp = ts.do(t, "POST", "/api/members/"+ada.ID+"/rewards", member, map[string]string{"item_id": sticker.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reward := decode[model.Reward](t, resp)
	assert.Len(t, reward.RedeemCode, 4)

	resp = ts.do(t, "GET", "/api/members/"+ada.ID, member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, decode[model.Member](t, resp).Points)

	resp = ts.do(t, "GET", "/api/members/"+ada.ID+"/points", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, decode[map[string]any](t, resp)["balance"])

	resp = ts.do(t, "GET", "/api/rewards/outstanding", member, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/rewards/outstanding", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outstanding := decode[[]model.Reward](t, resp)
	require.Len(t, outstanding, 1)
	assert.Equal(t, reward.ID, outstanding[0].ID)

	resp = ts.do(t, "POST", "/api/rewards/collect-code", member, map[string]string{"code": reward.RedeemCode})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/rewards/collect-code", staff, map[string]string{"code": reward.RedeemCode})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	collected := decode[model.Reward](t, resp)
	assert.True(t, collected.Collected)

	resp = ts.do(t, "POST", "/api/rewards/collect", staff, map[string]string{
		"member_id": ada.ID, "reward_id": reward.ID, "redeem_code": reward.RedeemCode,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/rewards/outstanding", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.Reward](t, resp))
}

func TestParentLinkFlow(t *testing.T) {
	ts := setupServer(t)
	staff := ts.token(t, "staff-1", auth.RoleStaff)
	parent := ts.token(t, "parent-1", auth.RoleParent)

	resp := ts.do(t, "POST", "/api/members", staff, map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ada := decode[model.Member](t, resp)
	member := ts.token(t, ada.ID, auth.RoleMember)

	resp = ts.do(t, "GET", "/api/members/"+ada.ID, parent, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "not linked yet")

	resp = ts.do(t, "GET", "/api/members/"+ada.ID+"/link-code", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := decode[map[string]string](t, resp)["code"]

	resp = ts.do(t, "POST", "/api/parent/children", member, map[string]string{"code": code})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "only parents link")

	resp = ts.do(t, "POST", "/api/parent/children", parent, map[string]string{"code": code})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/members/"+ada.ID, parent, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/members/"+ada.ID+"/points", parent, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/parent/children", parent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	children := decode[[]model.Member](t, resp)
	require.Len(t, children, 1)
	assert.Equal(t, ada.ID, children[0].ID)

	other := ts.token(t, "parent-2", auth.RoleParent)
	resp = ts.do(t, "GET", "/api/members/"+ada.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "links are per parent")
}

func TestAdminRoutesRejectStaff(t *testing.T) {
	ts := setupServer(t)
	staff := ts.token(t, "staff-1", auth.RoleStaff)
	admin := ts.token(t, "admin-1", auth.RoleAdmin)

	resp := ts.do(t, "GET", "/api/reports", staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/announcements", staff, map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/reports", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCollectCodeRateLimited(t *testing.T) {
	ts := setupServer(t)
	staff := ts.token(t, "staff-1", auth.RoleStaff)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, "POST", "/api/rewards/collect-code", staff, map[string]string{"code": "1234"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	resp := ts.do(t, "POST", "/api/rewards/collect-code", staff, map[string]string{"code": "1234"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	other := ts.token(t, "staff-2", auth.RoleStaff)
	resp = ts.do(t, "POST", "/api/rewards/collect-code", other, map[string]string{"code": "1234"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "limit is per session")
}

func TestMetricsLabelledByRoute(t *testing.T) {
	ts := setupServer(t)
	staff := ts.token(t, "staff-1", auth.RoleStaff)

	resp := ts.do(t, "GET", "/api/members/abc", staff, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `route="GET /api/members/{id}"`), "missing route label in:\n%s", text)
}
