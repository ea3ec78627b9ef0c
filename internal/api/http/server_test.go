package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAuth "github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/auth"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/timeline"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/memory"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/sse"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/terms"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/pkg/clock"
)

var (
	buyer    = engagement.Actor{Role: engagement.RoleBuyer, ID: "buyer-1"}
	supplier = engagement.Actor{Role: engagement.RoleSupplier, ID: "supplier-1"}
	admin    = engagement.Actor{Role: engagement.RoleAdmin, ID: "ops-1"}
	outsider = engagement.Actor{Role: engagement.RoleSupplier, ID: "supplier-9"}
)

type testEnv struct {
	ts    *httptest.Server
	auth  *appAuth.Service
	clock *clock.Fake
	repo  *memory.EngagementRepository
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	repo := memory.NewEngagementRepository()
	hub := sse.NewHub(0, zerolog.Nop())
	renderer, err := terms.New(terms.DefaultTemplate)
	require.NoError(t, err)

	lc, err := lifecycle.NewService(repo, lifecycle.Options{
		Policy:   lifecycle.DefaultPolicy(),
		Renderer: renderer,
		SSEHub:   hub,
		Journal:  memory.NewNotificationRepository(),
		Clock:    fake,
	}, zerolog.Nop())
	require.NoError(t, err)
	tl := timeline.NewService(repo, lc.Graph(), zerolog.Nop())
	authSvc := appAuth.NewService("test-secret", time.Hour, zerolog.Nop())

	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	srv := NewServer(lc, tl, authSvc, hub, opts, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, auth: authSvc, clock: fake, repo: repo}
}

func (e *testEnv) token(t *testing.T, a engagement.Actor) string {
	t.Helper()
	tok, _, err := e.auth.Issue(a)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, as *engagement.Actor, body string, headers ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *as))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

const matchBody = `{
	"listingId": "listing-42",
	"buyerNeedId": "need-7",
	"supplierId": "supplier-1",
	"tier": "standard",
	"path": "tour",
	"matchScore": 0.91,
	"matchRank": 1,
	"pricing": {"supplierRate": 0.8, "buyerRate": 1.1, "monthlySupplierPayout": 4000, "monthlyBuyerTotal": 5500, "allocatedSquareFeet": 5000, "termMonths": 12}
}`

func (e *testEnv) create(t *testing.T) string {
	t.Helper()
	sys := engagement.System()
	resp, body := e.do(t, http.MethodPost, "/v1/engagements", &sys, matchBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))
	return body["engagementId"].(string)
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodGet, "/v1/engagements/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	resp, _ = env.do(t, http.MethodGet, "/v1/auth/me", nil, "", "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/engagements", &buyer, matchBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["error"])

	resp, _ = env.do(t, http.MethodGet, "/v1/engagements", &supplier, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodPost, "/v1/auth/tokens", &admin, `{"role":"supplier","id":"supplier-3"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token := body["token"].(string)

	resp, body = env.do(t, http.MethodGet, "/v1/auth/me", nil, "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"role": "supplier", "id": "supplier-3"}, body["actor"])

	resp, _ = env.do(t, http.MethodPost, "/v1/auth/tokens", &admin, `{"role":"landlord","id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/v1/auth/tokens", &buyer, `{"role":"admin","id":"me"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	sys := engagement.System()

	resp, body := env.do(t, http.MethodPost, "/v1/engagements", &sys, `{"listingId":"l","buyerNeedId":"n","path":"tour"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", body["error"])

	resp, body = env.do(t, http.MethodPost, "/v1/engagements", &sys, `{"listing":"l"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PARAM", body["error"])
}

func TestGetEngagement(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)

	resp, body := env.do(t, http.MethodGet, "/v1/engagements/"+id, &supplier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))
	assert.Equal(t, "deal_ping_sent", body["status"])
	assert.Contains(t, body["availableTransitions"], "decline")

	resp, body = env.do(t, http.MethodGet, "/v1/engagements/"+id, &outsider, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	resp, body = env.do(t, http.MethodGet, "/v1/engagements/"+uuid.NewString(), &admin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])

	resp, _ = env.do(t, http.MethodGet, "/v1/engagements/not-a-uuid", &admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/engagements/"+id+"/hold", &buyer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["armed"])
	assert.Greater(t, body["remainingSeconds"].(float64), 0.0)
}

func TestApplyTransition(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)
	path := "/v1/engagements/" + id + "/transitions/"

	resp, body := env.do(t, http.MethodPost, path+"accept_deal_ping", &buyer, "", "If-Match", `"7"`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "STALE_STATE", body["error"])

	resp, body = env.do(t, http.MethodPost, path+"accept_deal_ping", &buyer, "", "If-Match", `W/"1"`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, `"2"`, resp.Header.Get("ETag"))
	assert.Equal(t, true, body["changed"])
	eng := body["engagement"].(map[string]interface{})
	assert.Equal(t, "deal_ping_accepted", eng["status"])

	resp, body = env.do(t, http.MethodPost, path+"activate", &buyer, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])

	resp, body = env.do(t, http.MethodPost, path+"match", &buyer, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	resp, _ = env.do(t, http.MethodPost, path+"match", &buyer, "", "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, path+"cancel", &buyer, `{"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, path+"cancel", &buyer, `{"reason":"found another space"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	eng = body["engagement"].(map[string]interface{})
	assert.Equal(t, "cancelled", eng["status"])
}

func TestTimeline(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)
	sys := engagement.System()
	path := "/v1/engagements/" + id
	env.do(t, http.MethodPost, path+"/transitions/accept_deal_ping", &buyer, "")
	env.do(t, http.MethodPost, path+"/transitions/match", &sys, "")

	resp, body := env.do(t, http.MethodGet, path+"/timeline?limit=2", &supplier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	events := body["events"].([]interface{})
	require.Len(t, events, 2)
	pg := body["pagination"].(map[string]interface{})
	assert.Equal(t, true, pg["hasMore"])

	resp, body = env.do(t, http.MethodGet, path+"/timeline?limit=2&cursor="+pg["cursor"].(string), &supplier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = body["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "match", events[0].(map[string]interface{})["transition"])

	resp, body = env.do(t, http.MethodGet, path+"/timeline/verify", &admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["verified"])

	resp, _ = env.do(t, http.MethodGet, path+"/timeline/verify", &buyer, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, path+"/timeline", &outsider, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminOverlayAndList(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)
	env.create(t)

	resp, body := env.do(t, http.MethodPut, "/v1/engagements/"+id+"/admin", &admin, `{"notes":"call supplier","flagged":true,"flagReason":"pricing"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))

	resp, body = env.do(t, http.MethodPut, "/v1/engagements/"+id+"/admin", &supplier, `{"flagged":false}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	resp, body = env.do(t, http.MethodGet, "/v1/engagements?flagged=true", &admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].(map[string]interface{})["engagementId"])

	resp, body = env.do(t, http.MethodGet, "/v1/engagements?status=deal_ping_sent&limit=1", &admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, _ = env.do(t, http.MethodGet, "/v1/engagements?status=nope", &admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/engagements/"+id+"/notifications", &admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["items"])

	resp, _ = env.do(t, http.MethodGet, "/v1/engagements/"+id+"/agreements/current", &buyer, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 2, RateLimitPeriod: time.Minute})

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodGet, "/v1/auth/me", &buyer, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}
	resp, body := env.do(t, http.MethodGet, "/v1/auth/me", &buyer, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["error"])
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// Limits are per actor.
	resp, _ = env.do(t, http.MethodGet, "/v1/auth/me", &supplier, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamEngagement(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/v1/engagements/"+id+"/stream?access_token="+env.token(t, supplier), nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", id+":0")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	next := func(prefix string) string {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-deadline:
				t.Fatalf("no %q line", prefix)
			}
		}
	}

	// Replay of the create event.
	assert.Equal(t, "id: "+id+":1", next("id: "))
	assert.Contains(t, next("data: "), `"transition":"create"`)

	resp2, _ := env.do(t, http.MethodPost, "/v1/engagements/"+id+"/transitions/accept_deal_ping", &buyer, "")
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	assert.Equal(t, "id: "+id+":2", next("id: "))
	assert.Equal(t, "event: engagement.transition", next("event: "))
	assert.Contains(t, next("data: "), `"toStatus":"deal_ping_accepted"`)
}

func TestStreamEngagement_RequiresParty(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.create(t)

	resp, body := env.do(t, http.MethodGet, "/v1/engagements/"+id+"/stream", &outsider, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

func TestExpectedVersion(t *testing.T) {
	cases := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"", 0, true},
		{"*", 0, true},
		{`"4"`, 4, true},
		{`W/"9"`, 9, true},
		{"12", 12, true},
		{`"-1"`, 0, false},
		{"v3", 0, false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.header != "" {
			r.Header.Set("If-Match", tc.header)
		}
		got, err := expectedVersion(r)
		if !tc.ok {
			assert.Error(t, err, tc.header)
			continue
		}
		require.NoError(t, err, tc.header)
		assert.Equal(t, tc.want, got, tc.header)
	}
}
