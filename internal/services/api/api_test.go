package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache/memory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/config"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/realip"
)

// setupTestDeps installs in-memory shared deps with a "redeem" ratelimit profile.
func setupTestDeps(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DevConfig()
	cfg.HTTP.Interceptors = map[string]map[string]any{
		"ratelimit": {
			"profiles": map[string]any{
				"redeem": map[string]any{"requests_per_window": 2, "window_seconds": 60},
			},
		},
	}

	dir := directory.NewMemoryStore()
	svc := familyaccess.New(familyaccess.NewMemoryLedger(), dir, familyaccess.Options{})
	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { _ = c.Close() })

	deps.ResetDeps()
	deps.SetDeps(&deps.Deps{
		FamilyAccess: svc,
		Records:      records.NewCatalog(records.NewMemoryStore(), svc.Grants, nil),
		Directory:    dir,
		Config:       cfg,
		Cache:        c,
		RealIP:       realip.New(nil),
	})
	t.Cleanup(deps.ResetDeps)
	return cfg
}

func serve(t *testing.T, h http.Handler, actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req = req.WithContext(appctx.WithActorID(req.Context(), actor))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	if _, err := New(map[string]any{}, nil); err == nil {
		t.Error("expected error when SharedDeps not initialized")
	}
}

func TestNew_UnknownProfile(t *testing.T) {
	setupTestDeps(t)
	_, err := New(map[string]any{"ratelimit": map[string]any{"profile": "missing"}}, nil)
	if err == nil {
		t.Fatal("expected error for unknown ratelimit profile")
	}
}

func TestService_Metadata(t *testing.T) {
	setupTestDeps(t)
	svc, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Prefix() != "api" {
		t.Errorf("Prefix() = %q, want api", svc.Prefix())
	}
	if u := svc.Unprotected(); len(u) != 1 || u[0] != "/healthz" {
		t.Errorf("Unprotected() = %v, want [/healthz]", u)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestRoutes(t *testing.T) {
	setupTestDeps(t)
	svc, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := svc.Handler()

	tests := []struct {
		name   string
		actor  string
		method string
		path   string
		status int
	}{
		{"health", "", http.MethodGet, "/healthz", http.StatusOK},
		{"pending", "alice", http.MethodGet, "/family-access/requests/pending", http.StatusOK},
		{"grants", "alice", http.MethodGet, "/family-access/grants", http.StatusOK},
		{"shared with me", "alice", http.MethodGet, "/family-access/shared-with-me", http.StatusOK},
		{"can view", "alice", http.MethodGet, "/family-access/can-view/bob", http.StatusOK},
		{"revoke missing", "alice", http.MethodDelete, "/family-access/grants/bob", http.StatusNotFound},
		{"issue", "alice", http.MethodPost, "/family-access/invites", http.StatusCreated},
		{"records own", "alice", http.MethodGet, "/records", http.StatusOK},
		{"records other", "alice", http.MethodGet, "/records?owner_id=bob", http.StatusForbidden},
		{"record missing", "alice", http.MethodGet, "/records/nope", http.StatusNotFound},
		{"profile missing", "alice", http.MethodGet, "/profile", http.StatusNotFound},
		{"unknown route", "alice", http.MethodGet, "/family-access/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h, tt.actor, tt.method, tt.path, nil)
			if w.Code != tt.status {
				t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.path, tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestRedeem_RateLimited(t *testing.T) {
	setupTestDeps(t)
	svc, err := New(map[string]any{"ratelimit": map[string]any{"profile": "redeem"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := svc.Handler()

	guess := map[string]string{"invite_token": "guess"}
	for i := 0; i < 2; i++ {
		if w := serve(t, h, "mallory", http.MethodPost, "/family-access/invites/redeem", guess); w.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: expected 404, got %d", i+1, w.Code)
		}
	}
	w := serve(t, h, "mallory", http.MethodPost, "/family-access/invites/redeem", guess)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("attempt 3: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Other endpoints are not limited.
	for i := 0; i < 5; i++ {
		if w := serve(t, h, "mallory", http.MethodGet, "/family-access/grants", nil); w.Code != http.StatusOK {
			t.Fatalf("grants: expected 200, got %d", w.Code)
		}
	}
}

func TestEndToEnd_InviteToRecords(t *testing.T) {
	setupTestDeps(t)
	svc, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := svc.Handler()

	w := serve(t, h, "alice", http.MethodPost, "/records", map[string]string{"title": "Discharge summary", "record_type": "discharge_summary"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create record: %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h, "alice", http.MethodPost, "/family-access/invites", map[string]int{"expires_in_hours": 2})
	var issued struct {
		InviteToken string `json:"invite_token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&issued); err != nil {
		t.Fatalf("decode issue: %v", err)
	}

	w = serve(t, h, "bob", http.MethodPost, "/family-access/invites/redeem", map[string]string{"invite_token": issued.InviteToken})
	var out familyaccess.RedemptionOutcome
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out.Request == nil {
		t.Fatalf("redeem: status %d err %v", w.Code, err)
	}

	if w := serve(t, h, "bob", http.MethodGet, "/records?owner_id=alice", nil); w.Code != http.StatusForbidden {
		t.Fatalf("before accept: expected 403, got %d", w.Code)
	}

	w = serve(t, h, "alice", http.MethodPost, "/family-access/requests/"+out.Request.ID+"/respond", map[string]bool{"accept": true})
	if w.Code != http.StatusOK {
		t.Fatalf("respond: %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h, "bob", http.MethodGet, "/records?owner_id=alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("after accept: expected 200, got %d", w.Code)
	}
	var list []records.Record
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("records: err=%v len=%d", err, len(list))
	}

	// Alice cannot read Bob's records; access is one-directional.
	if w := serve(t, h, "alice", http.MethodGet, "/records?owner_id=bob", nil); w.Code != http.StatusForbidden {
		t.Errorf("reverse direction: expected 403, got %d", w.Code)
	}
}
