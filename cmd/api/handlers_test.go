package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/process"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/metrics"
	"github.com/asapdigest/central-command/pkg/mid"
)

const (
	editorKey = "editor-key"
	adminKey  = "admin-key"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.DiscardHandler)
	srvr := &server{
		store: st,
		deps: process.Deps{
			Store:  st,
			Scorer: quality.NewScorer(quality.DefaultSettings(), nil),
			Logger: logger,
		},
		log: logger,
	}

	keys := map[string]mid.Role{editorKey: mid.RoleEditor, adminKey: mid.RoleAdmin}
	ts := httptest.NewServer(rootMux(srvr, keys, metrics.New()))
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url, key string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set(mid.KeyHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func seedPending(t *testing.T, st *store.Store) (domain.Source, domain.Item) {
	t.Helper()
	ctx := context.Background()
	src, err := st.CreateSource(ctx, domain.Source{
		Name: "Feed", Type: domain.SourceRSS, URL: "https://x.example/feed", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	it := domain.Item{
		SourceID: src.ID, ExternalID: "p1", Title: "Pending", Body: "Body text here",
		Fingerprint: "fp-p1", Status: domain.StatusPending, IngestedAt: time.Now(),
	}
	id, err := st.UpsertItem(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	it.ID = id
	return src, it
}

func TestHealthSkipsAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("health: status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/asap/v1/crawler/sources", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if env.Success || env.Error == nil || env.Error.Code != "permission_denied" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestEditorCannotManageSources(t *testing.T) {
	ts, _ := newTestServer(t)

	body := sourcePayload{Name: "Feed", Type: domain.SourceRSS, URL: "https://x.example/feed"}
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/sources", editorKey, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestSourceLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	create := sourcePayload{
		Name: "City Wire", Type: domain.SourceRSS, URL: "https://wire.example/feed",
		Active: true, FetchInterval: 900, Keywords: []string{"city"},
	}
	resp, env := doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/sources", adminKey, create)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("create: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var created sourcePayload
	json.Unmarshal(raw, &created)
	if created.ID == 0 || created.FetchInterval != 900 {
		t.Fatalf("created = %+v", created)
	}

	url := fmt.Sprintf("%s/asap/v1/crawler/sources/%d", ts.URL, created.ID)
	if resp, _ := doJSON(t, http.MethodGet, url, editorKey, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d", resp.StatusCode)
	}

	created.Name = "Renamed"
	if resp, _ := doJSON(t, http.MethodPut, url, adminKey, created); resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status = %d", resp.StatusCode)
	}

	if resp, _ := doJSON(t, http.MethodDelete, url, adminKey, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodGet, url, editorKey, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", resp.StatusCode)
	}
}

func TestCreateSourceRejectsBadType(t *testing.T) {
	ts, _ := newTestServer(t)

	body := sourcePayload{Name: "x", Type: "carrier-pigeon", URL: "https://x.example"}
	resp, env := doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/sources", adminKey, body)
	if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "invalid_request" {
		t.Fatalf("status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestRunSourceWithoutNATS(t *testing.T) {
	ts, st := newTestServer(t)
	src, _ := seedPending(t, st)

	url := fmt.Sprintf("%s/asap/v1/crawler/sources/%d/run", ts.URL, src.ID)
	resp, env := doJSON(t, http.MethodPost, url, editorKey, nil)
	if resp.StatusCode != http.StatusServiceUnavailable || env.Error.Code != "unavailable" {
		t.Fatalf("status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestQueueAndDecisions(t *testing.T) {
	ts, st := newTestServer(t)
	_, it := seedPending(t, st)

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/asap/v1/crawler/queue", editorKey, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("queue: status=%d env=%+v", resp.StatusCode, env)
	}

	url := fmt.Sprintf("%s/asap/v1/crawler/queue/approve/%d", ts.URL, it.ID)
	resp, _ = doJSON(t, http.MethodPost, url, editorKey, decisionPayload{Actor: "alice", Note: "fine"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status = %d", resp.StatusCode)
	}

	got, err := st.GetItem(context.Background(), it.ID)
	if err != nil || got.Status != domain.StatusApproved {
		t.Fatalf("item = %+v err = %v", got, err)
	}

	logURL := fmt.Sprintf("%s/asap/v1/crawler/moderation-log/%d", ts.URL, it.ID)
	resp, env = doJSON(t, http.MethodGet, logURL, editorKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log: status = %d", resp.StatusCode)
	}
	entries, _ := env.Data.([]any)
	if len(entries) != 1 {
		t.Fatalf("log entries = %v", env.Data)
	}

	rejURL := fmt.Sprintf("%s/asap/v1/crawler/queue/reject/%d", ts.URL, 99999)
	if resp, _ := doJSON(t, http.MethodPost, rejURL, editorKey, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("reject missing: status = %d", resp.StatusCode)
	}
}

func TestContentSearchAndBulk(t *testing.T) {
	ts, st := newTestServer(t)
	_, it := seedPending(t, st)

	resp, env := doJSON(t, http.MethodGet,
		ts.URL+"/asap/v1/crawler/content?status=pending&page=1&per_page=10", editorKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status = %d", resp.StatusCode)
	}
	data := env.Data.(map[string]any)
	if data["total"].(float64) != 1 {
		t.Fatalf("total = %v", data["total"])
	}

	resp, _ = doJSON(t, http.MethodGet,
		ts.URL+"/asap/v1/crawler/content?status=bogus", editorKey, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status filter: status = %d", resp.StatusCode)
	}

	bulk := bulkPayload{Action: "reject", IDs: []int64{it.ID}}
	resp, env = doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/content/bulk", adminKey, bulk)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk: status = %d", resp.StatusCode)
	}
	if env.Data.(map[string]any)["affected"].(float64) != 1 {
		t.Fatalf("bulk data = %+v", env.Data)
	}
}

func TestContentDetailsIncludeModerationLog(t *testing.T) {
	ts, st := newTestServer(t)
	_, it := seedPending(t, st)
	if err := st.Decide(context.Background(), it.ID, domain.DecisionApprove, "alice", "looks good"); err != nil {
		t.Fatal(err)
	}

	url := fmt.Sprintf("%s/asap/v1/crawler/content/%d", ts.URL, it.ID)
	resp, env := doJSON(t, http.MethodGet, url, editorKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := env.Data.(map[string]any)
	item, _ := data["item"].(map[string]any)
	if item["id"].(float64) != float64(it.ID) {
		t.Fatalf("item = %+v", data["item"])
	}
	entries, _ := data["moderation_log"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["actor"] != "alice" {
		t.Fatalf("moderation_log = %+v", data["moderation_log"])
	}
}

func TestReindexRecomputes(t *testing.T) {
	ts, st := newTestServer(t)
	_, it := seedPending(t, st)

	url := fmt.Sprintf("%s/asap/v1/crawler/content/%d/reindex", ts.URL, it.ID)
	resp, env := doJSON(t, http.MethodPost, url, adminKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reindex: status=%d env=%+v", resp.StatusCode, env)
	}
	got, _ := st.GetItem(context.Background(), it.ID)
	if got.Fingerprint == "fp-p1" {
		t.Fatal("fingerprint not recomputed")
	}
}

func TestQualitySettingsRoundtrip(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, ts.URL+"/asap/v1/crawler/quality-settings", editorKey, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("defaults: status=%d env=%+v", resp.StatusCode, env)
	}

	s := quality.DefaultSettings()
	s.AutoApprove = 80
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/quality-settings", adminKey, s)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: status = %d", resp.StatusCode)
	}

	_, env = doJSON(t, http.MethodGet, ts.URL+"/asap/v1/crawler/quality-settings", editorKey, nil)
	raw, _ := json.Marshal(env.Data)
	var got quality.Settings
	json.Unmarshal(raw, &got)
	if got.AutoApprove != 80 {
		t.Fatalf("auto_approve = %g", got.AutoApprove)
	}

	bad := quality.DefaultSettings()
	bad.Weights.Completeness = -1
	resp, env = doJSON(t, http.MethodPost, ts.URL+"/asap/v1/crawler/quality-settings", adminKey, bad)
	if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "invalid_weights" {
		t.Fatalf("bad weights: status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	seedPending(t, st)

	for _, path := range []string{
		"/asap/v1/crawler/metrics",
		"/asap/v1/crawler/moderation-metrics",
		"/asap/v1/crawler/duplicates",
	} {
		resp, env := doJSON(t, http.MethodGet, ts.URL+path, editorKey, nil)
		if resp.StatusCode != http.StatusOK || !env.Success {
			t.Fatalf("%s: status=%d env=%+v", path, resp.StatusCode, env)
		}
	}
}
