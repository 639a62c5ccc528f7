package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/autoapply"
	"jobmate/autoapply-service/internal/dispatch"
	"jobmate/autoapply-service/internal/httpapi"
	"jobmate/autoapply-service/internal/pacing"
	"jobmate/autoapply-service/internal/store"
)

var defaults = pacing.PaceConfig{
	Boards:          []string{"linkedin"},
	MinScore:        70,
	DailyCap:        3,
	MinDelaySeconds: 60,
	MaxDelaySeconds: 3600,
	WindowStart:     pacing.MustTimeOfDay("09:00"),
	WindowEnd:       pacing.MustTimeOfDay("18:00"),
	ParaphraseLevel: 1,
}

type env struct {
	mux   *http.ServeMux
	clock time.Time
	svc   *autoapply.Service
}

func newEnv(t *testing.T, opts ...autoapply.Option) *env {
	t.Helper()
	e := &env{mux: http.NewServeMux(), clock: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	opts = append([]autoapply.Option{
		autoapply.WithLocation(time.UTC),
		autoapply.WithClock(func() time.Time { return e.clock }),
		autoapply.WithPace(defaults),
	}, opts...)
	e.svc = autoapply.NewService(pacing.NewSeededGenerator(11), apply.NewTracker(), 25, opts...)
	disp := dispatch.New(e.svc, dispatch.NewSimulatedSubmitter(1, 0, 0), dispatch.Options{Interval: time.Hour})
	httpapi.NewHandler(e.svc, disp, defaults, 25).RegisterRoutes(e.mux)
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (e *env) plan(t *testing.T) []string {
	t.Helper()
	code, out := e.do(t, http.MethodPost, "/apply/plan", `{
		"resumeId": "r1",
		"matches": [
			{"id": "j1", "source": "linkedin", "matchScore": 90},
			{"id": "j2", "source": "linkedin", "matchScore": 80}
		]
	}`)
	require.Equal(t, http.StatusOK, code, out)
	items := out["items"].([]any)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.(map[string]any)["id"].(string)
	}
	return ids
}

// ─── Matching ────────────────────────────────────────────────────────────────

func TestKeywords(t *testing.T) {
	e := newEnv(t)
	code, out := e.do(t, http.MethodPost, "/keywords", `{"text": "React and React Native with TypeScript", "topN": 2}`)
	require.Equal(t, http.StatusOK, code)
	kws := out["keywords"].([]any)
	require.Len(t, kws, 2)
	assert.Equal(t, "react", kws[0].(map[string]any)["term"])
}

func TestKeywords_MethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	code, out := e.do(t, http.MethodGet, "/keywords", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, "method not allowed", out["error"])
}

func TestMatch(t *testing.T) {
	e := newEnv(t)
	code, out := e.do(t, http.MethodPost, "/match", `{"skills": ["React"], "skillsCsv": "TypeScript, SQL", "jdText": "React and TypeScript"}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 67, out["score"])
}

func TestMatch_BadJSON(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/match", `{`)
	assert.Equal(t, http.StatusBadRequest, code)
}

// ─── Planning ────────────────────────────────────────────────────────────────

func TestPlan_UsesDefaults(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)
	assert.Len(t, ids, 2)
}

func TestPlan_Errors(t *testing.T) {
	e := newEnv(t)

	code, out := e.do(t, http.MethodPost, "/apply/plan", `{"matches": []}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], "resume")

	code, _ = e.do(t, http.MethodPost, "/apply/plan", `{"resumeId": "r1", "config": {"dailyCap": 0}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/apply/plan", `{"resumeId": "r1", "config": {"windowEnd": "25:00"}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPlan_InsufficientWindowIsOK(t *testing.T) {
	e := newEnv(t)
	code, out := e.do(t, http.MethodPost, "/apply/plan", `{
		"resumeId": "r1",
		"config": {"dailyCap": 5, "windowStart": "09:00", "windowEnd": "09:02", "maxDelaySeconds": 120},
		"matches": [
			{"id": "a", "matchScore": 95}, {"id": "b", "matchScore": 90}, {"id": "c", "matchScore": 85},
			{"id": "d", "matchScore": 80}, {"id": "e", "matchScore": 75}
		]
	}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["items"], 3)
	assert.Len(t, out["unplaced"], 2)
	assert.Contains(t, out["warning"], "window")
}

func TestPlan_OverridesDoNotLeakIntoDefaults(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/apply/plan", `{"resumeId": "r1", "config": {"boards": ["indeed"]}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"linkedin"}, defaults.Boards)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestSendCompleteList(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)

	code, out := e.do(t, http.MethodPost, "/apply/send", `{"ids": ["`+ids[0]+`", "ghost"]}`)
	require.Equal(t, http.StatusOK, code)
	results := out["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "SENDING", results[0].(map[string]any)["to"])
	assert.Contains(t, results[1].(map[string]any)["error"], "not found")

	code, out = e.do(t, http.MethodPost, "/apply/"+ids[0]+"/complete", `{"outcome": "sent"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SENT", out["record"].(map[string]any)["state"])

	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[0]+"/complete", `{"outcome": "FAILED"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[1]+"/complete", `{"outcome": "PLANNED"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[1]+"/complete", `{"outcome": "DONE"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apply?state=sent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []apply.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, ids[0], entries[0].Item.ID)

	code, _ = e.do(t, http.MethodGet, "/apply?state=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetRecord(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)

	code, out := e.do(t, http.MethodGet, "/apply/"+ids[0], "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PLANNED", out["record"].(map[string]any)["state"])

	code, _ = e.do(t, http.MethodGet, "/apply/ghost", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRetryAndDrop(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)

	code, _ := e.do(t, http.MethodPost, "/apply/"+ids[0]+"/retry", "")
	assert.Equal(t, http.StatusConflict, code)

	_, err := e.svc.Complete(context.Background(), ids[0], apply.StateFailed, "")
	require.ErrorIs(t, err, apply.ErrInvalidTransition)
	e.svc.Send(context.Background(), ids[:1])
	_, err = e.svc.Complete(context.Background(), ids[0], apply.StateFailed, "timeout")
	require.NoError(t, err)

	code, out := e.do(t, http.MethodPost, "/apply/"+ids[0]+"/retry", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, ids[0], out["record"].(map[string]any)["retryOf"])

	code, out = e.do(t, http.MethodPost, "/apply/"+ids[1]+"/drop", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, ids[1], out["dropped"])

	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[1]+"/drop", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[0]+"/archive", "")
	assert.Equal(t, http.StatusNotFound, code)
}

// failAndRetry fails id through the service and retries it over HTTP.
func (e *env) failAndRetry(t *testing.T, id string) (int, map[string]any) {
	t.Helper()
	e.svc.Send(context.Background(), []string{id})
	_, err := e.svc.Complete(context.Background(), id, apply.StateFailed, "timeout")
	require.NoError(t, err)
	return e.do(t, http.MethodPost, "/apply/"+id+"/retry", "")
}

func TestRetry_DailyCapFull(t *testing.T) {
	e := newEnv(t)
	code, out := e.do(t, http.MethodPost, "/apply/plan", `{
		"resumeId": "r1",
		"config": {"dailyCap": 1},
		"matches": [{"id": "j1", "source": "linkedin", "matchScore": 90}]
	}`)
	require.Equal(t, http.StatusOK, code, out)
	id := out["items"].([]any)[0].(map[string]any)["id"].(string)

	e.clock = e.clock.Add(12 * time.Hour) // 20:00, past the window
	code, out = e.failAndRetry(t, id)
	require.Equal(t, http.StatusOK, code, out)
	retry := out["item"].(map[string]any)
	planned, err := time.Parse(time.RFC3339, retry["plannedTime"].(string))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", planned.Format(time.DateOnly))

	code, out = e.failAndRetry(t, retry["id"].(string))
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, out["error"], "insufficient window")
}

func TestHistory(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)
	code, _ := e.do(t, http.MethodGet, "/apply/"+ids[0]+"/history", "")
	assert.Equal(t, http.StatusNotImplemented, code)

	j, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	e = newEnv(t, autoapply.WithJournal(j))
	ids = e.plan(t)

	e.svc.Send(context.Background(), ids[:1])
	code, out := e.do(t, http.MethodPost, "/apply/"+ids[1]+"/drop", "")
	require.Equal(t, http.StatusOK, code, out)

	code, out = e.do(t, http.MethodGet, "/apply/"+ids[0]+"/history", "")
	require.Equal(t, http.StatusOK, code, out)
	hist := out["history"].([]any)
	require.Len(t, hist, 1)
	assert.Equal(t, "SENDING", hist[0].(map[string]any)["to"])

	code, out = e.do(t, http.MethodGet, "/apply/"+ids[1]+"/history", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "DROPPED", out["history"].([]any)[0].(map[string]any)["to"])

	code, _ = e.do(t, http.MethodGet, "/apply/ghost/history", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodPost, "/apply/"+ids[0]+"/history", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestDispatch(t *testing.T) {
	e := newEnv(t)
	ids := e.plan(t)

	code, out := e.do(t, http.MethodPost, "/apply/dispatch", `{"ids": ["`+ids[0]+`", "`+ids[1]+`"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["sent"], 2)
	assert.Empty(t, out["failed"])

	code, _ = e.do(t, http.MethodPost, "/apply/dispatch", `{"ids": []}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
