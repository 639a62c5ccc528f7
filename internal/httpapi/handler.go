// Package httpapi implements the HTTP handlers for the auto-apply service.
//
// Routes:
//
//	POST /keywords                      → ranked keywords of a job description
//	POST /match                         → skill/JD alignment and score
//	POST /apply/plan                    → build today's schedule
//	POST /apply/send                    → claim items for sending
//	POST /apply/dispatch                → claim, submit and complete items
//	GET  /apply                         → list records (optional ?state=)
//	GET  /apply/{id}                    → one record
//	GET  /apply/{id}/history            → journaled transitions of one item
//	POST /apply/{id}/complete           → record SENT or FAILED
//	POST /apply/{id}/retry              → re-plan a FAILED item in the next free slot
//	POST /apply/{id}/drop               → remove a PLANNED item
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/autoapply"
	"jobmate/autoapply-service/internal/dispatch"
	"jobmate/autoapply-service/internal/match"
	"jobmate/autoapply-service/internal/pacing"
)

// Dispatcher runs submissions for claimed items.
type Dispatcher interface {
	Dispatch(ctx context.Context, ids []string) dispatch.Report
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	svc      *autoapply.Service
	disp     Dispatcher
	defaults pacing.PaceConfig
	topN     int
}

// NewHandler returns a configured Handler. defaults fill any pacing field a
// plan request leaves out. disp may be nil, which disables /apply/dispatch.
func NewHandler(svc *autoapply.Service, disp Dispatcher, defaults pacing.PaceConfig, topN int) *Handler {
	return &Handler{svc: svc, disp: disp, defaults: defaults, topN: topN}
}

// RegisterRoutes mounts all auto-apply routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/keywords", h.post(h.keywords))
	mux.HandleFunc("/match", h.post(h.match))
	mux.HandleFunc("/apply/plan", h.post(h.plan))
	mux.HandleFunc("/apply/send", h.post(h.send))
	mux.HandleFunc("/apply/dispatch", h.post(h.dispatch))
	mux.HandleFunc("/apply", h.handleRecords)
	mux.HandleFunc("/apply/", h.handleRecordAction)
}

// ─── Route dispatch ──────────────────────────────────────────────────────────

func (h *Handler) post(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

// handleRecords handles GET /apply
func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var state apply.State
	if s := r.URL.Query().Get("state"); s != "" {
		var err error
		if state, err = apply.ParseState(strings.ToUpper(s)); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	jsonOK(w, h.svc.Records(state))
}

// handleRecordAction handles GET /apply/{id}[/history] and
// POST /apply/{id}/complete|retry|drop
func (h *Handler) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		h.getRecord(w, parts[1])
		return
	case len(parts) == 3 && parts[2] == "history":
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r, parts[1])
		return
	case len(parts) != 3:
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	case r.Method != http.MethodPost:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, action := parts[1], parts[2]
	switch action {
	case "complete":
		h.complete(w, r, id)
	case "retry":
		h.retry(w, r, id)
	case "drop":
		h.drop(w, r, id)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

// ─── Individual handlers ─────────────────────────────────────────────────────

func (h *Handler) keywords(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Text string `json:"text"`
		TopN int    `json:"topN"`
	}{TopN: h.topN}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	jsonOK(w, map[string]any{"keywords": h.svc.Keywords(body.Text, body.TopN)})
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Skills    []string `json:"skills"`
		SkillsCSV string   `json:"skillsCsv"`
		JDText    string   `json:"jdText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	skills := append(body.Skills, match.ParseSkills(body.SkillsCSV)...)
	jsonOK(w, h.svc.Match(skills, body.JDText))
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	req := autoapply.NewPlanRequest(h.defaults)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.Plan(r.Context(), req)
	if res == nil {
		writeError(w, err)
		return
	}
	jsonOK(w, res)
}

type sendView struct {
	ID    string      `json:"id"`
	From  apply.State `json:"from,omitempty"`
	To    apply.State `json:"to,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	results := h.svc.Send(r.Context(), ids)
	out := make([]sendView, 0, len(results))
	for _, res := range results {
		v := sendView{ID: res.ID, From: res.Transition.From, To: res.Transition.To}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		out = append(out, v)
	}
	jsonOK(w, map[string]any{"results": out})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	if h.disp == nil {
		jsonError(w, "dispatch is disabled", http.StatusServiceUnavailable)
		return
	}
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	jsonOK(w, h.disp.Dispatch(r.Context(), ids))
}

func (h *Handler) getRecord(w http.ResponseWriter, id string) {
	en, err := h.svc.Record(id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, en)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"id": id, "history": entries})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Outcome == "" {
		jsonError(w, "body must contain outcome", http.StatusBadRequest)
		return
	}
	outcome, err := apply.ParseState(strings.ToUpper(body.Outcome))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	en, err := h.svc.Complete(r.Context(), id, outcome, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, en)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request, id string) {
	en, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, en)
}

func (h *Handler) drop(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Drop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, map[string]string{"dropped": id})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		jsonError(w, "body must contain a non-empty ids array", http.StatusBadRequest)
		return nil, false
	}
	return body.IDs, true
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apply.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apply.ErrAlreadyInFlight),
		errors.Is(err, apply.ErrAlreadyTerminal),
		errors.Is(err, apply.ErrInvalidTransition),
		errors.Is(err, pacing.ErrInsufficientWindow):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, autoapply.ErrNoHistory):
		jsonError(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, pacing.ErrInvalidConfig),
		errors.Is(err, autoapply.ErrNoActiveResume):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("[autoapply] internal error: %v", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
