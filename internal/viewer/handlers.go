package viewer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memtrail/memtrail/internal/memory"
)

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps store errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, memory.ErrBusy):
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// ─── Observations ────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	observations, err := s.store.List(memory.ListOptions{
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
		Project:      q.Get("project"),
		Kind:         q.Get("kind"),
		RequiredTags: memory.SplitTags(q.Get("tags")),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"observations": observations})
}

type addRequest struct {
	Timestamp string   `json:"timestamp"`
	Project   string   `json:"project"`
	Kind      string   `json:"kind"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Raw       string   `json:"raw"`
	SessionID *int64   `json:"session_id"`
	AutoTags  bool     `json:"auto_tags"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	id, err := s.store.Add(memory.AddParams{
		Timestamp: req.Timestamp,
		Project:   req.Project,
		Kind:      req.Kind,
		Title:     req.Title,
		Summary:   req.Summary,
		Tags:      req.Tags,
		Raw:       req.Raw,
		SessionID: req.SessionID,
		AutoTags:  req.AutoTags,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	o, err := s.store.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}
	o, err := s.store.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

type updateRequest struct {
	Timestamp *string  `json:"timestamp"`
	Project   *string  `json:"project"`
	Kind      *string  `json:"kind"`
	Title     *string  `json:"title"`
	Summary   *string  `json:"summary"`
	Tags      []string `json:"tags"`
	Raw       *string  `json:"raw"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	o, err := s.store.Update(id, memory.UpdateParams{
		Timestamp: req.Timestamp,
		Project:   req.Project,
		Kind:      req.Kind,
		Title:     req.Title,
		Summary:   req.Summary,
		Tags:      req.Tags,
		Raw:       req.Raw,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}
	deleted, err := s.store.Delete(id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !deleted {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "observation not found"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ─── Search & timeline ───────────────────────────────────────────────────────

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	tags := memory.SplitTags(r.URL.Query().Get("tags"))
	if q == "" && len(tags) == 0 {
		badRequest(w, "provide 'q' or 'tags'")
		return
	}

	results, err := s.store.Search(q, memory.SearchOptions{
		Limit:        queryInt(r, "limit", 20),
		Offset:       queryInt(r, "offset", 0),
		RequiredTags: tags,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	aroundID, _ := strconv.ParseInt(r.URL.Query().Get("around_id"), 10, 64)
	query := memory.TimelineQuery{
		AroundID:      aroundID,
		WindowMinutes: queryInt(r, "window_minutes", 0),
		Start:         r.URL.Query().Get("start"),
		End:           r.URL.Query().Get("end"),
		Limit:         queryInt(r, "limit", 100),
		Offset:        queryInt(r, "offset", 0),
	}
	if query.AroundID <= 0 && query.Start == "" && query.End == "" {
		badRequest(w, "provide 'around_id' or a 'start'/'end' range")
		return
	}

	entries, err := s.store.Timeline(query)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"timeline": entries})
}

// ─── Links & similarity ──────────────────────────────────────────────────────

type linkRequest struct {
	FromID   int64  `json:"from_id"`
	ToID     int64  `json:"to_id"`
	LinkType string `json:"link_type"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	linkType := req.LinkType
	if linkType == "" {
		linkType = memory.LinkRelated
	}

	id, err := s.store.Link(req.FromID, req.ToID, linkType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"link_id": id})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	removed, err := s.store.Unlink(req.FromID, req.ToID, req.LinkType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}
	related, err := s.store.Related(id, r.URL.Query().Get("link_type"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"related": related})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}
	similar, err := s.store.SuggestSimilar(id, queryInt(r, "limit", 5))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"similar": similar})
}

// ─── Feedback ────────────────────────────────────────────────────────────────

type feedbackRequest struct {
	Feedback string `json:"feedback"`
	DryRun   bool   `json:"dry_run"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Feedback == "" {
		badRequest(w, "missing 'feedback'")
		return
	}

	result, err := s.store.ApplyFeedback(id, req.Feedback, req.DryRun)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedbackHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid observation id")
		return
	}
	records, err := s.store.FeedbackHistory(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": records})
}

type batchFeedbackRequest struct {
	Items  []memory.BatchFeedbackItem `json:"items"`
	DryRun bool                       `json:"dry_run"`
}

func (s *Server) handleFeedbackBatch(w http.ResponseWriter, r *http.Request) {
	var req batchFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		badRequest(w, "'items' must contain at least one entry")
		return
	}

	result, err := s.store.BatchFeedback(req.Items, req.DryRun)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ─── Sessions ────────────────────────────────────────────────────────────────

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.RecentSessions(r.URL.Query().Get("project"), queryInt(r, "limit", 20))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type sessionStartRequest struct {
	Project    string `json:"project"`
	WorkingDir string `json:"working_dir"`
	AgentType  string `json:"agent_type"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	sess, err := s.store.StartSession(memory.SessionParams{
		Project:    req.Project,
		WorkingDir: req.WorkingDir,
		AgentType:  req.AgentType,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := map[string]any{"session": sess}
	if queryBool(r, "observations") {
		observations, err := s.store.SessionObservations(id)
		if err != nil {
			respondError(w, err)
			return
		}
		resp["observations"] = observations
	}
	respondJSON(w, http.StatusOK, resp)
}

type sessionEndRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	sess, err := s.store.EndSession(id, req.Summary)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// ─── Stats, export, import ───────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Export()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var data memory.ExportData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.store.Import(&data)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
