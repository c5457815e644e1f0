// ABOUTME: HTTP API for the journey: assets, chapter selection, location, progress and stats
// ABOUTME: JSON responses with a uniform {"error": ...} body on failure

package journey

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/technosutra21/Techno/internal/assetcache"
	"github.com/technosutra21/Techno/internal/location"
)

// ContentTypeGLB is the media type of binary glTF models.
const ContentTypeGLB = "model/gltf-binary"

// Response headers describing the served asset.
const (
	HeaderAssetRef      = "X-Asset-Ref"
	HeaderAssetFallback = "X-Asset-Fallback"
)

// ChapterRequest is the body of PUT /api/chapter.
type ChapterRequest struct {
	ChapterID int `json:"chapter_id"`
}

// ChapterResponse describes the active chapter and its model.
type ChapterResponse struct {
	ChapterID   int    `json:"chapter_id"`
	AssetStatus string `json:"asset_status,omitempty"`
	AssetRef    string `json:"asset_ref,omitempty"`
}

// LocationStats summarizes the tracker. ReplayRemaining is set when the
// sensor replays a recorded track.
type LocationStats struct {
	Active          bool   `json:"active"`
	Tier            string `json:"tier"`
	ReplayRemaining *int   `json:"replay_remaining,omitempty"`
}

// ClearResponse is the body of DELETE /api/assets.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Cache           assetcache.Stats `json:"cache"`
	LoadedIDs       []int            `json:"loaded_ids"`
	PrefetchPending []int            `json:"prefetch_pending"`
	Location        LocationStats    `json:"location"`
	ActiveChapter   int              `json:"active_chapter"`
	RoutePoints     int              `json:"route_points"`
}

// ProgressLocation is the position of a progress entry.
type ProgressLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// ProgressResponse is one entry of GET /api/progress.
type ProgressResponse struct {
	ChapterID   int               `json:"chapter_id"`
	VisitedAt   time.Time         `json:"visited_at"`
	TimeSpentMS int64             `json:"time_spent_ms"`
	Location    *ProgressLocation `json:"location,omitempty"`
}

func (j *Journey) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", j.handleHealth)
	mux.HandleFunc("/api/assets", j.handleAssets)
	mux.HandleFunc("/api/assets/{id}", j.handleAsset)
	mux.HandleFunc("/api/chapter", j.handleChapter)
	mux.HandleFunc("/api/location", j.handleLocation)
	mux.HandleFunc("/api/progress", j.handleProgress)
	mux.HandleFunc("/api/stats", j.handleStats)
}

// handleHealth returns 200 OK if the server is alive.
func (j *Journey) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleAsset serves the model bytes for an asset id. Placeholders are
// reported as 503 with the placeholder reference in X-Asset-Fallback.
func (j *Journey) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 || id > j.config.Assets.Total {
		j.sendJSONError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	h := j.cache.Load(r.Context(), id)
	data := h.Bytes()
	if h.Status != assetcache.StatusReady || data == nil {
		w.Header().Set(HeaderAssetFallback, h.Ref)
		j.sendJSONError(w, http.StatusServiceUnavailable, "asset unavailable")
		return
	}

	w.Header().Set("Content-Type", ContentTypeGLB)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(HeaderAssetRef, h.Ref)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleAssets clears the in-memory and durable asset caches.
func (j *Journey) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := j.ClearCache(r.Context())
	if err != nil {
		j.logger.Error("failed to clear asset cache", "error", err)
		j.sendJSONError(w, http.StatusInternalServerError, "failed to clear asset cache")
		return
	}
	j.sendJSON(w, http.StatusOK, ClearResponse{Removed: n})
}

func (j *Journey) handleChapter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := ChapterResponse{ChapterID: j.matcher.ActiveChapter()}
		if st, ok := j.cache.Status(resp.ChapterID); ok {
			resp.AssetStatus = st.String()
		}
		j.sendJSON(w, http.StatusOK, resp)
	case http.MethodPut:
		j.handleSelectChapter(w, r)
	default:
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (j *Journey) handleSelectChapter(w http.ResponseWriter, r *http.Request) {
	var req ChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		j.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h, err := j.SelectChapter(r.Context(), req.ChapterID)
	if errors.Is(err, assetcache.ErrInvalidID) {
		j.sendJSONError(w, http.StatusBadRequest, "chapter_id out of range")
		return
	}
	if err != nil {
		j.logger.Error("failed to select chapter", "chapter_id", req.ChapterID, "error", err)
		j.sendJSONError(w, http.StatusInternalServerError, "failed to select chapter")
		return
	}

	j.sendJSON(w, http.StatusOK, ChapterResponse{
		ChapterID:   req.ChapterID,
		AssetStatus: h.Status.String(),
		AssetRef:    h.Ref,
	})
}

func (j *Journey) handleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s, ok := j.tracker.LastKnown()
	if !ok {
		j.sendJSONError(w, http.StatusNotFound, "no location yet")
		return
	}
	j.sendJSON(w, http.StatusOK, s)
}

func (j *Journey) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := j.store.ListProgress(r.Context())
	if err != nil {
		j.logger.Error("failed to list progress", "error", err)
		j.sendJSONError(w, http.StatusInternalServerError, "failed to list progress")
		return
	}

	resp := make([]ProgressResponse, 0, len(entries))
	for _, e := range entries {
		p := ProgressResponse{
			ChapterID:   e.ChapterID,
			VisitedAt:   e.VisitedAt,
			TimeSpentMS: e.TimeSpent.Milliseconds(),
		}
		if e.Location != nil {
			p.Location = &ProgressLocation{Lat: e.Location.Lat, Lng: e.Location.Lng, Accuracy: e.Location.Accuracy}
		}
		resp = append(resp, p)
	}
	j.sendJSON(w, http.StatusOK, resp)
}

func (j *Journey) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		j.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	j.sendJSON(w, http.StatusOK, j.Stats())
}

// Stats returns a snapshot of the journey's components.
func (j *Journey) Stats() StatsResponse {
	loc := LocationStats{
		Active: j.tracker.Active(),
		Tier:   j.tracker.Tier().String(),
	}
	if rs, ok := j.sensor.(*location.ReplaySensor); ok {
		n := rs.Remaining()
		loc.ReplayRemaining = &n
	}
	return StatsResponse{
		Cache:           j.cache.Stats(),
		LoadedIDs:       j.cache.LoadedIDs(),
		PrefetchPending: j.scheduler.Pending(),
		Location:        loc,
		ActiveChapter:   j.matcher.ActiveChapter(),
		RoutePoints:     len(j.route.Points()),
	}
}

func (j *Journey) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		j.logger.Warn("failed to encode response", "error", err)
	}
}

func (j *Journey) sendJSONError(w http.ResponseWriter, status int, message string) {
	j.sendJSON(w, status, map[string]string{"error": message})
}
