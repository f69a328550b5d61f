// Package httpapi exposes the timeline facade as a JSON HTTP surface. The
// adapter carries no business logic: it parses requests, calls the facade,
// and maps domain errors to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/perchsocial/perch/internal/services/timeline/engagement"
	"github.com/perchsocial/perch/internal/services/timeline/facade"
	"github.com/perchsocial/perch/internal/services/timeline/feed"
	"github.com/perchsocial/perch/internal/services/timeline/graph"
	"github.com/perchsocial/perch/internal/services/timeline/storage"
)

// viewerHeader carries the already-authenticated caller. Authentication is
// an upstream concern; the value is trusted here.
const viewerHeader = "X-User-ID"

// Handler routes timeline API requests.
type Handler struct {
	facade   *facade.Facade
	requests *prometheus.CounterVec
}

// NewHandler creates a timeline HTTP handler and registers its metrics.
func NewHandler(f *facade.Facade, reg prometheus.Registerer) *Handler {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Handler{
		facade: f,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_http_requests_total",
			Help: "Timeline API requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Routes builds the timeline API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/{id}/follow", h.instrument("follow", h.handleFollow))
	mux.HandleFunc("DELETE /users/{id}/follow", h.instrument("unfollow", h.handleUnfollow))
	mux.HandleFunc("GET /users/{id}/followers", h.instrument("followers", h.handleFollowers))
	mux.HandleFunc("GET /users/{id}/following", h.instrument("following", h.handleFollowing))
	mux.HandleFunc("GET /users/{id}/counts", h.instrument("counts", h.handleCounts))
	mux.HandleFunc("GET /users/{id}/messages", h.instrument("user_timeline", h.handleUserTimeline))
	mux.HandleFunc("GET /users/{id}/likes", h.instrument("liked_messages", h.handleLikedMessages))
	mux.HandleFunc("POST /messages", h.instrument("post_message", h.handlePostMessage))
	mux.HandleFunc("DELETE /messages/{id}", h.instrument("delete_message", h.handleDeleteMessage))
	mux.HandleFunc("POST /messages/{id}/like", h.instrument("like", h.handleLike))
	mux.HandleFunc("DELETE /messages/{id}/like", h.instrument("unlike", h.handleUnlike))
	mux.HandleFunc("GET /feed", h.instrument("feed", h.handleFeed))
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		h.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	}
}

type messageEntry struct {
	ID            int64  `json:"id"`
	AuthorID      int64  `json:"author_id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	LikeCount     int64  `json:"like_count"`
	LikedByViewer bool   `json:"liked_by_viewer"`
}

type feedResponse struct {
	Entries    []messageEntry `json:"entries"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type userIDPageResponse struct {
	UserIDs    []int64 `json:"user_ids"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type countsResponse struct {
	Messages   int64 `json:"messages"`
	Followers  int64 `json:"followers"`
	Following  int64 `json:"following"`
	LikesGiven int64 `json:"likes_given"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	targetID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.facade.Follow(r.Context(), viewerID, targetID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	targetID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.facade.Unfollow(r.Context(), viewerID, targetID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFollowers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.facade.Followers(r.Context(), userID, pageSizeParam(r), cursorParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, userIDPageResponse{UserIDs: page.UserIDs, NextCursor: page.NextCursor})
}

func (h *Handler) handleFollowing(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.facade.Following(r.Context(), userID, pageSizeParam(r), cursorParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, userIDPageResponse{UserIDs: page.UserIDs, NextCursor: page.NextCursor})
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	counts, err := h.facade.GetProfileCounts(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, countsResponse{
		Messages:   counts.Messages,
		Followers:  counts.Followers,
		Following:  counts.Following,
		LikesGiven: counts.LikesGiven,
	})
}

func (h *Handler) handleUserTimeline(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	authorID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.facade.GetUserTimeline(r.Context(), viewerID, authorID, pageSizeParam(r), cursorParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toFeedResponse(page))
}

func (h *Handler) handleLikedMessages(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.facade.GetLikedMessages(r.Context(), viewerID, userID, pageSizeParam(r), cursorParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toFeedResponse(page))
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	message, err := h.facade.PostMessage(r.Context(), viewerID, req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, messageEntry{
		ID:        message.ID,
		AuthorID:  message.AuthorID,
		Text:      message.Text,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	messageID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.facade.DeleteMessage(r.Context(), viewerID, messageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	messageID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.facade.Like(r.Context(), viewerID, messageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnlike(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	messageID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.facade.Unlike(r.Context(), viewerID, messageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := h.viewer(w, r)
	if !ok {
		return
	}
	page, err := h.facade.GetFeed(r.Context(), viewerID, pageSizeParam(r), cursorParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toFeedResponse(page))
}

func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(viewerHeader))
	if raw == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + viewerHeader + " header"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid " + viewerHeader + " header"})
		return 0, false
	}
	return id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func pageSizeParam(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("page_size"))
	if raw == "" {
		return 0
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return size
}

func cursorParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("cursor"))
}

func toFeedResponse(page facade.FeedPage) feedResponse {
	resp := feedResponse{
		Entries:    make([]messageEntry, 0, len(page.Entries)),
		NextCursor: page.NextCursor,
	}
	for _, entry := range page.Entries {
		resp.Entries = append(resp.Entries, toMessageEntry(entry))
	}
	return resp
}

func toMessageEntry(entry feed.Entry) messageEntry {
	return messageEntry{
		ID:            entry.Message.ID,
		AuthorID:      entry.Message.AuthorID,
		Text:          entry.Message.Text,
		CreatedAt:     entry.Message.CreatedAt.Format(time.RFC3339),
		LikeCount:     entry.LikeCount,
		LikedByViewer: entry.LikedByViewer,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrSelfFollow), errors.Is(err, engagement.ErrSelfLike):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, facade.ErrNotMessageAuthor):
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrDanglingReference), errors.Is(err, storage.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, facade.ErrInvalidCursor), errors.Is(err, facade.ErrInvalidMessageText):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.Printf("timeline api: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
