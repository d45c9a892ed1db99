package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/haivivi/ishe/pkg/auth"
	"github.com/haivivi/ishe/pkg/conversation"
)

type addConversationRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleAddConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var req addConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rec, err := s.opts.Conversations.Add(r.Context(), id.UserID, req.Text, req.Metadata)
	switch {
	case errors.Is(err, conversation.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "Text is required")
	case errors.Is(err, conversation.ErrDuplicate):
		// Clients retry; the first write already holds the record.
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Conversation already stored"})
	case err != nil:
		s.logger.Error("add conversation", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add conversation")
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Conversation added successfully", "id": rec.ID})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	matches, err := s.opts.Conversations.Search(r.Context(), id.UserID, query, queryInt(r, "limit", conversation.DefaultSearchLimit))
	if err != nil {
		s.logger.Error("search conversations", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to search conversations")
		return
	}
	if matches == nil {
		matches = []conversation.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleUserConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	recs, err := s.opts.Conversations.ByUser(r.Context(), id.UserID)
	if err != nil {
		s.logger.Error("list conversations", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get user conversations")
		return
	}
	if recs == nil {
		recs = []conversation.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	history, err := s.opts.Conversations.History(r.Context(), id.UserID, queryInt(r, "limit", conversation.DefaultHistoryLimit))
	if err != nil {
		s.logger.Error("conversation history", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get conversation history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// queryInt parses a positive integer parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
