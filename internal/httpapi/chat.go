package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/voicechat/internal/chat"
	"github.com/ent0n29/voicechat/internal/conversation"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type historyResponse struct {
	Messages []conversation.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", chat.ErrEmptyMessage.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if err := chat.ValidateMessage(req.Message); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Response: s.chat.Reply(r.Context(), req.Message)})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	messages := s.chat.History()
	if messages == nil {
		messages = []conversation.Message{}
	}
	respondJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.chat.ClearHistory()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
