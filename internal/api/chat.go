package api

import (
	"net/http"

	"nexa/pkg/types"
)

// GET /api/chat/{courseId}/history
func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFrom(r.Context())
	courseID := r.PathValue("courseId")

	if _, err := s.deps.Access.Check(r.Context(), identity, courseID); err != nil {
		s.sendError(w, r, err)
		return
	}

	messages, err := s.deps.History.GetChatHistory(r.Context(), courseID, s.opts.HistoryLimit)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	data := make([]*types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		shown := *m
		mine := m.Sender.ID == identity.ID
		shown.IsMine = &mine
		data = append(data, &shown)
	}
	s.writeJSON(w, r, http.StatusOK, Response{
		Data:    data,
		Message: "Chat history fetched successfully.",
	})
}

type BotRequest struct {
	Message string `json:"message" validate:"notblank"`
}

type BotResponse struct {
	Response string `json:"response"`
}

// POST /api/chat/bot/{courseId}
func (s *Server) botMessage(w http.ResponseWriter, r *http.Request) {
	var req BotRequest
	if err := s.decode(w, r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}

	reply, err := s.deps.Bot.Reply(r.Context(), IdentityFrom(r.Context()), r.PathValue("courseId"), req.Message)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, Response{Data: BotResponse{Response: reply}})
}
