package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/webchat/internal/chat"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/models"
)

// Chat turn
//
//	@Summary	Run a chat turn
//	@Tags		chat
//	@Accept		json
//	@Produce	text/event-stream
//	@Param		payload	body		ChatRequest	true	"Chat payload"
//	@Success	200		{string}	string
//	@Failure	400		{object}	HTTPError
//	@Failure	401		{object}	HTTPError
//	@Failure	403		{object}	HTTPError
//	@Failure	429		{object}	HTTPError
//	@Router		/api/chat [post]
func (s *Server) chat(c echo.Context) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	ctx := c.Request().Context()

	if req.ConversationID != "" {
		_, err := s.deps.Conversations.GetConversationSecure(ctx, req.ConversationID, sid)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrNotFound):
			// ids are issued by the server; an unknown one starts a new conversation
			s.log.Info("unknown conversation id, starting a new conversation",
				logger.String("conversation_id", req.ConversationID))
			req.ConversationID = ""
		default:
			return storeError(err)
		}
	}
	if req.ConversationID == "" {
		ok, err := s.deps.Conversations.CheckConversationRateLimit(ctx, sid)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
		if !ok {
			s.deps.Metrics.RateLimited(ctx, "conversations")
			return echo.NewHTTPError(http.StatusTooManyRequests, "daily conversation limit reached")
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	events := s.deps.Chat.Stream(ctx, chat.TurnRequest{
		SessionID:      sid,
		Message:        req.Message,
		History:        chatHistory(req.Messages),
		ConversationID: req.ConversationID,
	})
	for ev := range events {
		if err := writeEvent(resp, ev); err != nil {
			s.log.Warn("stream write failed", logger.Error(err))
			return nil
		}
	}
	return nil
}

func writeEvent(resp *echo.Response, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

// chatHistory keeps only user and ai messages.
func chatHistory(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleUser || m.Role == models.RoleAI {
			out = append(out, m)
		}
	}
	return out
}

// Continue conversation
//
//	@Summary	Persist client-side messages as a new conversation
//	@Tags		chat
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ContinueRequest	true	"Messages"
//	@Success	200		{object}	ContinueResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/continue [post]
func (s *Server) continueConversation(c echo.Context) error {
	var req ContinueRequest
	if err := c.Bind(&req); err != nil || req.Messages == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid messages format")
	}
	sid, err := s.ensureSession(c)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	if err := s.deps.Conversations.SaveConversation(c.Request().Context(), id, chatHistory(req.Messages), sid); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save conversation").SetInternal(err)
	}
	return c.JSON(http.StatusOK, ContinueResponse{ConversationID: id, Success: true})
}
