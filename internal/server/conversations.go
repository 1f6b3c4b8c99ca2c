package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/webchat/models"
)

// Conversation fetch
//
//	@Summary	Get one owned conversation, or list the session's conversations
//	@Tags		conversations
//	@Produce	json
//	@Param		id	query		string	false	"Conversation ID"
//	@Success	200	{object}	ConversationResponse
//	@Failure	401	{object}	HTTPError
//	@Failure	403	{object}	HTTPError
//	@Failure	404	{object}	HTTPError
//	@Router		/api/conversation [get]
func (s *Server) conversation(c echo.Context) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := strings.TrimSpace(c.QueryParam("id"))
	if id == "" {
		list, err := s.deps.Conversations.GetSessionConversations(ctx, sid)
		if err != nil {
			return storeError(err)
		}
		if list == nil {
			list = []models.ConversationSummary{}
		}
		return c.JSON(http.StatusOK, ConversationListResponse{Conversations: list})
	}
	msgs, err := s.deps.Conversations.GetConversationSecure(ctx, id, sid)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ConversationResponse{Conversation: models.CloneMessages(msgs)})
}

// Share conversation
//
//	@Summary	Create a public snapshot of an owned conversation
//	@Tags		conversations
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ShareRequest	true	"Conversation to share"
//	@Success	200		{object}	ShareResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	401		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/share [post]
func (s *Server) share(c echo.Context) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	var req ShareRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.ConversationID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversationId is required")
	}
	sharedID, ok := s.deps.Conversations.CreateSharedConversation(c.Request().Context(), req.ConversationID, sid)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found or access denied")
	}
	return c.JSON(http.StatusOK, ShareResponse{SharedID: sharedID})
}

// Shared conversation
//
//	@Summary	Get a shared snapshot; no session required
//	@Tags		conversations
//	@Produce	json
//	@Param		id	path		string	true	"Shared ID"
//	@Success	200	{object}	models.SharedView
//	@Failure	404	{object}	HTTPError
//	@Router		/api/shared/{id} [get]
func (s *Server) shared(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing conversation id")
	}
	shared, err := s.deps.Conversations.GetSharedConversation(c.Request().Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "shared conversation not found")
	}
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, shared.View())
}

// storeError maps repository sentinels onto HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidSession):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
	case errors.Is(err, models.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
