package server

import "github.com/mohammad-safakhou/webchat/models"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	Status string `json:"status"`
}

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	Message        string           `json:"message"`
	Messages       []models.Message `json:"messages"`
	ConversationID string           `json:"conversationId,omitempty"`
}

type ContinueRequest struct {
	Messages []models.Message `json:"messages"`
}

type ContinueResponse struct {
	ConversationID string `json:"conversationId"`
	Success        bool   `json:"success"`
}

type ConversationResponse struct {
	Conversation []models.Message `json:"conversation"`
}

type ConversationListResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
}

type ShareRequest struct {
	ConversationID string `json:"conversationId"`
}

type ShareResponse struct {
	SharedID string `json:"sharedId"`
}
