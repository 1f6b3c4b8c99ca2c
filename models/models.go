package models

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation or snapshot does not exist (or has expired)
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a session does not own the requested conversation
	ErrForbidden = errors.New("access denied")
	// ErrInvalidSession is returned when a session id fails format validation
	ErrInvalidSession = errors.New("invalid session id")
	// ErrRateLimited is returned when a per-session quota is exhausted
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ScrapeFailedMessage is the only error text surfaced for a failed scrape.
const ScrapeFailedMessage = "Failed to scrape URL"

type Headings struct {
	H1 string `json:"h1"`
	H2 string `json:"h2"`
}

// ScrapedContent is the normalized text of a single page. When Error is set
// every text field is empty.
type ScrapedContent struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Headings        Headings `json:"headings"`
	MetaDescription string   `json:"metaDescription"`
	Content         string   `json:"content"`
	Error           *string  `json:"error"`
	CachedAt        int64    `json:"cachedAt,omitempty"`
}

// Failed reports whether the scrape attempt failed.
func (s ScrapedContent) Failed() bool { return s.Error != nil }

// FailedScrape builds the failure value for url.
func FailedScrape(url string) ScrapedContent {
	msg := ScrapeFailedMessage
	return ScrapedContent{URL: url, Error: &msg}
}

type SearchResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Source      string `json:"source"`
}

type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

type Conversation struct {
	ID             string    `json:"id"`
	Messages       []Message `json:"messages"`
	OwnerSessionID string    `json:"ownerSessionId"`
}

// ConversationSummary is the list view of a conversation owned by a session.
type ConversationSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"messageCount"`
}

type SharedConversation struct {
	SharedID   string    `json:"sharedId"`
	OriginalID string    `json:"originalId"`
	Messages   []Message `json:"messages"`
	SharedBy   string    `json:"sharedBy"`
	SharedAt   time.Time `json:"sharedAt"`
}

type SharedMetadata struct {
	SharedBy string    `json:"sharedBy"`
	SharedAt time.Time `json:"sharedAt"`
}

// SharedView is the public representation of a shared snapshot.
type SharedView struct {
	Messages []Message      `json:"messages"`
	Metadata SharedMetadata `json:"metadata"`
}

func (s SharedConversation) View() SharedView {
	return SharedView{
		Messages: CloneMessages(s.Messages),
		Metadata: SharedMetadata{SharedBy: s.SharedBy, SharedAt: s.SharedAt},
	}
}

type Session struct {
	ID           string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}
