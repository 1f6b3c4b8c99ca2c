package models

type EventType string

const (
	EventStatus       EventType = "status"
	EventSearchResult EventType = "searchResult"
	EventCompletion   EventType = "completion"
	EventError        EventType = "error"
)

// Status values emitted during a chat turn.
const (
	StatusSearching    = "searching"
	StatusScraping     = "scraping"
	StatusSearchFailed = "search failed, answering without web results"
)

// Citation is a source handed to the model for a completion.
type Citation struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
}

// Event is one line of the chat turn stream. Content is a string for
// status/completion/error events and a SearchResult for searchResult events.
type Event struct {
	Type           EventType   `json:"type"`
	Content        interface{} `json:"content"`
	ConversationID string      `json:"conversationId,omitempty"`
	Citations      []Citation  `json:"citations,omitempty"`
}

func StatusEvent(status string) Event {
	return Event{Type: EventStatus, Content: status}
}

func SearchResultEvent(r SearchResult) Event {
	return Event{Type: EventSearchResult, Content: r}
}

func CompletionEvent(reply, conversationID string, citations []Citation) Event {
	return Event{Type: EventCompletion, Content: reply, ConversationID: conversationID, Citations: citations}
}

func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Content: msg}
}

// Terminal reports whether e ends a turn stream.
func (e Event) Terminal() bool {
	return e.Type == EventCompletion || e.Type == EventError
}
