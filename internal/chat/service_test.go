package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/provider"
)

type stubCompleter struct {
	reply string
	err   error
	got   []provider.Message
}

func (s *stubCompleter) Complete(_ context.Context, messages []provider.Message) (string, error) {
	s.got = messages
	return s.reply, s.err
}

type memorySaver struct {
	err   error
	saved map[string][]models.Message
	owner map[string]string
}

func (m *memorySaver) SaveConversation(_ context.Context, id string, messages []models.Message, sid string) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string][]models.Message{}
		m.owner = map[string]string{}
	}
	m.saved[id] = messages
	m.owner[id] = sid
	return nil
}

func drain(ch <-chan models.Event) []models.Event {
	var out []models.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func newTestService(llm Completer, saver ConversationSaver, classify bool) *Service {
	searcher := &fakeSearcher{results: []models.SearchResult{{Title: "News", Link: "https://news.example.com"}}}
	o := NewOrchestrator(fixedClassifier(classify), searcher, &fakeScraper{}, OrchestratorOptions{}, nil, nil)
	s := NewService(o, llm, saver, nil, nil)
	s.newID = func() string { return "conv-1" }
	return s
}

func TestStreamCompletesAndSaves(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{reply: "Here is the news [News](https://news.example.com)"}
	saver := &memorySaver{}
	s := newTestService(llm, saver, true)

	events := drain(s.Stream(context.Background(), TurnRequest{
		SessionID: "sid",
		Message:   "What happened in the news today?",
		History:   []models.Message{{Role: models.RoleUser, Content: "hi"}, {Role: models.RoleAI, Content: "hello"}},
	}))

	want := []string{"status:searching", "searchResult", "status:scraping", "completion"}
	if seq := sequence(events); !reflect.DeepEqual(seq, want) {
		t.Fatalf("unexpected events %v", seq)
	}
	done := events[len(events)-1]
	if done.ConversationID != "conv-1" || done.Content != llm.reply {
		t.Fatalf("unexpected completion %+v", done)
	}
	if len(done.Citations) != 1 || done.Citations[0].URL != "https://news.example.com" {
		t.Fatalf("unexpected citations %+v", done.Citations)
	}
	saved := saver.saved["conv-1"]
	if len(saved) != 4 || saved[2].Content != "What happened in the news today?" || saved[3].Role != models.RoleAI {
		t.Fatalf("unexpected saved messages %+v", saved)
	}
	if saver.owner["conv-1"] != "sid" {
		t.Fatalf("conversation saved under wrong session")
	}
}

func TestStreamKeepsExistingConversationID(t *testing.T) {
	t.Parallel()
	saver := &memorySaver{}
	s := newTestService(&stubCompleter{reply: "ok"}, saver, false)

	events := drain(s.Stream(context.Background(), TurnRequest{SessionID: "sid", Message: "hi", ConversationID: "existing"}))

	if seq := sequence(events); !reflect.DeepEqual(seq, []string{"completion"}) {
		t.Fatalf("unexpected events %v", seq)
	}
	if events[0].ConversationID != "existing" || len(saver.saved["existing"]) != 2 {
		t.Fatalf("expected save under existing id, got %+v", saver.saved)
	}
}

func TestStreamEndsWithErrorEvent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		llm     *stubCompleter
		saver   *memorySaver
		wantMsg string
	}{
		{name: "completion failure", llm: &stubCompleter{err: provider.ErrExhausted}, saver: &memorySaver{}, wantMsg: msgGenerationFailed},
		{name: "not owner", llm: &stubCompleter{reply: "ok"}, saver: &memorySaver{err: models.ErrForbidden}, wantMsg: msgAccessDenied},
		{name: "store down", llm: &stubCompleter{reply: "ok"}, saver: &memorySaver{err: errors.New("dial tcp: refused")}, wantMsg: msgSaveFailed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			events := drain(newTestService(tc.llm, tc.saver, false).Stream(context.Background(), TurnRequest{SessionID: "sid", Message: "hi"}))
			if len(events) == 0 {
				t.Fatalf("expected a terminal event")
			}
			last := events[len(events)-1]
			if last.Type != models.EventError || last.Content != tc.wantMsg {
				t.Fatalf("unexpected terminal event %+v", last)
			}
			if !last.Terminal() {
				t.Fatalf("error events must be terminal")
			}
		})
	}
}
