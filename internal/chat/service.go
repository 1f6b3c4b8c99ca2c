package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/webchat/internal/helpers"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/provider"
	"go.opentelemetry.io/otel/attribute"
)

// Messages surfaced on the turn stream. Internal detail stays in the logs.
const (
	msgGenerationFailed = "failed to generate a response, please try again"
	msgAccessDenied     = "access denied"
	msgSaveFailed       = "failed to save the conversation"
	msgInternal         = "internal error"
)

// Gatherer collects the web context for a message.
type Gatherer interface {
	Gather(ctx context.Context, message string, emit func(models.Event)) []models.ScrapedContent
}

type Completer interface {
	Complete(ctx context.Context, messages []provider.Message) (string, error)
}

type ConversationSaver interface {
	SaveConversation(ctx context.Context, id string, messages []models.Message, sessionID string) error
}

type TurnRequest struct {
	SessionID      string
	Message        string
	History        []models.Message
	ConversationID string
}

// Service runs chat turns end to end.
type Service struct {
	gatherer Gatherer
	llm      Completer
	store    ConversationSaver
	log      logger.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

func NewService(gatherer Gatherer, llm Completer, store ConversationSaver, log logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		gatherer: gatherer,
		llm:      llm,
		store:    store,
		log:      log.With(logger.Component("chat")),
		metrics:  m,
		newID:    uuid.NewString,
	}
}

// Stream runs one turn in the background and returns its events. The channel
// always ends with a completion or error event unless ctx is cancelled first,
// and is closed afterwards.
func (s *Service) Stream(ctx context.Context, req TurnRequest) <-chan models.Event {
	out := make(chan models.Event, 8)
	go func() {
		defer close(out)
		s.run(ctx, req, func(e models.Event) {
			select {
			case out <- e:
			case <-ctx.Done():
			}
		})
	}()
	return out
}

func (s *Service) run(ctx context.Context, req TurnRequest, emit func(models.Event)) {
	ctx, span := chatTracer.Start(ctx, "chat.Turn")
	defer span.End()
	started := time.Now()
	log := s.log.With(logger.String("conversation_id", req.ConversationID))

	var turnErr error
	defer func() {
		if r := recover(); r != nil {
			log.Error("chat turn panicked", logger.Any("panic", r))
			turnErr = errors.New("panic")
			emit(models.ErrorEvent(msgInternal))
		}
		s.metrics.Turn(ctx, started, turnErr)
	}()

	contents := s.gatherer.Gather(ctx, req.Message, emit)
	span.SetAttributes(attribute.Int("sources", len(contents)))

	prompt := BuildPrompt(req.Message, req.History, contents)
	reply, err := s.llm.Complete(ctx, prompt.ChatMessages())
	if err != nil {
		turnErr = err
		span.RecordError(err)
		log.Error("completion failed", logger.Error(err))
		emit(models.ErrorEvent(msgGenerationFailed))
		return
	}

	id := req.ConversationID
	if id == "" {
		id = s.newID()
	}
	messages := append(models.CloneMessages(req.History),
		models.Message{Role: models.RoleUser, Content: req.Message},
		models.Message{Role: models.RoleAI, Content: reply},
	)
	if err := s.store.SaveConversation(ctx, id, messages, req.SessionID); err != nil {
		turnErr = err
		span.RecordError(err)
		log.Error("save conversation failed", logger.String("id", id), logger.Error(err))
		if errors.Is(err, models.ErrForbidden) || errors.Is(err, models.ErrInvalidSession) {
			emit(models.ErrorEvent(msgAccessDenied))
		} else {
			emit(models.ErrorEvent(msgSaveFailed))
		}
		return
	}

	log.Info("chat turn completed", logger.String("id", id), logger.Int("sources", len(contents)),
		logger.Duration("elapsed", time.Since(started)))
	emit(models.CompletionEvent(reply, id, helpers.CitationsFromScrapes(contents)))
}
