package engine

import (
	"chatgate/app/client/llm"
	"chatgate/app/config"
	"chatgate/app/service/admission"
	"chatgate/app/service/conversation"
	"chatgate/app/service/queue"
	"chatgate/app/util/chat"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/do"
)

const (
	optOutConfirmation = "You have been unsubscribed and will not receive further messages."
	spamDeflection     = "Sorry, I can't help with that."
)

// Replier produces the assistant reply for a prepared set of turns.
type Replier interface {
	Reply(ctx context.Context, turns []chat.Turn) (string, error)
}

type Service struct {
	cfg             *config.Config
	admissionSvc    *admission.Service
	conversationSvc *conversation.Service
	replier         Replier
	queueSvc        *queue.Service
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*admission.Service](di),
		do.MustInvoke[*conversation.Service](di),
		do.MustInvoke[*llm.Client](di),
		do.MustInvoke[*queue.Service](di),
	), nil
}

func NewService(
	cfg *config.Config,
	admissionSvc *admission.Service,
	conversationSvc *conversation.Service,
	replier Replier,
	queueSvc *queue.Service,
) *Service {
	return &Service{
		cfg:             cfg,
		admissionSvc:    admissionSvc,
		conversationSvc: conversationSvc,
		replier:         replier,
		queueSvc:        queueSvc,
	}
}

// Run consumes the inbound queue until the context is cancelled or the queue
// closes. Each message is processed in its own goroutine so one identity's
// pacing delay never holds back another identity; the admission lock
// suppresses concurrent checks for the same identity. Run returns only after
// in-flight messages finish.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return
			}

			wg.Add(1)

			go func() {
				defer wg.Done()

				start := time.Now()
				if err := s.processMessage(ctx, msg); err != nil {
					slog.Warn("processMessage error",
						"identity", msg.Identity,
						"error", err,
					)
					return
				}

				slog.Info("Processed message",
					"identity", msg.Identity,
					"duration", time.Since(start))
			}()
		}
	}
}

func (s *Service) processMessage(ctx context.Context, msg queue.Message) error {
	now := time.Now()

	if !s.admissionSvc.TryLock(ctx, msg.Identity) {
		slog.Debug("Concurrent admission check suppressed", "identity", msg.Identity)
		return nil
	}
	defer s.admissionSvc.Unlock(ctx, msg.Identity)

	decision := s.admissionSvc.Decide(ctx, msg.Identity, msg.Text, now)

	if decision.OptOutAck {
		s.sendReply(msg.Identity, optOutConfirmation)
		return nil
	}

	if !decision.Allowed {
		slog.Info("Message denied",
			"identity", msg.Identity,
			"reason", decision.Reason,
		)
		return nil
	}

	if isSpam, pattern := s.admissionSvc.CheckSpam(msg.Text); isSpam {
		slog.Warn("Spam detected",
			"identity", msg.Identity,
			"pattern", pattern,
		)

		s.sendReply(msg.Identity, spamDeflection)
		return nil
	}

	// Pacing delay suspends only this request; cancellation abandons the
	// model call without recording the send
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.admissionSvc.Delay(now)):
	}

	history := s.conversationSvc.History(ctx, msg.Identity)
	incoming := chat.Turn{Role: chat.RoleUser, Content: msg.Text}

	result := s.conversationSvc.Compact(ctx, msg.Identity, history, incoming, time.Now())

	contextTurns := result.Context.Turns()
	modelTurns := make([]chat.Turn, 0, len(contextTurns)+1)
	modelTurns = append(modelTurns, contextTurns...)
	modelTurns = append(modelTurns, incoming)

	reply, err := s.replier.Reply(ctx, modelTurns)
	if err != nil {
		return fmt.Errorf("replier.Reply: %w", err)
	}

	reply = s.admissionSvc.Sanitize(reply)

	s.sendReply(msg.Identity, reply)
	s.admissionSvc.RecordSent(ctx, msg.Identity, time.Now())

	assistant := chat.Turn{Role: chat.RoleAssistant, Content: reply}

	if result.Compacted {
		err = s.conversationSvc.ReplaceHistory(ctx, msg.Identity,
			append(modelTurns, assistant))
	} else {
		err = s.conversationSvc.AppendTurns(ctx, msg.Identity, incoming, assistant)
	}
	if err != nil {
		slog.Warn("Failed to update conversation cache",
			"identity", msg.Identity,
			"error", err,
		)
	}

	return nil
}

func (s *Service) sendReply(identity, text string) {
	// Outbound delivery is the transport's concern; the reply is surfaced
	// via logs for the operator channel
	slog.Info("Replied to message",
		"identity", identity,
		"text", text,
		"telegram", true)
}
