package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatwarden/classifier"
	"chatwarden/telemetry"
)

// Classifier judges a single message against the moderation policy.
// Implemented by classifier.Client; faked in tests.
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Verdict, error)
}

// Pipeline turns a fetched batch of messages into moderation decisions.
// Stateless across batches; decisions come back in input order.
type Pipeline struct {
	Classifier  Classifier
	BanDuration time.Duration // 0 = permanent ban
	// OnError receives classification failures. The failing message still
	// yields an ActionNone decision; nothing is ever removed on error.
	OnError func(msg ChatMessage, err error)
}

// Process classifies each text message in batch and derives an action per
// message. System events are skipped without a classifier call. A classifier
// failure never escalates: the message passes through unmoderated.
func (p *Pipeline) Process(ctx context.Context, batch []ChatMessage) []Decision {
	decisions := make([]Decision, 0, len(batch))
	for _, msg := range batch {
		if ctx.Err() != nil {
			return decisions
		}
		incr(telemetry.MessagesScanned)
		if msg.EventType != EventTextMessage {
			incr(telemetry.MessagesSkipped)
			decisions = append(decisions, Decision{Message: msg})
			continue
		}

		var verdict classifier.Verdict
		var err error
		telemetry.TimeFunc(telemetry.ClassifyDuration, func() {
			verdict, err = p.Classifier.Classify(ctx, msg.Text)
		})
		if err != nil {
			incr(telemetry.ClassifyFailures)
			slog.Warn("classification failed, leaving message untouched",
				slog.String("message_id", msg.ID),
				slog.String("author", msg.AuthorName),
				slog.String("error", err.Error()))
			if p.OnError != nil {
				p.OnError(msg, err)
			}
			decisions = append(decisions, Decision{Message: msg})
			continue
		}

		d := Decision{Message: msg}
		if verdict.Violates {
			incr(telemetry.MessagesFlagged)
			d.Action = Action{
				Kind:        ActionDeleteAndBan,
				MessageID:   msg.ID,
				AuthorID:    msg.AuthorID,
				BanDuration: p.BanDuration,
				Reason:      verdict.Reason,
			}
		}
		decisions = append(decisions, d)
	}
	return decisions
}

func incr(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
