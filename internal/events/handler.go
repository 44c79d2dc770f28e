// Package events ingests task-completion and feedback events from the
// workflow layer over NATS JetStream and feeds them to the learning engine.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campaignly/learning-engine/pkg/models"
)

// Subjects consumed from the learning stream.
const (
	SubjectTaskCompleted = "learning.tasks.completed"
	SubjectFeedback      = "learning.feedback"
)

// Recorder is the part of the learning service driven by events.
type Recorder interface {
	RecordTaskPerformance(ctx context.Context, task models.TaskPerformance) (*models.RecordResult, error)
	ProcessFeedback(ctx context.Context, orgID string, agentType models.AgentType, fb models.Feedback) (*models.FeedbackResult, error)
}

// PoisonError marks a message that will never succeed, however often it is redelivered.
type PoisonError struct {
	Subject string
	Err     error
}

func (e *PoisonError) Error() string {
	return fmt.Sprintf("poison message on %s: %v", e.Subject, e.Err)
}

func (e *PoisonError) Unwrap() error { return e.Err }

// IsPoison reports whether err should terminate redelivery.
func IsPoison(err error) bool {
	var pe *PoisonError
	return errors.As(err, &pe)
}

// Handler decodes event payloads and applies them. It is transport independent.
type Handler struct {
	svc Recorder
}

// NewHandler creates a handler that applies events to svc.
func NewHandler(svc Recorder) *Handler {
	return &Handler{svc: svc}
}

// Handle applies one event. Malformed or invalid payloads come back as
// *PoisonError; anything else is worth retrying.
func (h *Handler) Handle(ctx context.Context, subject string, data []byte) error {
	var err error
	switch subject {
	case SubjectTaskCompleted:
		var task models.TaskPerformance
		if err := json.Unmarshal(data, &task); err != nil {
			return &PoisonError{Subject: subject, Err: fmt.Errorf("decode task event: %w", err)}
		}
		_, err = h.svc.RecordTaskPerformance(ctx, task)
	case SubjectFeedback:
		var ev models.FeedbackEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return &PoisonError{Subject: subject, Err: fmt.Errorf("decode feedback event: %w", err)}
		}
		_, err = h.svc.ProcessFeedback(ctx, ev.OrganizationID, ev.AgentType, ev.Feedback)
	default:
		return &PoisonError{Subject: subject, Err: errors.New("unknown subject")}
	}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return &PoisonError{Subject: subject, Err: err}
	}
	return err
}

// Disposition is what the consumer does with a message after handling it.
type Disposition string

const (
	Ack  Disposition = "ack"
	Nak  Disposition = "nak"
	Term Disposition = "term"
)

// DispositionFor maps a Handle result to an acknowledgement.
func DispositionFor(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case IsPoison(err):
		return Term
	default:
		return Nak
	}
}
