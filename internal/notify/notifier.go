// Package notify delivers finished analysis reports and scheduled summaries.
// Delivery is fire-and-forget: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

// Message is one outbound notification
type Message struct {
	UserID string                     `json:"user_id"`
	Kind   string                     `json:"kind"` // task_completed, daily_report
	Title  string                     `json:"title"`
	Text   string                     `json:"text"`
	TaskID string                     `json:"task_id,omitempty"`
	Symbol string                     `json:"symbol,omitempty"`
	Result *contracts.CompositeResult `json:"result,omitempty"`
	SentAt time.Time                  `json:"sent_at"`
}

// Message kinds
const (
	KindTaskCompleted = "task_completed"
	KindDailyReport   = "daily_report"
)

// Sender delivers a message over one channel
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TaskMessage builds the completion message for a task
func TaskMessage(userID string, task *contracts.AnalysisTask) Message {
	return Message{
		UserID: userID,
		Kind:   KindTaskCompleted,
		Title:  fmt.Sprintf("Analysis %s %s", task.Symbol, task.State),
		Text:   FormatTask(task),
		TaskID: task.ID,
		Symbol: task.Symbol,
		Result: task.Result,
		SentAt: time.Now(),
	}
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithModule("notify")}
}

// Notify implements contracts.Notifier
func (n *LogNotifier) Notify(ctx context.Context, userID string, task *contracts.AnalysisTask) error {
	return n.Send(ctx, TaskMessage(userID, task))
}

// Send logs msg
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	fields := map[string]interface{}{
		"user_id": msg.UserID,
		"kind":    msg.Kind,
		"title":   msg.Title,
	}
	if msg.TaskID != "" {
		fields["task_id"] = msg.TaskID
	}
	if msg.Result != nil {
		fields["rating"] = msg.Result.OverallRating
		fields["recommendation"] = msg.Result.Recommendation
	}
	n.logger.WithFields(fields).Info("Notification")
	return nil
}

// Multi fans a message out to every sender; one failing sender does not stop the rest
type Multi struct {
	senders []Sender
}

// NewMulti creates a fan-out notifier
func NewMulti(senders ...Sender) *Multi {
	return &Multi{senders: senders}
}

// Notify implements contracts.Notifier
func (m *Multi) Notify(ctx context.Context, userID string, task *contracts.AnalysisTask) error {
	return m.Send(ctx, TaskMessage(userID, task))
}

// Send delivers to all senders and joins their errors
func (m *Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
