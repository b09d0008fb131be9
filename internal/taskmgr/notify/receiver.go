// Package notify turns incoming push messages into user-visible
// notifications and resolves notification clicks to a destination view.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/events"
	"go.uber.org/zap"
)

const (
	Title       = "Eagle Task Manager"
	DefaultBody = "New notification from Eagle Task Manager"

	ActionExplore = "explore"
	ActionClose   = "close"

	// RootPath is the view opened by the explore action.
	RootPath = "/"
)

type Action struct {
	Action string
	Title  string
	Icon   string
}

type Notification struct {
	Title     string
	Body      string
	Icon      string
	Badge     string
	Vibrate   []int
	Actions   []Action
	ArrivedAt time.Time
	// Event is set when the notification came from a task event.
	Event *events.Event
}

// Displayer presents a notification to the user.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
}

type Receiver struct {
	display Displayer
	logger  *zap.Logger
	now     func() time.Time
}

func NewReceiver(display Displayer, logger *zap.Logger) *Receiver {
	return &Receiver{
		display: display,
		logger:  logger.Named("notify"),
		now:     time.Now,
	}
}

// HandlePush displays a notification with text as its body, or the default
// body when text is nil or empty.
func (r *Receiver) HandlePush(ctx context.Context, text *string) error {
	return r.show(ctx, r.build(text))
}

// HandleEvent displays a task event as a push notification.
func (r *Receiver) HandleEvent(ctx context.Context, event events.Event) error {
	var text *string
	if event.Message != "" {
		text = &event.Message
	}
	n := r.build(text)
	n.Event = &event
	return r.show(ctx, n)
}

// HandleClick returns the view to open for action. Only explore opens a
// view; every other action just dismisses.
func (r *Receiver) HandleClick(action string) (string, bool) {
	if action == ActionExplore {
		return RootPath, true
	}
	return "", false
}

func (r *Receiver) build(text *string) Notification {
	body := DefaultBody
	if text != nil && *text != "" {
		body = *text
	}
	return Notification{
		Title:   Title,
		Body:    body,
		Icon:    "/static/icon-192x192.png",
		Badge:   "/static/badge-72x72.png",
		Vibrate: []int{200, 100, 200},
		Actions: []Action{
			{Action: ActionExplore, Title: "View", Icon: "/static/checkmark.png"},
			{Action: ActionClose, Title: "Close", Icon: "/static/xmark.png"},
		},
		ArrivedAt: r.now(),
	}
}

func (r *Receiver) show(ctx context.Context, n Notification) error {
	if err := r.display.Display(ctx, n); err != nil {
		r.logger.Warn("failed to display notification", zap.String("body", n.Body), zap.Error(err))
		return fmt.Errorf("failed to display notification: %w", err)
	}
	r.logger.Debug("notification displayed", zap.String("body", n.Body))
	return nil
}
