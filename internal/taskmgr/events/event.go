// Package events carries task notifications between the server and
// signed-in clients over Kafka.
package events

import (
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/google/uuid"
)

// DefaultTopic is the Kafka topic task notifications are published to.
const DefaultTopic = "eagle.task-events"

type EventType string

const (
	TaskAssigned      EventType = "task_assigned"
	TaskStatusChanged EventType = "task_status_changed"
)

// Event is one notification addressed to a single user.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	RecipientID int64       `json:"recipient_id"`
	CompanyID   int64       `json:"company_id"`
	Message     string      `json:"message,omitempty"`
	Task        models.Task `json:"task"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewEvent(eventType EventType, task models.Task, recipientID int64, message string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		RecipientID: recipientID,
		CompanyID:   task.CompanyID,
		Message:     message,
		Task:        task,
		CreatedAt:   time.Now().UTC(),
	}
}

// NopProducer discards events. It is used when no brokers are configured.
type NopProducer struct{}

func (NopProducer) Produce(Event) {}
func (NopProducer) Close()        {}
