package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// Rfc3339Milli is like time.RFC3339Nano, but with millisecond precision
	Rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrQueueNotFound     = errors.New("queue not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Queue is a durable store of messages grouped into named queues.
type Queue interface {
	CreateQueue(ctx context.Context, queueName string) error

	QueueExists(ctx context.Context, queueName string) bool

	// DeleteQueue archives the queue and its messages
	DeleteQueue(ctx context.Context, queueName string) error

	// TruncateQueue hard deletes the queue and its messages
	TruncateQueue(ctx context.Context, queueName string) error

	// Push puts a message on the queue named by its QueueId
	Push(ctx context.Context, message *Message) error

	// Pop claims the oldest visible scheduled message across all queues and
	// marks it active. It returns nil, nil when there is nothing to claim.
	Pop(ctx context.Context) (*Message, error)

	UpdateMessageStatus(ctx context.Context, id string, status Status) (*Message, error)

	// DeleteMessage moves a message to the archive
	DeleteMessage(ctx context.Context, queueName string, id string) error

	GetArchivedMessages(ctx context.Context, queueName string) ([]Message, error)

	Close() error
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) level() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.level() >= 0 }

// Final reports whether no further transition is allowed out of s.
func (s Status) Final() bool { return s.level() == 2 }

// CheckTransition returns an error wrapping ErrInvalidTransition unless a
// message may move from s to next. Statuses only move forward; writing the
// current status again is allowed.
func (s Status) CheckTransition(next Status) error {
	if !s.Valid() || !next.Valid() {
		return fmt.Errorf("%w: unknown status in %q -> %q", ErrInvalidTransition, s, next)
	}

	if s == next {
		return nil
	}

	if next.level() <= s.level() {
		return fmt.Errorf("%w: message is already in the %s state", ErrInvalidTransition, s)
	}

	return nil
}

type Message struct {
	Id         string `json:"id" db:"id"`
	Status     Status `json:"status" db:"status"`
	Message    []byte `json:"message" db:"message"`
	QueueId    string `json:"queue_id" db:"queue_id"`
	VisibleAt  string `json:"visible_at" db:"visible_at"`
	CreatedAt  string `json:"created_at" db:"created_at"`
	UpdatedAt  string `json:"updated_at" db:"updated_at"`
	ArchivedAt string `json:"archived_at" db:"archived_at"`
}

// NewMessage builds a scheduled message for queueName that becomes visible
// once delay has elapsed.
func NewMessage(queueName string, payload []byte, delay time.Duration) *Message {
	return &Message{
		Id:        ulid.Make().String(),
		Status:    StatusScheduled,
		Message:   payload,
		QueueId:   queueName,
		VisibleAt: time.Now().Add(delay).UTC().Format(Rfc3339Milli),
	}
}

func (m *Message) VisibleTime() time.Time {
	t, err := time.Parse(Rfc3339Milli, m.VisibleAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

type LiteQueue struct {
	Id        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
}

type ArchivedLiteQueue struct {
	Id         string `db:"id"`
	Name       string `db:"name"`
	CreatedAt  string `db:"created_at"`
	ArchivedAt string `db:"archived_at"`
}
