// Package push передает созданные уведомления в очередь RabbitMQ, откуда их
// забирает отправщик push-уведомлений.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Message задание на отправку push-уведомления
type Message struct {
	NotificationID string    `json:"notification_id"`
	RecipientID    string    `json:"recipient_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	dlq := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", dlq, err)
	}

	// отклоненные отправщиком задания уходят в DLQ
	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NotificationCreated публикует задание по только что записанному уведомлению
func (p *Publisher) NotificationCreated(ctx context.Context, n model.Notification) error {
	body, err := Encode(n)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Encode тело сообщения очереди
func Encode(n model.Notification) ([]byte, error) {
	body, err := json.Marshal(Message{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Body:           n.Body,
		EntityType:     n.EntityType,
		EntityID:       n.EntityID,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push message: %w", err)
	}
	return body, nil
}

// Nop используется, когда RabbitMQ не настроен
type Nop struct{}

func (Nop) NotificationCreated(ctx context.Context, n model.Notification) error {
	return nil
}

func (Nop) Close() error {
	return nil
}
