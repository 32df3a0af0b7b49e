// Package events публикует события о погашениях в RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

const (
	// Exchange задаёт topic-обменник событий погашения.
	Exchange = "redemption_events"
	// RoutingKeyCompleted задаёт ключ события о завершённом погашении.
	RoutingKeyCompleted = "redemption.completed"
)

// RedemptionCompleted описывает тело события о завершённом погашении.
type RedemptionCompleted struct {
	TransactionID  string      `json:"transaction_id"`
	UserID         string      `json:"user_id"`
	OfferID        string      `json:"offer_id"`
	VenueID        string      `json:"venue_id"`
	RedemptionCode string      `json:"redemption_code"`
	OriginalAmount model.Money `json:"original_amount"`
	DiscountAmount model.Money `json:"discount_amount"`
	FinalAmount    model.Money `json:"final_amount"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewRedemptionCompleted строит событие по сохранённой транзакции.
func NewRedemptionCompleted(tx model.Transaction) RedemptionCompleted {
	return RedemptionCompleted{
		TransactionID:  tx.ID,
		UserID:         tx.UserID,
		OfferID:        tx.OfferID,
		VenueID:        tx.VenueID,
		RedemptionCode: tx.RedemptionCode,
		OriginalAmount: tx.OriginalAmount,
		DiscountAmount: tx.DiscountAmount,
		FinalAmount:    tx.FinalAmount,
		CreatedAt:      tx.CreatedAt,
	}
}

// Publisher публикует события о погашениях.
type Publisher interface {
	PublishRedemptionCompleted(ctx context.Context, tx model.Transaction) error
	Close()
}

// NopPublisher используется, когда брокер не настроен или недоступен при старте.
type NopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher создаёт публикатор, который только пишет в лог.
func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NopPublisher{logger: logger}
}

// PublishRedemptionCompleted пропускает публикацию.
func (p *NopPublisher) PublishRedemptionCompleted(_ context.Context, tx model.Transaction) error {
	p.logger.Debug("event publish skipped",
		zap.String("routing_key", RoutingKeyCompleted),
		zap.String("transaction_id", tx.ID),
	)
	return nil
}

// Close ничего не делает.
func (p *NopPublisher) Close() {}

// Producer держит соединение и канал RabbitMQ.
type Producer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer подключается к RabbitMQ и объявляет обменник событий.
func NewProducer(amqpURL string, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	p := &Producer{conn: conn, logger: logger}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}

	return p, nil
}

func (p *Producer) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = ch
	return nil
}

// Publish отправляет JSON-тело в обменник событий. При ошибке канал переоткрывается
// и публикация повторяется один раз.
func (p *Producer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel", zap.String("routing_key", routingKey), zap.Error(err))
	if reopenErr := p.reopen(); reopenErr != nil {
		return fmt.Errorf("publish: %w", errors.Join(err, reopenErr))
	}

	if err := p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishRedemptionCompleted публикует событие redemption.completed.
func (p *Producer) PublishRedemptionCompleted(ctx context.Context, tx model.Transaction) error {
	return p.Publish(ctx, RoutingKeyCompleted, NewRedemptionCompleted(tx))
}

// Close закрывает канал и соединение.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
