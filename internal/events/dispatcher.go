package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// DefaultQueueSize задаёт ёмкость очереди событий по умолчанию.
const DefaultQueueSize = 1024

// ErrQueueFull возвращается, если очередь событий заполнена и событие отброшено.
var ErrQueueFull = errors.New("event queue is full")

// Dispatcher ставит события в ограниченную очередь и публикует их в фоне,
// поэтому медленный брокер не задерживает ответы на погашение.
type Dispatcher struct {
	next    Publisher
	queue   chan model.Transaction
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher создаёт очередь событий поверх публикатора next.
func NewDispatcher(next Publisher, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		next:    next,
		queue:   make(chan model.Transaction, size),
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// PublishRedemptionCompleted ставит событие в очередь не блокируясь.
func (d *Dispatcher) PublishRedemptionCompleted(_ context.Context, tx model.Transaction) error {
	select {
	case d.queue <- tx:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run публикует события из очереди до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Warn("event dispatcher stopped with queued events", zap.Int("dropped", n))
			}
			return
		case tx := <-d.queue:
			d.deliver(ctx, tx)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, tx model.Transaction) {
	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.next.PublishRedemptionCompleted(pubCtx, tx); err != nil {
		d.logger.Warn("publish redemption event failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}

// Close закрывает нижележащий публикатор.
func (d *Dispatcher) Close() {
	d.next.Close()
}
