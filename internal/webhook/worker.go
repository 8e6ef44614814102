package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robloxar/giftcard-bot/internal/intake"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/observability/metrics"
	"github.com/robloxar/giftcard-bot/internal/questions"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// ErrDispatcherClosed is returned by Enqueue after Shutdown.
var ErrDispatcherClosed = errors.New("webhook: dispatcher closed")

// OrderHandler registers paid orders.
type OrderHandler interface {
	HandleOrderPaid(ctx context.Context, orderID string, force bool) (intake.Action, error)
}

// MessageHandler advances a sale conversation.
type MessageHandler interface {
	HandleBuyerMessage(ctx context.Context, saleID string) error
}

// QuestionHandler answers listing questions.
type QuestionHandler interface {
	HandleQuestion(ctx context.Context, questionID string) (questions.Outcome, error)
}

// messageResolver is the slice of the marketplace client needed to turn a
// message resource into a sale id.
type messageResolver interface {
	SellerID(ctx context.Context) (string, error)
	ResolveMessageResource(ctx context.Context, resource string) (*meli.ResolvedMessage, error)
	GetSellerOrders(ctx context.Context, limit, offset int) ([]meli.Order, error)
}

var _ messageResolver = (*meli.Client)(nil)

const (
	defaultWorkers     = 3
	defaultReceiveWait = 2 // seconds
	defaultReceiveMax  = 5 // messages
)

// DispatcherConfig tunes the consumer pool.
type DispatcherConfig struct {
	Workers          int
	ReceiveWaitSecs  int
	ReceiveBatchSize int
}

// Dispatcher consumes queued notifications and routes them by topic.
type Dispatcher struct {
	queue     queueClient
	orders    OrderHandler
	messages  MessageHandler
	questions QuestionHandler
	market    messageResolver
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
	cfg       DispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher wires the consumer pool and starts it. queue, orders,
// messages and market are required; questions and metrics may be nil.
func NewDispatcher(
	queue queueClient,
	orders OrderHandler,
	messages MessageHandler,
	qs QuestionHandler,
	market messageResolver,
	botMetrics *metrics.BotMetrics,
	logger *logging.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if queue == nil || orders == nil || messages == nil || market == nil {
		panic("webhook: queue, order handler, message handler and market required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ReceiveWaitSecs <= 0 {
		cfg.ReceiveWaitSecs = defaultReceiveWait
	}
	if cfg.ReceiveBatchSize <= 0 {
		cfg.ReceiveBatchSize = defaultReceiveMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:     queue,
		orders:    orders,
		messages:  messages,
		questions: qs,
		market:    market,
		metrics:   botMetrics,
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.runWorker(i + 1)
	}
	return d
}

// Enqueue hands a notification to the consumer pool.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) error {
	if d.ctx.Err() != nil {
		return ErrDispatcherClosed
	}
	body, err := encodeNotification(n)
	if err != nil {
		return err
	}
	if err := d.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("webhook: enqueue notification: %w", err)
	}
	return nil
}

// Shutdown stops the workers and waits for in-flight jobs.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) runWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("webhook worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("webhook worker stopping", "worker_id", workerID)
			return
		default:
		}

		msgs, err := d.queue.Receive(d.ctx, d.cfg.ReceiveBatchSize, d.cfg.ReceiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive webhook jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range msgs {
			d.handleQueueMessage(msg)
		}
	}
}

func (d *Dispatcher) handleQueueMessage(msg queueMessage) {
	defer d.deleteMessage(msg.ReceiptHandle)

	n, err := decodeNotification(msg.Body)
	if err != nil {
		d.logger.Error("failed to decode webhook job", "error", err)
		return
	}

	start := time.Now()
	status := "processed"
	if err := d.Dispatch(d.ctx, n); err != nil {
		status = "error"
		d.logger.Error("webhook dispatch failed",
			"topic", n.Topic,
			"resource", n.Resource,
			"error", err,
		)
	}
	d.metrics.ObserveInbound(n.Topic, status)
	d.metrics.ObserveWebhookLatency(n.Topic, time.Since(start).Seconds())
}

func (d *Dispatcher) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(ctx, receiptHandle); err != nil {
		d.logger.Warn("failed to delete webhook job", "error", err)
	}
}

// Dispatch routes one notification by topic. Exported so the simulate
// endpoint and the poller can inject synthetic notifications synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	switch n.Topic {
	case TopicOrders, TopicOrdersV2:
		action, err := d.orders.HandleOrderPaid(ctx, n.ResourceID(), false)
		if err != nil {
			return err
		}
		d.logger.Info("order webhook handled", "order_id", n.ResourceID(), "action", string(action))
		return nil
	case TopicMessages:
		return d.dispatchMessage(ctx, n)
	case TopicQuestions:
		if d.questions == nil {
			d.logger.Debug("question webhook ignored, no responder configured")
			return nil
		}
		outcome, err := d.questions.HandleQuestion(ctx, n.ResourceID())
		if err != nil {
			return err
		}
		d.logger.Info("question webhook handled", "question_id", n.ResourceID(), "outcome", string(outcome))
		return nil
	default:
		d.logger.Debug("webhook topic ignored", "topic", n.Topic)
		return nil
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, n Notification) error {
	resolved, err := d.market.ResolveMessageResource(ctx, n.Resource)
	if err != nil {
		return fmt.Errorf("webhook: resolve message resource %q: %w", n.Resource, err)
	}

	sellerID, err := d.market.SellerID(ctx)
	if err != nil {
		return fmt.Errorf("webhook: resolve seller: %w", err)
	}
	// Our own outbound messages also fire the webhook.
	if resolved.FromUserID == sellerID {
		d.logger.Debug("own message webhook, skipping", "message_id", resolved.MessageID)
		return nil
	}

	saleID := resolved.SaleID
	if saleID == "" {
		saleID, err = d.findSaleForBuyer(ctx, resolved.FromUserID)
		if err != nil {
			return err
		}
		if saleID == "" {
			d.logger.Warn("message webhook without resolvable sale", "message_id", resolved.MessageID)
			return nil
		}
	}
	return d.messages.HandleBuyerMessage(ctx, saleID)
}

// findSaleForBuyer scans recent paid orders for the buyer behind a message
// whose resource carried no pack reference. Newest match wins.
func (d *Dispatcher) findSaleForBuyer(ctx context.Context, buyerID string) (string, error) {
	orders, err := d.market.GetSellerOrders(ctx, 50, 0)
	if err != nil {
		return "", fmt.Errorf("webhook: scan orders for buyer %s: %w", buyerID, err)
	}
	for i := range orders {
		if orders[i].Status != "paid" {
			continue
		}
		if orders[i].BuyerID() == buyerID {
			return orders[i].SaleID(), nil
		}
	}
	return "", nil
}
