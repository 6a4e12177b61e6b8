package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"report-scoring-pipeline/metrics"

	"github.com/streadway/amqp"
)

// Message represents a received RabbitMQ message.
type Message struct {
	Body        []byte
	RoutingKey  string
	Exchange    string
	ContentType string
	Timestamp   time.Time
	DeliveryTag uint64
}

// UnmarshalTo unmarshals the message body into the provided interface.
func (m *Message) UnmarshalTo(v any) error {
	return json.Unmarshal(m.Body, v)
}

// CallbackFunc processes a message. Return:
// - nil on success (will Ack)
// - Permanent(err) for permanent failure (will Nack requeue=false)
// - any other error for transient failure (will retry via the retry exchange)
type CallbackFunc func(msg *Message) error

const (
	defaultConcurrency = 10
	envConcurrency     = "RABBITMQ_CONCURRENCY"

	defaultMaxRetries = 5
	envMaxRetries     = "RABBITMQ_MAX_RETRIES"

	defaultRetryExchangePrefix = "ecowatch-retry."
	envRetryExchangePrefix     = "RABBITMQ_RETRY_EXCHANGE_PREFIX"
	retryCountHeaderKey        = "x-ecowatch-retry-count"
)

func intFromEnv(key string, fallback, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
		log.Printf("rabbitmq: invalid %s=%q, using default=%d", key, v, fallback)
	}
	return fallback
}

func retryExchangeFor(queue string) string {
	prefix := os.Getenv(envRetryExchangePrefix)
	if prefix == "" {
		prefix = defaultRetryExchangePrefix
	}
	return prefix + queue
}

func retryCountFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	v, ok := headers[retryCountHeaderKey]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int:
		if t > 0 {
			return t
		}
	case int32:
		if t > 0 {
			return int(t)
		}
	case int64:
		if t > 0 {
			return int(t)
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func withRetryCountHeader(headers amqp.Table, next int) amqp.Table {
	out := amqp.Table{}
	for k, v := range headers {
		out[k] = v
	}
	out[retryCountHeaderKey] = int32(next)
	return out
}

// Subscriber consumes reports from a durable queue bound to a direct
// exchange, dispatching deliveries to per-routing-key callbacks through a
// bounded worker pool.
type Subscriber struct {
	amqpURL  string
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	prefetch int

	// opMu serializes amqp operations on s.channel since amqp.Channel is not safe for concurrent use.
	opMu sync.Mutex

	startOnce sync.Once
	done      chan struct{}

	maxRetries int

	connected     atomic.Bool
	lastConnectNs atomic.Int64
	lastError     atomic.Value // string
}

// NewSubscriber creates a subscriber and establishes the initial connection
// so callers fail fast if RabbitMQ is unreachable.
func NewSubscriber(amqpURL, exchangeName, queueName string, prefetchCount int) (*Subscriber, error) {
	s := &Subscriber{
		amqpURL:    amqpURL,
		exchange:   exchangeName,
		queue:      queueName,
		prefetch:   prefetchCount,
		done:       make(chan struct{}),
		maxRetries: intFromEnv(envMaxRetries, defaultMaxRetries, 0),
	}

	s.opMu.Lock()
	err := s.reconnectLocked()
	s.opMu.Unlock()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Subscriber) setLastError(err error) {
	if err == nil {
		s.lastError.Store("")
		return
	}
	s.lastError.Store(err.Error())
}

func (s *Subscriber) markDisconnected(err error) {
	s.connected.Store(false)
	metrics.RabbitMQConnected.Set(0)
	s.setLastError(err)
}

// reconnectLocked tears down any existing channel/connection and recreates
// them. Caller must hold s.opMu.
func (s *Subscriber) reconnectLocked() error {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	conn, err := amqp.Dial(s.amqpURL)
	if err != nil {
		s.markDisconnected(err)
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		s.markDisconnected(err)
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(s.exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		s.markDisconnected(err)
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(s.queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		s.markDisconnected(err)
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	s.queue = q.Name

	s.conn = conn
	s.channel = ch
	s.connected.Store(true)
	metrics.RabbitMQConnected.Set(1)
	s.lastConnectNs.Store(time.Now().UnixNano())
	metrics.RabbitMQLastConnectSeconds.Set(metrics.NowUnixSeconds())
	s.setLastError(nil)
	return nil
}

// Start begins consuming messages and dispatching them to the routing key
// callbacks. It returns immediately; consumption runs in background
// goroutines until Close.
func (s *Subscriber) Start(routingKeyCallbacks map[string]CallbackFunc) error {
	s.startOnce.Do(func() {
		workers := intFromEnv(envConcurrency, defaultConcurrency, 1)
		if s.prefetch > 0 && workers > s.prefetch {
			workers = s.prefetch
		}

		jobs := make(chan amqp.Delivery, workers)

		for i := 0; i < workers; i++ {
			workerID := i + 1
			go func() {
				for delivery := range jobs {
					s.handleDelivery(workerID, delivery, routingKeyCallbacks)
				}
			}()
		}

		go s.consumeLoop(jobs, workers, routingKeyCallbacks)
	})
	return nil
}

// handleDelivery runs the callback for one delivery and acks, nacks or
// republishes it to the retry exchange depending on the outcome.
func (s *Subscriber) handleDelivery(workerID int, delivery amqp.Delivery, callbacks map[string]CallbackFunc) {
	startedAt := time.Now()
	metrics.RabbitMQLastDeliverySeconds.Set(float64(startedAt.Unix()))
	metrics.WorkerInFlight.Inc()
	defer metrics.WorkerInFlight.Dec()

	finish := func(result, action string, err error) {
		metrics.ProcessedTotal.WithLabelValues(result).Inc()
		metrics.ProcessingDurationSeconds.WithLabelValues(result).Observe(time.Since(startedAt).Seconds())
		log.Printf(
			"rabbitmq worker_finish worker_id=%d routing_key=%s delivery_tag=%d duration_ms=%d result=%s action=%s err=%v",
			workerID, delivery.RoutingKey, delivery.DeliveryTag, time.Since(startedAt).Milliseconds(), result, action, err,
		)
	}

	callback, exists := callbacks[delivery.RoutingKey]
	if !exists {
		s.nack(delivery, false)
		finish("permanent_error", "nack", fmt.Errorf("no callback for routing key %q", delivery.RoutingKey))
		return
	}

	var callbackErr error
	var panicVal any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicVal = r
			}
		}()
		callbackErr = callback(&Message{
			Body:        delivery.Body,
			RoutingKey:  delivery.RoutingKey,
			Exchange:    delivery.Exchange,
			ContentType: delivery.ContentType,
			Timestamp:   delivery.Timestamp,
			DeliveryTag: delivery.DeliveryTag,
		})
	}()

	switch {
	case panicVal != nil:
		// Treat panics as permanent: a poison message will panic again.
		s.nack(delivery, false)
		finish("panic", "nack", fmt.Errorf("panic: %v", panicVal))

	case callbackErr == nil:
		s.ack(delivery)
		finish("success", "ack", nil)

	case isPermanent(callbackErr):
		s.nack(delivery, false)
		finish("permanent_error", "nack", callbackErr)

	default:
		attempts := retryCountFromHeaders(delivery.Headers)
		if attempts >= s.maxRetries {
			s.nack(delivery, false)
			finish("transient_error", "drop", fmt.Errorf("retries exhausted after %d attempts: %w", attempts, callbackErr))
			return
		}
		if err := s.republishForRetry(delivery, attempts+1); err != nil {
			metrics.RetryPublishErrorTotal.Inc()
			// Fall back to broker-level requeue so the message is not lost.
			s.nack(delivery, true)
			finish("transient_error", "requeue", fmt.Errorf("retry publish failed: %v (original: %w)", err, callbackErr))
			return
		}
		s.ack(delivery)
		finish("transient_error", "retry", callbackErr)
	}
}

// republishForRetry publishes the delivery to the retry exchange with an
// incremented retry-count header. Ack of the original happens separately to
// avoid tight redelivery loops.
func (s *Subscriber) republishForRetry(delivery amqp.Delivery, attempt int) error {
	pub := amqp.Publishing{
		Headers:      withRetryCountHeader(delivery.Headers, attempt),
		ContentType:  delivery.ContentType,
		Body:         delivery.Body,
		DeliveryMode: delivery.DeliveryMode,
		Timestamp:    delivery.Timestamp,
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.channel == nil {
		return fmt.Errorf("channel is not open")
	}
	return s.channel.Publish(retryExchangeFor(s.queue), delivery.RoutingKey, false, false, pub)
}

func (s *Subscriber) ack(delivery amqp.Delivery) {
	s.opMu.Lock()
	err := delivery.Ack(false)
	s.opMu.Unlock()
	if err != nil {
		metrics.AckErrorTotal.Inc()
		log.Printf("rabbitmq ack failed delivery_tag=%d err=%v", delivery.DeliveryTag, err)
	}
}

func (s *Subscriber) nack(delivery amqp.Delivery, requeue bool) {
	s.opMu.Lock()
	err := delivery.Nack(false, requeue)
	s.opMu.Unlock()
	if err != nil {
		metrics.NackErrorTotal.Inc()
		log.Printf("rabbitmq nack failed delivery_tag=%d requeue=%t err=%v", delivery.DeliveryTag, requeue, err)
	}
}

// consumeLoop keeps a consumer alive across broker restarts: when the
// delivery channel closes it reconnects with exponential backoff, re-applies
// QoS and bindings, and resumes.
func (s *Subscriber) consumeLoop(jobs chan<- amqp.Delivery, workers int, callbacks map[string]CallbackFunc) {
	backoff := 1 * time.Second
	sleepAndGrow := func() {
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}

	for {
		select {
		case <-s.done:
			close(jobs)
			return
		default:
		}

		msgs, err := s.openConsumer(workers, callbacks)
		if err != nil {
			log.Printf("rabbitmq consumer setup failed queue=%s exchange=%s err=%v", s.queue, s.exchange, err)
			sleepAndGrow()
			continue
		}

		log.Printf("rabbitmq consuming exchange=%s queue=%s workers=%d prefetch=%d", s.exchange, s.queue, workers, workers)
		backoff = 1 * time.Second

		for {
			select {
			case <-s.done:
				close(jobs)
				return
			case delivery, ok := <-msgs:
				if !ok {
					s.markDisconnected(fmt.Errorf("delivery channel closed"))
					log.Printf("rabbitmq delivery channel closed queue=%s exchange=%s; reconnecting", s.queue, s.exchange)
					sleepAndGrow()
					goto Reconnect
				}
				jobs <- delivery
			}
		}

	Reconnect:
	}
}

// openConsumer (re)connects if needed, applies QoS, binds the queue for every
// routing key and starts a consumer.
func (s *Subscriber) openConsumer(workers int, callbacks map[string]CallbackFunc) (<-chan amqp.Delivery, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.conn == nil || s.conn.IsClosed() || s.channel == nil {
		if err := s.reconnectLocked(); err != nil {
			return nil, err
		}
	}

	if err := s.channel.Qos(workers, 0, false); err != nil {
		s.markDisconnected(err)
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	for routingKey := range callbacks {
		if err := s.channel.QueueBind(s.queue, routingKey, s.exchange, false, nil); err != nil {
			s.markDisconnected(err)
			return nil, fmt.Errorf("failed to bind routing key %q: %w", routingKey, err)
		}
	}

	msgs, err := s.channel.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		s.markDisconnected(err)
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// Close stops consumption and closes the subscriber connection and channel.
func (s *Subscriber) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	var err error
	if s.channel != nil {
		if channelErr := s.channel.Close(); channelErr != nil {
			log.Printf("Failed to close channel: %v", channelErr)
			err = channelErr
		}
		s.channel = nil
	}
	if s.conn != nil {
		if connErr := s.conn.Close(); connErr != nil {
			log.Printf("Failed to close connection: %v", connErr)
			if err == nil {
				err = connErr
			}
		}
		s.conn = nil
	}

	s.connected.Store(false)
	metrics.RabbitMQConnected.Set(0)
	return err
}

// IsConnected indicates if the subscriber is currently connected (best-effort).
func (s *Subscriber) IsConnected() bool {
	if s.conn == nil || s.channel == nil || s.conn.IsClosed() {
		return false
	}
	return s.connected.Load()
}

// LastConnectAt returns the last time the subscriber successfully (re)connected.
func (s *Subscriber) LastConnectAt() time.Time {
	ns := s.lastConnectNs.Load()
	if ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastError returns the last connection/consumption error string (best-effort).
func (s *Subscriber) LastError() string {
	if v, ok := s.lastError.Load().(string); ok {
		return v
	}
	return ""
}
