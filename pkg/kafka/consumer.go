package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	applogger "FinCast/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in one consumer group and hands messages to a
// worker pool. Messages of one partition are handled one at a time, in order.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	msgChan  chan kafka.Message
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	partMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex
}

type partitionKey struct {
	topic     string
	partition int
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "default",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      10,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        10e3, // 10KB
		MaxBytes:        10e6, // 10MB
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		l:         l,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		msgChan:   make(chan kafka.Message, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		partLocks: make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a message handler for its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens a reader per registered topic and launches the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: startOffset(c.cfg.AutoOffsetReset),
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.work()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.read(topic, reader)
	}
	c.l.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops reading and handling, then closes the readers. Buffered messages were
// never committed and are redelivered to the group.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.wait(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.l.Warn("kafka reader close error", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.l.Warn("kafka dlq writer close error", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.l.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		// FetchMessage leaves committing to the worker, after handling
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.l.Error("kafka fetch error", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-c.stopChan:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case c.msgChan <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.msgChan:
			c.handle(msg)
		}
	}
}

func (c *Consumer) handle(km kafka.Message) {
	handler, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(km.Topic, km.Partition)
	pl.Lock()
	defer pl.Unlock()

	stopped, err := c.handleWithRetry(handler, km)
	if stopped {
		// not committed, so the group redelivers it
		return
	}

	result := "ok"
	if err != nil {
		result = "failed"
		c.hook.OnError(context.Background(), km.Topic, km, km.Value, err)
		c.l.Error("kafka message failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Error(err))
		if c.dlq != nil {
			result = "dead_lettered"
			c.deadLetter(km, err)
		}
	}
	consumerHandled.WithLabelValues(km.Topic, result).Inc()
	consumerLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())

	// without a DLQ a failed message stays uncommitted and is redelivered after a rebalance
	if err == nil || c.dlq != nil {
		_ = c.commit(c.readers[km.Topic], km)
	}
}

// handleWithRetry reports stopped when shutdown interrupted the retries.
func (c *Consumer) handleWithRetry(handler MessageHandler, km kafka.Message) (stopped bool, err error) {
	for attempt := 1; ; attempt++ {
		err = c.attempt(handler, km)
		if err == nil || attempt > c.cfg.RetryMax {
			return false, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return true, err
		}
	}
}

// attempt runs the hooks and the handler once, turning a panic into an error.
func (c *Consumer) attempt(handler MessageHandler, km kafka.Message) (err error) {
	ctx, hmsg, data, err := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
		c.hook.AfterHandle(ctx, km.Topic, hmsg, data, err)
	}()
	return handler.Handle(ctx, data)
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(km.Topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, km.Headers...)
	if err := c.dlq.WriteMessages(ctx, kafka.Message{Key: km.Key, Value: km.Value, Headers: headers, Time: time.Now()}); err != nil {
		c.l.Error("kafka dlq write error", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

// commit commits a single message offset with bounded retries.
func (c *Consumer) commit(reader *kafka.Reader, km kafka.Message) error {
	if reader == nil {
		return nil
	}
	const attempts = 3
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil || errors.Is(err, io.ErrClosedPipe) {
			return err
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	k := partitionKey{topic: topic, partition: partition}
	c.partMu.Lock()
	defer c.partMu.Unlock()
	l, ok := c.partLocks[k]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[k] = l
	}
	return l
}

func startOffset(reset string) int64 {
	if reset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min
	for i := 1; i < attempt && exp < max; i++ {
		exp *= 2
	}
	if exp > max {
		exp = max
	}
	// up to 50% jitter
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}
