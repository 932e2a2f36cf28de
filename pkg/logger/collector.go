package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
	Service        string
}

// AggregatedLogEntry folds repeated warnings and errors from one call site.
// Fields hold the values of the most recent occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload published on every flush.
type LogBatch struct {
	Service string               `json:"service"`
	Host    string               `json:"host"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// LogCollector aggregates log entries by level, message, call site and field names
// and publishes them in periodic batches.
type LogCollector struct {
	config *CollectionConfig
	host   string

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	from    time.Time

	kick      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	host, _ := os.Hostname()

	c := &LogCollector{
		config:  config,
		host:    host,
		entries: make(map[uint64]*AggregatedLogEntry),
		from:    time.Now().UTC(),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := fingerprint(level, message, caller, fields)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Fields = fields
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	full := len(c.entries) >= c.config.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// fingerprint ignores field values so one failing call site stays one entry.
func fingerprint(level, message, caller string, fields map[string]interface{}) uint64 {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	h := fnv.New64a()
	for _, s := range append([]string{level, message, caller}, names...) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (c *LogCollector) run() {
	defer c.wg.Done()
	t := time.NewTicker(c.config.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush()
		case <-c.kick:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

// take swaps out the pending entries under the lock.
func (c *LogCollector) take() *LogBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	b := &LogBatch{
		Service: c.config.Service,
		Host:    c.host,
		From:    c.from,
		To:      now,
		Entries: make([]AggregatedLogEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		b.Entries = append(b.Entries, *e)
	}
	sort.Slice(b.Entries, func(i, j int) bool { return b.Entries[i].FirstSeen.Before(b.Entries[j].FirstSeen) })
	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.from = now
	return b
}

func (c *LogCollector) flush() {
	b := c.take()
	if b == nil || c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, b); err != nil {
		// the logger itself feeds this collector, so report on stderr directly
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(b.Entries), c.config.Topic, err)
	}
}

// Close publishes what is pending and stops the collector.
func (c *LogCollector) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}
