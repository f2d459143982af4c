package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/supplyhub-backend/pkg/config"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier queues events on a bounded channel drained by one goroutine
// that writes to Kafka. A full queue drops the event with a warning.
type KafkaNotifier struct {
	writer  messageWriter
	inbox   chan kafka.Message
	done    chan struct{}
	log     *logger.Logger
	started atomic.Bool

	mu     sync.RWMutex
	closed bool
}

// NewKafkaNotifier builds a notifier publishing to cfg.Topic. Call Start
// before use and Close on shutdown.
func NewKafkaNotifier(cfg config.KafkaConfig, log *logger.Logger) (*KafkaNotifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTime,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(writer, cfg.BufferSize, log), nil
}

func newKafkaNotifier(writer messageWriter, buffer int, log *logger.Logger) *KafkaNotifier {
	if buffer <= 0 {
		buffer = 1
	}
	return &KafkaNotifier{
		writer: writer,
		inbox:  make(chan kafka.Message, buffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Start launches the drain loop. Cancelling ctx flushes what is queued and
// closes the writer.
func (k *KafkaNotifier) Start(ctx context.Context) {
	if !k.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(k.done)
		for {
			select {
			case <-ctx.Done():
				k.shutdown()
				for msg := range k.inbox {
					k.write(msg)
				}
				_ = k.writer.Close()
				return
			case msg, ok := <-k.inbox:
				if !ok {
					_ = k.writer.Close()
					return
				}
				k.write(msg)
			}
		}
	}()
}

func (k *KafkaNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		k.log.Error(ctx, "encode notification", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.RecipientID.String()),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type.String())},
		},
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		k.log.Warn(ctx, "notification dropped: notifier closed")
		return
	}
	select {
	case k.inbox <- msg:
	default:
		k.log.Warn(k.log.WithField(ctx, "notification_type", event.Type.String()), "notification dropped: queue full")
	}
}

// Close stops accepting events and waits for the queue to drain.
func (k *KafkaNotifier) Close() {
	k.shutdown()
	if k.started.Load() {
		<-k.done
	}
}

func (k *KafkaNotifier) shutdown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	close(k.inbox)
}

func (k *KafkaNotifier) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Warn(k.log.WithField(ctx, "error", err.Error()), "notification delivery failed")
	}
}
