package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	timeout   time.Duration
}

// NewProducer connects to the brokers, creating topic if needed, and starts
// the background send loop. The initial connection is retried with
// exponential backoff for up to startupTimeout.
func NewProducer(brokers []string, logger *zap.Logger, topic string, startupTimeout time.Duration) (*Producer, error) {
	logger = logger.Named("kafka_producer")

	var conn *kafka.Conn
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = startupTimeout
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = kafka.Dial("tcp", brokers[0])
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("kafka not ready, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	topicConfigs := []kafka.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}

	err = conn.CreateTopics(topicConfigs...)
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	p := newProducer(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		Topic:    topic,
	}, logger)

	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, 1000),
		logger:    logger,
		closeChan: make(chan struct{}),
		timeout:   10 * time.Second,
	}
}

// Produce queues event for delivery without blocking. Events are dropped
// with a warning when the queue is full.
func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.Int64("task_id", event.Task.ID),
		)
	}
}

func (p *Producer) eventLoop() {
	for {
		select {
		case event := <-p.events:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			p.sendEvent(ctx, event)
			cancel()
		case <-p.closeChan:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.Int64("task_id", event.Task.ID),
		)
		return
	}
	// keyed by recipient so each user's events stay ordered
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.RecipientID, 10)),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Int64("task_id", event.Task.ID),
		)
		return
	}
	p.logger.Debug("event produced",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("recipient_id", event.RecipientID),
	)
}

func (p *Producer) Close() {
	close(p.closeChan)
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
