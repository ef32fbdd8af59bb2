package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// PollTimeout bounds each fetch so cancellation is noticed. Zero means 5s.
	PollTimeout time.Duration
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes a topic in a consumer group. The message key names
// the tag when the payload has no tag field. Offsets are committed after a
// reading is delivered or skipped.
type KafkaSource struct {
	cfg    KafkaConfig
	reader messageReader
	dec    Decoder
	log    *slog.Logger
	poll   time.Duration
}

func NewKafkaSource(cfg KafkaConfig, log *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		cfg.GroupID = "looptune"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaSource(cfg, reader, log), nil
}

func newKafkaSource(cfg KafkaConfig, reader messageReader, log *slog.Logger) *KafkaSource {
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &KafkaSource{cfg: cfg, reader: reader, log: componentLog(log, "acquire.kafka"), poll: poll}
}

func (s *KafkaSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

func (s *KafkaSource) Run(ctx context.Context, out chan<- Reading) error {
	s.log.Info("kafka_source_started",
		slog.String("topic", s.cfg.Topic),
		slog.String("group", s.cfg.GroupID),
		slog.String("brokers", strings.Join(s.cfg.Brokers, ",")),
		slog.Duration("pollTimeout", s.poll),
	)
	defer s.log.Info("kafka_source_stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.poll)
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			s.log.Error("kafka_fetch_error", slog.Any("err", err))
			continue
		}

		r, err := s.dec.Decode(msg.Value, string(msg.Key))
		if err != nil {
			s.log.Warn("kafka_decode_error", slog.Any("err", err), slog.Int64("offset", msg.Offset))
		} else if !deliver(ctx, out, r) {
			return ctx.Err()
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, s.poll)
		if err := s.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				s.log.Error("kafka_commit_error", slog.Any("err", err))
			}
		}
		commitCancel()
	}
}
