package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica bet_settled, com a aposta como chave da mensagem.
// Se o envio falhar e houver DLQ configurada, o payload vai para ela.
type KafkaPublisher struct {
	Writer MessageWriter
	DLQ    MessageWriter // opcional
	Topic  string
	log    *zap.Logger
}

func NewKafkaPublisher(w MessageWriter, dlq MessageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{Writer: w, DLQ: dlq, Topic: topic, log: log}
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal bet_settled: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.BetID), Value: b, Time: time.Now()}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		if p.DLQ != nil {
			if derr := p.DLQ.WriteMessages(ctx, msg); derr != nil {
				p.log.Error("bet_settled dlq write failed", zap.String("betId", e.BetID), zap.Error(derr))
			}
		}
		return fmt.Errorf("publish %s: %w", p.Topic, err)
	}
	return nil
}
