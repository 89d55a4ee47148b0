// Package ingest publishes driver telemetry to Kafka for downstream
// consumers (analytics, heatmaps). Publishing is best effort and never
// blocks the location update path for long.
package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// LocationEvent is the wire shape of one driver ping.
type LocationEvent struct {
	DriverID uint      `json:"driver_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Tier     string    `json:"tier"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

// PublishLocation keys messages by driver id so each driver's pings stay
// ordered within a partition.
func (k *KafkaProducer) PublishLocation(ev LocationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(ev)
	key := strconv.FormatUint(uint64(ev.DriverID), 10)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
