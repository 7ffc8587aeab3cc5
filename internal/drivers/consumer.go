package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"towfleet/internal/events"
	"towfleet/pkg/kafka"
)

// Consumer subscribes a handler to a topic. Implemented by pkg/kafka.
type Consumer interface {
	Subscribe(ctx context.Context, topic, groupID string, handler func([]byte) error)
}

// StartCompletedConsumer credits drivers for finished jobs and frees their
// profiles. Triggered by tow.completed events so job accounting stays off
// the request critical path.
func (s *Service) StartCompletedConsumer(ctx context.Context, consumer Consumer) {
	consumer.Subscribe(ctx, kafka.TopicTowCompleted, "towfleet-driver-stats", func(msg []byte) error {
		var evt events.TowCompletedEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			return fmt.Errorf("decode completed event: %w", err)
		}
		if evt.DriverID == "" {
			return nil
		}
		if err := s.CompleteJob(ctx, evt.DriverID); err != nil {
			return err
		}
		log.Printf("[drivers] credited completed job to driver %s", evt.DriverID)
		return nil
	})
}
