package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ensureTopic creates the topic when the broker does not already carry it.
// Partition reads are retried; a freshly started broker can take a few
// seconds to answer metadata requests.
func ensureTopic(conn *kafka.Conn, topic string, partitions, replicationFactor int, log *slog.Logger) error {
	var existing []kafka.Partition
	var err error

	for attempt := 1; attempt <= 5; attempt++ {
		existing, err = conn.ReadPartitions(topic)
		if err == nil {
			break
		}
		log.Warn("Failed to read topic partitions, retrying",
			"topic", topic, "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}

	if len(existing) > 0 {
		log.Info("Kafka topic present", "topic", topic, "partitions", len(existing))
		return nil
	}

	if partitions <= 0 {
		partitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}

	createErr := conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if createErr != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, createErr)
	}

	log.Info("Created Kafka topic", "topic", topic, "partitions", partitions)
	return nil
}
