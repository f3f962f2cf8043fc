package load

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ---------------------------------------------------------------------------
// Topic provisioning
// ---------------------------------------------------------------------------

// TopicConfig describes one target topic.
type TopicConfig struct {
	Topic             string
	NumPartitions     int
	ReplicationFactor int
}

// EnsureTopic creates the topic if it does not exist. An existing topic is
// left untouched, whatever its settings; the broker rejects the create and we
// treat that as success. Used on the ingest path, which already holds a
// kafka-go writer connection.
func EnsureTopic(ctx context.Context, brokers []string, cfg TopicConfig, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: 10 * time.Second}

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             cfg.Topic,
			NumPartitions:     cfg.NumPartitions,
			ReplicationFactor: cfg.ReplicationFactor,
		}},
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "create topic %s", cfg.Topic)
	}

	for topic, topicErr := range resp.Errors {
		if topicErr == nil {
			continue
		}
		if errors.Is(topicErr, kafka.TopicAlreadyExists) {
			log.WithField("topic", topic).Debug("topic already exists")
			continue
		}
		return pkgerrors.Wrapf(topicErr, "create topic %s", topic)
	}

	log.WithFields(logrus.Fields{
		"topic":       cfg.Topic,
		"partitions":  cfg.NumPartitions,
		"replication": cfg.ReplicationFactor,
	}).Info("topic ready")
	return nil
}

// EnsureTopicsAdmin creates the given topics through a cluster admin
// connection. Same already-exists contract as EnsureTopic; used on the
// repartition path, which already holds sarama clients.
func EnsureTopicsAdmin(admin sarama.ClusterAdmin, cfgs ...TopicConfig) error {
	for _, cfg := range cfgs {
		err := admin.CreateTopic(cfg.Topic, &sarama.TopicDetail{
			NumPartitions:     int32(cfg.NumPartitions),
			ReplicationFactor: int16(cfg.ReplicationFactor),
		}, false)
		if err != nil && !topicExistsErr(err) {
			return pkgerrors.Wrapf(err, "create topic %s", cfg.Topic)
		}
	}
	return nil
}

func topicExistsErr(err error) bool {
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return true
	}
	var te *sarama.TopicError
	return errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists
}
