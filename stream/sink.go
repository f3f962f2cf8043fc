package stream

import (
	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// ---------------------------------------------------------------------------
// Record sink
// ---------------------------------------------------------------------------

// producer is the subset of sarama.SyncProducer the sink needs.
type producer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Sink publishes records emitted by the repartition job to one output topic
// and feeds acknowledged offsets into the shared tracker. The synchronous
// send keeps the watermark at most one record behind the broker.
//
// A sink owns its producer; it is driven by a single branch worker and is
// not safe for concurrent use.
type Sink struct {
	topic    string
	producer producer
	tracker  *OffsetTracker
	touch    func()
	log      logrus.FieldLogger
}

func NewSink(topic string, p producer, tracker *OffsetTracker, touch func(), log logrus.FieldLogger) *Sink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if touch == nil {
		touch = func() {}
	}
	return &Sink{topic: topic, producer: p, tracker: tracker, touch: touch, log: log}
}

// Emit publishes one record. Broker-reported send failures are logged and
// skipped: the job keeps processing and the failed record's offset never
// enters the watermark. The write is counted as activity whether or not the
// broker accepts it.
func (s *Sink) Emit(key, value []byte) {
	s.touch()

	msg := &sarama.ProducerMessage{Topic: s.topic, Key: sarama.ByteEncoder(key)}
	if value != nil {
		msg.Value = sarama.ByteEncoder(value)
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		s.log.WithError(err).WithField("topic", s.topic).Error("failed to send record")
		return
	}
	s.tracker.MergeMax(TopicPartition{Topic: s.topic, Partition: partition}, offset)
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	return s.producer.Close()
}
