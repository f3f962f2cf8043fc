package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"kafka-graph/graph"
)

var errTestBroker = errors.New("broker rejected")

// ------------------------------------------------------------
// In-memory consumer
// ------------------------------------------------------------

type fakePartitionConsumer struct {
	sarama.PartitionConsumer
	msgs      chan *sarama.ConsumerMessage
	closeOnce sync.Once
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.msgs }

func (f *fakePartitionConsumer) AsyncClose() {
	f.closeOnce.Do(func() { close(f.msgs) })
}

type fakeConsumer struct {
	sarama.Consumer
	topics map[string][]*fakePartitionConsumer
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{topics: map[string][]*fakePartitionConsumer{}}
}

// addPartition pre-loads one partition's changelog.
func (f *fakeConsumer) addPartition(topic string, msgs ...*sarama.ConsumerMessage) {
	pc := &fakePartitionConsumer{msgs: make(chan *sarama.ConsumerMessage, len(msgs))}
	for _, m := range msgs {
		pc.msgs <- m
	}
	f.topics[topic] = append(f.topics[topic], pc)
}

func (f *fakeConsumer) Partitions(topic string) ([]int32, error) {
	out := make([]int32, len(f.topics[topic]))
	for i := range out {
		out[i] = int32(i)
	}
	return out, nil
}

func (f *fakeConsumer) ConsumePartition(topic string, partition int32, _ int64) (sarama.PartitionConsumer, error) {
	return f.topics[topic][partition], nil
}

func (f *fakeConsumer) Close() error { return nil }

// ------------------------------------------------------------
// Helpers
// ------------------------------------------------------------

func vertexMsg(t *testing.T, key int64, value float64) *sarama.ConsumerMessage {
	t.Helper()
	k, err := graph.LongCodec{}.Encode(key)
	require.NoError(t, err)
	v, err := graph.DoubleCodec{}.Encode(value)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "vertices", Key: k, Value: v}
}

func edgeMsg(t *testing.T, source, target int64, value float64) *sarama.ConsumerMessage {
	t.Helper()
	k, v := encodeEdge(t, source, target, value)
	return &sarama.ConsumerMessage{Topic: "edges", Key: k, Value: v}
}

func testPipelineConfig() Config {
	return Config{
		VerticesTopic:     "vertices",
		EdgesTopic:        "edges",
		VerticesOutTopic:  "vertices-out",
		EdgesOutTopic:     "edges-grouped",
		NumPartitions:     1,
		ReplicationFactor: 1,
		PollInterval:      5 * time.Millisecond,
		IdleThreshold:     30 * time.Millisecond,
	}
}

func producerKey(t *testing.T, msg *sarama.ProducerMessage) int64 {
	t.Helper()
	b, err := msg.Key.Encode()
	require.NoError(t, err)
	k, err := graph.LongCodec{}.Decode(b)
	require.NoError(t, err)
	return k
}

// ------------------------------------------------------------
// End to end
// ------------------------------------------------------------

func TestPipeline_EndToEnd(t *testing.T) {
	consumer := newFakeConsumer()
	consumer.addPartition("vertices", vertexMsg(t, 1, 10), vertexMsg(t, 2, 20))
	consumer.addPartition("edges", edgeMsg(t, 1, 2, 5))

	vertexProd := newFakeProducer()
	edgeProd := newFakeProducer()

	res, err := runPipeline[int64, float64](consumer, vertexProd, edgeProd,
		testPipelineConfig(), graph.LongCodec{}, graph.DoubleCodec{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wm, err := res.Wait(ctx)
	require.NoError(t, err)

	// Vertex branch passed both records through unchanged.
	require.Len(t, vertexProd.sent, 2)
	values := map[int64]float64{}
	for _, msg := range vertexProd.sent {
		b, err := msg.Value.Encode()
		require.NoError(t, err)
		v, err := graph.DoubleCodec{}.Decode(b)
		require.NoError(t, err)
		values[producerKey(t, msg)] = v
	}
	require.Equal(t, map[int64]float64{1: 10, 2: 20}, values)

	// Edge branch grouped the single edge under its source.
	require.Len(t, edgeProd.sent, 1)
	require.Equal(t, int64(1), producerKey(t, edgeProd.sent[0]))
	b, err := edgeProd.sent[0].Value.Encode()
	require.NoError(t, err)
	require.Equal(t, graph.Adjacency[int64, float64]{2: 5}, decodeAdjacency(t, b))

	// Watermark: two vertex writes reach offset 1, one grouped write offset 0.
	require.Equal(t, Watermark{
		{Topic: "vertices-out", Partition: 0}:  1,
		{Topic: "edges-grouped", Partition: 0}: 0,
	}, wm)

	// Teardown happened.
	require.True(t, vertexProd.closed)
	require.True(t, edgeProd.closed)
}

func TestPipeline_ResolvesWithinIdleWindow(t *testing.T) {
	consumer := newFakeConsumer()
	consumer.addPartition("vertices", vertexMsg(t, 1, 10))
	consumer.addPartition("edges")

	cfg := testPipelineConfig()
	res, err := runPipeline[int64, float64](consumer, newFakeProducer(), newFakeProducer(),
		cfg, graph.LongCodec{}, graph.DoubleCodec{})
	require.NoError(t, err)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = res.Wait(ctx)
	require.NoError(t, err)

	// Idle threshold plus a few poll periods is plenty.
	require.Less(t, time.Since(start), cfg.IdleThreshold+10*cfg.PollInterval)
}

func TestPipeline_BadEdgeRecordFailsResult(t *testing.T) {
	consumer := newFakeConsumer()
	consumer.addPartition("vertices")
	consumer.addPartition("edges", &sarama.ConsumerMessage{Topic: "edges", Key: []byte{0xff}})

	res, err := runPipeline[int64, float64](consumer, newFakeProducer(), newFakeProducer(),
		testPipelineConfig(), graph.LongCodec{}, graph.DoubleCodec{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = res.Wait(ctx)
	require.Error(t, err)
}

func TestPipeline_SendErrorsDoNotFailRun(t *testing.T) {
	consumer := newFakeConsumer()
	consumer.addPartition("vertices", vertexMsg(t, 1, 10), vertexMsg(t, 2, 20))
	consumer.addPartition("edges")

	vertexProd := newFakeProducer()
	vertexProd.sendErr = errTestBroker

	res, err := runPipeline[int64, float64](consumer, vertexProd, newFakeProducer(),
		testPipelineConfig(), graph.LongCodec{}, graph.DoubleCodec{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wm, err := res.Wait(ctx)
	require.NoError(t, err)

	// Nothing was acknowledged, so nothing entered the watermark.
	require.Empty(t, wm)
}
