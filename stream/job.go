package stream

import (
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"kafka-graph/graph"
	"kafka-graph/internal/metrics"
)

// ---------------------------------------------------------------------------
// Repartition job
// ---------------------------------------------------------------------------

// job is the long-lived streaming computation. It replays the vertex and
// edge input topics as changelogs and drives the two output sinks:
//
//	vertex branch: records pass through unchanged.
//	edge branch:   records are regrouped by source vertex; every edge update
//	               re-emits the full adjacency of its source.
//
// Partition consumers fan in over channels to one worker goroutine per
// branch, so each sink's producer has a single caller and the edge branch
// owns its adjacency state without locking. The job has no notion of being
// done; it runs until stopped.
type job[K comparable, EV any] struct {
	consumer      sarama.Consumer
	verticesTopic string
	edgesTopic    string

	vertexSink *Sink
	edgeSink   *Sink

	keys     graph.Codec[K]
	edgeKeys graph.EdgeCodec[K]
	edgeVals graph.Codec[EV]
	adjVals  graph.AdjacencyCodec[K, EV]

	// adjacency is owned by the edge worker goroutine.
	adjacency map[K]graph.Adjacency[K, EV]

	vertexCount atomic.Int64
	edgeCount   atomic.Int64

	log  logrus.FieldLogger
	fail func(error)

	vertexCh chan *sarama.ConsumerMessage
	edgeCh   chan *sarama.ConsumerMessage

	pcs      []sarama.PartitionConsumer
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

func newJob[K comparable, EV any](
	consumer sarama.Consumer,
	verticesTopic, edgesTopic string,
	vertexSink, edgeSink *Sink,
	keys graph.Codec[K],
	edgeVals graph.Codec[EV],
	log logrus.FieldLogger,
	fail func(error),
) *job[K, EV] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &job[K, EV]{
		consumer:      consumer,
		verticesTopic: verticesTopic,
		edgesTopic:    edgesTopic,
		vertexSink:    vertexSink,
		edgeSink:      edgeSink,
		keys:          keys,
		edgeKeys:      graph.EdgeCodec[K]{Key: keys},
		edgeVals:      edgeVals,
		adjacency:     make(map[K]graph.Adjacency[K, EV]),
		log:           log,
		fail:          fail,
		vertexCh:      make(chan *sarama.ConsumerMessage, 256),
		edgeCh:        make(chan *sarama.ConsumerMessage, 256),
		done:          make(chan struct{}),
	}
}

// start subscribes every partition of both input topics from the oldest
// offset and launches the branch workers. Subscription errors are returned
// synchronously; nothing is left running on failure.
func (j *job[K, EV]) start() error {
	if err := j.subscribe(j.verticesTopic, j.vertexCh); err != nil {
		j.stop()
		return err
	}
	if err := j.subscribe(j.edgesTopic, j.edgeCh); err != nil {
		j.stop()
		return err
	}

	j.wg.Add(2)
	go j.vertexWorker()
	go j.edgeWorker()
	return nil
}

func (j *job[K, EV]) subscribe(topic string, ch chan<- *sarama.ConsumerMessage) error {
	partitions, err := j.consumer.Partitions(topic)
	if err != nil {
		return pkgerrors.Wrapf(err, "partitions of %s", topic)
	}
	for _, p := range partitions {
		pc, err := j.consumer.ConsumePartition(topic, p, sarama.OffsetOldest)
		if err != nil {
			return pkgerrors.Wrapf(err, "consume %s partition %d", topic, p)
		}
		j.pcs = append(j.pcs, pc)
		j.wg.Add(1)
		go j.forward(pc, ch)
	}
	j.log.WithFields(logrus.Fields{"topic": topic, "partitions": len(partitions)}).
		Info("consuming changelog")
	return nil
}

// forward moves one partition's records onto the branch channel.
func (j *job[K, EV]) forward(pc sarama.PartitionConsumer, ch chan<- *sarama.ConsumerMessage) {
	defer j.wg.Done()
	for {
		select {
		case <-j.done:
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case ch <- msg:
			case <-j.done:
				return
			}
		}
	}
}

func (j *job[K, EV]) vertexWorker() {
	defer j.wg.Done()
	for {
		select {
		case <-j.done:
			return
		case msg := <-j.vertexCh:
			j.vertexCount.Add(1)
			metrics.IncVerticesEmitted()
			j.vertexSink.Emit(msg.Key, msg.Value)
		}
	}
}

func (j *job[K, EV]) edgeWorker() {
	defer j.wg.Done()
	for {
		select {
		case <-j.done:
			return
		case msg := <-j.edgeCh:
			j.edgeCount.Add(1)
			metrics.IncAdjacencyEmitted()
			outKey, outVal, err := j.applyEdge(msg.Key, msg.Value)
			if err != nil {
				// Bookkeeping failures are not swallowed: the job
				// terminates abnormally.
				j.fail(pkgerrors.Wrap(err, "group edges by source"))
				return
			}
			j.edgeSink.Emit(outKey, outVal)
		}
	}
}

// applyEdge folds one edge changelog record into its source's adjacency and
// returns the regrouped record to publish. Re-observed targets overwrite
// their previous value.
func (j *job[K, EV]) applyEdge(keyBytes, valBytes []byte) ([]byte, []byte, error) {
	edge, err := j.edgeKeys.Decode(keyBytes)
	if err != nil {
		return nil, nil, err
	}
	val, err := j.edgeVals.Decode(valBytes)
	if err != nil {
		return nil, nil, err
	}

	adj := j.adjacency[edge.Source]
	if adj == nil {
		adj = make(graph.Adjacency[K, EV])
		j.adjacency[edge.Source] = adj
	}
	adj[edge.Target] = val

	outKey, err := j.keys.Encode(edge.Source)
	if err != nil {
		return nil, nil, err
	}
	outVal, err := j.adjVals.Encode(adj)
	if err != nil {
		return nil, nil, err
	}
	return outKey, outVal, nil
}

// stop tears the job down best-effort: partition consumers first, then the
// workers. Safe to call more than once.
func (j *job[K, EV]) stop() {
	j.doneOnce.Do(func() {
		close(j.done)
		for _, pc := range j.pcs {
			pc.AsyncClose()
		}
		if err := j.consumer.Close(); err != nil {
			j.log.WithError(err).Warn("closing consumer")
		}
	})
	j.wg.Wait()
}

func (j *job[K, EV]) counts() (vertices, edges int64) {
	return j.vertexCount.Load(), j.edgeCount.Load()
}
