package stream

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"kafka-graph/graph"
	"kafka-graph/load"
)

// Defaults for the completion heuristic.
const (
	DefaultPollInterval  = time.Second
	DefaultIdleThreshold = 10 * time.Second
)

// Config describes one repartition run.
type Config struct {
	Brokers []string

	// Input topics: the vertex changelog and the edge changelog keyed by
	// (source, target).
	VerticesTopic string
	EdgesTopic    string

	// Output topics, created before the job starts.
	VerticesOutTopic  string
	EdgesOutTopic     string
	NumPartitions     int
	ReplicationFactor int

	// Completion heuristic knobs; zero values take the defaults above.
	PollInterval  time.Duration
	IdleThreshold time.Duration

	Logger logrus.FieldLogger
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c Config) poll() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c Config) idle() time.Duration {
	if c.IdleThreshold > 0 {
		return c.IdleThreshold
	}
	return DefaultIdleThreshold
}

// ---------------------------------------------------------------------------
// Result future
// ---------------------------------------------------------------------------

// Result is the pipeline's asynchronous outcome: the write watermark once
// the completion detector fires, or the error that terminated the job.
type Result struct {
	done chan struct{}
	once sync.Once

	wm  Watermark
	err error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Done is closed when the pipeline has resolved, successfully or not.
func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until resolution or context cancellation. Cancelling the
// context abandons the wait only; the pipeline itself keeps running.
func (r *Result) Wait(ctx context.Context) (Watermark, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.wm, r.err
	}
}

func (r *Result) resolve(wm Watermark) {
	r.once.Do(func() {
		r.wm = wm
		close(r.done)
	})
}

func (r *Result) fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// GroupEdgesBySource starts the repartition pipeline: it provisions the two
// output topics, re-emits the vertex changelog unchanged, regroups the edge
// changelog by source vertex, and watches for the write stream to go idle.
// It returns immediately; the Result resolves with the final per-partition
// watermark once no record has flowed for the idle threshold.
func GroupEdgesBySource[K comparable, EV any](
	cfg Config,
	keys graph.Codec[K],
	edgeVals graph.Codec[EV],
) (*Result, error) {
	log := cfg.logger()

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, saramaConfig("graph-repartition-admin"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect cluster admin")
	}
	err = load.EnsureTopicsAdmin(admin,
		load.TopicConfig{Topic: cfg.VerticesOutTopic, NumPartitions: cfg.NumPartitions, ReplicationFactor: cfg.ReplicationFactor},
		load.TopicConfig{Topic: cfg.EdgesOutTopic, NumPartitions: cfg.NumPartitions, ReplicationFactor: cfg.ReplicationFactor},
	)
	if closeErr := admin.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("closing cluster admin")
	}
	if err != nil {
		return nil, err
	}

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaConfig("graph-repartition-consumer"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect consumer")
	}
	vertexProd, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig("graph-vertex-producer"))
	if err != nil {
		consumer.Close()
		return nil, pkgerrors.Wrap(err, "connect vertex producer")
	}
	edgeProd, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig("graph-edge-producer"))
	if err != nil {
		consumer.Close()
		vertexProd.Close()
		return nil, pkgerrors.Wrap(err, "connect edge producer")
	}

	return runPipeline(consumer, vertexProd, edgeProd, cfg, keys, edgeVals)
}

// runPipeline wires the tracker, sinks, job and detector around injected
// clients and starts everything.
func runPipeline[K comparable, EV any](
	consumer sarama.Consumer,
	vertexProd, edgeProd producer,
	cfg Config,
	keys graph.Codec[K],
	edgeVals graph.Codec[EV],
) (*Result, error) {
	log := cfg.logger()
	tracker := NewOffsetTracker()
	res := newResult()
	det := newDetector(cfg.poll(), cfg.idle())

	vertexSink := NewSink(cfg.VerticesOutTopic, vertexProd, tracker, det.Touch, log)
	edgeSink := NewSink(cfg.EdgesOutTopic, edgeProd, tracker, det.Touch, log)

	var j *job[K, EV]
	fail := func(err error) {
		res.fail(err)
		det.stop()
		// Teardown happens off the failing worker's goroutine; stop waits
		// for the workers to drain.
		go func() {
			j.stop()
			closeSinks(log, vertexSink, edgeSink)
		}()
	}
	j = newJob(consumer, cfg.VerticesTopic, cfg.EdgesTopic,
		vertexSink, edgeSink, keys, edgeVals, log, fail)

	if err := j.start(); err != nil {
		closeSinks(log, vertexSink, edgeSink)
		return nil, err
	}

	go det.watch(func() {
		j.stop()
		closeSinks(log, vertexSink, edgeSink)
		vertices, edges := j.counts()
		log.WithFields(logrus.Fields{"vertices": vertices, "edges": edges}).
			Info("finished loading graph")
		res.resolve(tracker.Snapshot())
	})

	return res, nil
}

// closeSinks is best-effort: teardown failures never block resolution.
func closeSinks(log logrus.FieldLogger, sinks ...*Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("closing producer")
		}
	}
}

func saramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.ClientID = clientID
	config.Consumer.Fetch.Default = 10 * 1024 * 1024
	return config
}

func producerConfig(clientID string) *sarama.Config {
	config := saramaConfig(clientID)
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	return config
}
