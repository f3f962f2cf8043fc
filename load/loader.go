package load

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"kafka-graph/graph"
	"kafka-graph/internal/metrics"
)

// ---------------------------------------------------------------------------
// Bulk loader
// ---------------------------------------------------------------------------

// Config carries the target of one bulk load.
type Config struct {
	Brokers []string
	TopicConfig
	Logger logrus.FieldLogger
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

// messageWriter is the slice of kafka.Writer the load loop needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Vertices reads `<key> [value]` lines and publishes one record per
// non-empty line to the target topic, creating the topic first. All sends
// are flushed before return; a line that fails to parse aborts the load.
func Vertices[K comparable, VV any](
	ctx context.Context,
	r io.Reader,
	keys graph.Codec[K],
	values graph.Codec[VV],
	parseKey func(string) (K, error),
	parseValue func(string) (VV, error),
	cfg Config,
) error {
	if err := EnsureTopic(ctx, cfg.Brokers, cfg.TopicConfig, cfg.logger()); err != nil {
		return err
	}
	return loadLines(ctx, newWriter(cfg), r, cfg, "vertices",
		vertexMessage(keys, values, parseKey, parseValue))
}

// Edges reads `<source> <target> [value]` lines and publishes one record per
// non-empty line, keyed by the (source, target) composite key. A line missing
// its target token is a parse error; a missing value token publishes a nil
// value.
func Edges[K comparable, EV any](
	ctx context.Context,
	r io.Reader,
	keys graph.Codec[K],
	values graph.Codec[EV],
	parseKey func(string) (K, error),
	parseValue func(string) (EV, error),
	cfg Config,
) error {
	if err := EnsureTopic(ctx, cfg.Brokers, cfg.TopicConfig, cfg.logger()); err != nil {
		return err
	}
	return loadLines(ctx, newWriter(cfg), r, cfg, "edges",
		edgeMessage(keys, values, parseKey, parseValue))
}

// vertexMessage turns one vertex line into a keyed record. A missing value
// token publishes a nil value.
func vertexMessage[K comparable, VV any](
	keys graph.Codec[K],
	values graph.Codec[VV],
	parseKey func(string) (K, error),
	parseValue func(string) (VV, error),
) func(line string) (kafka.Message, error) {
	return func(line string) (kafka.Message, error) {
		v, err := graph.ParseVertexLine(line)
		if err != nil {
			return kafka.Message{}, err
		}
		key, err := parseKey(v.Key)
		if err != nil {
			return kafka.Message{}, err
		}
		keyBytes, err := keys.Encode(key)
		if err != nil {
			return kafka.Message{}, err
		}
		msg := kafka.Message{Key: keyBytes}
		if v.HasValue {
			val, err := parseValue(v.Value)
			if err != nil {
				return kafka.Message{}, err
			}
			if msg.Value, err = values.Encode(val); err != nil {
				return kafka.Message{}, err
			}
		}
		metrics.IncVerticesLoaded()
		return msg, nil
	}
}

func edgeMessage[K comparable, EV any](
	keys graph.Codec[K],
	values graph.Codec[EV],
	parseKey func(string) (K, error),
	parseValue func(string) (EV, error),
) func(line string) (kafka.Message, error) {
	edgeKeys := graph.EdgeCodec[K]{Key: keys}
	return func(line string) (kafka.Message, error) {
		e, err := graph.ParseEdgeLine(line)
		if err != nil {
			return kafka.Message{}, err
		}
		source, err := parseKey(e.Source)
		if err != nil {
			return kafka.Message{}, err
		}
		target, err := parseKey(e.Target)
		if err != nil {
			return kafka.Message{}, err
		}
		keyBytes, err := edgeKeys.Encode(graph.Edge[K]{Source: source, Target: target})
		if err != nil {
			return kafka.Message{}, err
		}
		msg := kafka.Message{Key: keyBytes}
		if e.HasValue {
			val, err := parseValue(e.Value)
			if err != nil {
				return kafka.Message{}, err
			}
			if msg.Value, err = values.Encode(val); err != nil {
				return kafka.Message{}, err
			}
		}
		metrics.IncEdgesLoaded()
		return msg, nil
	}
}

// loadLines drives the scan-parse-publish loop. Sends are fire-and-forget;
// Close blocks until the writer's queue drains, so the batch is durable when
// loadLines returns nil.
func loadLines(
	ctx context.Context,
	w messageWriter,
	r io.Reader,
	cfg Config,
	kind string,
	makeMsg func(line string) (kafka.Message, error),
) error {
	log := cfg.logger().WithFields(logrus.Fields{"topic": cfg.Topic, "kind": kind})

	count := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		msg, err := makeMsg(line)
		if err != nil {
			w.Close()
			return pkgerrors.Wrapf(err, "%s line %d", kind, count+1)
		}
		if err := w.WriteMessages(ctx, msg); err != nil {
			w.Close()
			return pkgerrors.Wrapf(err, "publish to %s", cfg.Topic)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		w.Close()
		return pkgerrors.Wrap(err, "read input")
	}

	if err := w.Close(); err != nil {
		return pkgerrors.Wrapf(err, "flush %s", cfg.Topic)
	}
	log.WithField("records", count).Info("bulk load complete")
	return nil
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// flushWriter runs a kafka.Writer in async mode and surfaces the first
// completion error from Close, so callers see flush failures synchronously.
type flushWriter struct {
	w *kafka.Writer

	mu  sync.Mutex
	err error
}

func newWriter(cfg Config) *flushWriter {
	fw := &flushWriter{}
	fw.w = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		Async:        true,
		Completion: func(_ []kafka.Message, err error) {
			if err == nil {
				return
			}
			fw.mu.Lock()
			if fw.err == nil {
				fw.err = err
			}
			fw.mu.Unlock()
		},
	}
	return fw
}

func (f *flushWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return f.w.WriteMessages(ctx, msgs...)
}

func (f *flushWriter) Close() error {
	closeErr := f.w.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return closeErr
}
