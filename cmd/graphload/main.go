package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"kafka-graph/graph"
	"kafka-graph/internal/config"
	"kafka-graph/internal/metrics"
	"kafka-graph/load"
	"kafka-graph/stream"
)

var (
	verticesFile = flag.String("vertices", "", "vertex input file (`<key> [value]` per line)")
	edgesFile    = flag.String("edges", "", "edge input file (`<source> <target> [value]` per line)")
	skipLoad     = flag.Bool("skip-load", false, "skip the bulk load and only repartition")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("bad configuration")
	}
	metrics.Register()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !*skipLoad {
		if *verticesFile == "" || *edgesFile == "" {
			log.Fatal("both -vertices and -edges are required (or pass -skip-load)")
		}
		if err := loadGraph(ctx, cfg, log); err != nil {
			log.WithError(err).Fatal("bulk load failed")
		}
	}

	res, err := stream.GroupEdgesBySource[int64, float64](stream.Config{
		Brokers:           cfg.Brokers,
		VerticesTopic:     cfg.VerticesTopic,
		EdgesTopic:        cfg.EdgesTopic,
		VerticesOutTopic:  cfg.VerticesOutTopic,
		EdgesOutTopic:     cfg.EdgesOutTopic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
		PollInterval:      cfg.PollInterval,
		IdleThreshold:     cfg.IdleThreshold,
		Logger:            log,
	}, graph.LongCodec{}, graph.DoubleCodec{})
	if err != nil {
		log.WithError(err).Fatal("starting repartition job")
	}

	watermark, err := res.Wait(ctx)
	if err != nil {
		log.WithError(err).Fatal("repartition job failed")
	}

	for tp, offset := range watermark {
		log.WithFields(logrus.Fields{
			"topic":     tp.Topic,
			"partition": tp.Partition,
			"offset":    offset,
		}).Info("write watermark")
	}
}

// loadGraph runs the two bulk-load phases: vertices, then edges.
func loadGraph(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	vf, err := os.Open(*verticesFile)
	if err != nil {
		return err
	}
	defer vf.Close()

	err = load.Vertices[int64, float64](ctx, vf,
		graph.LongCodec{}, graph.DoubleCodec{}, graph.ParseLong, graph.ParseDouble,
		load.Config{
			Brokers: cfg.Brokers,
			TopicConfig: load.TopicConfig{
				Topic:             cfg.VerticesTopic,
				NumPartitions:     cfg.NumPartitions,
				ReplicationFactor: cfg.ReplicationFactor,
			},
			Logger: log,
		})
	if err != nil {
		return err
	}

	ef, err := os.Open(*edgesFile)
	if err != nil {
		return err
	}
	defer ef.Close()

	return load.Edges[int64, float64](ctx, ef,
		graph.LongCodec{}, graph.DoubleCodec{}, graph.ParseLong, graph.ParseDouble,
		load.Config{
			Brokers: cfg.Brokers,
			TopicConfig: load.TopicConfig{
				Topic:             cfg.EdgesTopic,
				NumPartitions:     cfg.NumPartitions,
				ReplicationFactor: cfg.ReplicationFactor,
			},
			Logger: log,
		})
}
