// Command indexctl builds a new index epoch from a JSONL corpus and
// announces it so serving nodes pick it up.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omnidex-search/omnidex/internal/analytics"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/pkg/config"
	"github.com/omnidex-search/omnidex/pkg/kafka"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusPath := flag.String("corpus", "", "path to the JSONL corpus (one document per line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *corpusPath == "" {
		fmt.Fprintln(os.Stderr, "usage: indexctl -corpus <file.jsonl> [-config <file>]")
		os.Exit(2)
	}

	docs, err := readCorpus(*corpusPath)
	if err != nil {
		slog.Error("failed to read corpus", "path", *corpusPath, "error", err)
		os.Exit(1)
	}
	slog.Info("corpus loaded", "path", *corpusPath, "documents", len(docs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := index.NewBuilder(index.BuilderConfig{
		Root:             cfg.Index.Root,
		Workers:          cfg.Index.BuildWorkers,
		StripStopwords:   cfg.Index.StripStopwords,
		StopgramFraction: cfg.Retrieval.StopgramFraction,
	})

	start := time.Now()
	epoch, err := builder.Build(ctx, docs)
	if err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
	buildMs := time.Since(start).Milliseconds()
	slog.Info("epoch published",
		"epoch", epoch,
		"documents", len(docs),
		"build_ms", buildMs,
		"root", cfg.Index.Root,
	)

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Info("no kafka brokers configured, serving nodes will poll the epoch pointer")
		return
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.EpochPublished)
	defer producer.Close()

	event := analytics.EpochEvent{
		Epoch:     epoch,
		DocCount:  len(docs),
		BuildMs:   buildMs,
		Timestamp: time.Now().UTC(),
	}
	err = resilience.Retry(ctx, "epoch-publish", resilience.RetryConfig{}, func() error {
		return producer.Publish(ctx, kafka.Event{Key: fmt.Sprintf("epoch-%d", epoch), Value: event})
	})
	if err != nil {
		// The epoch is already live on disk; polling nodes converge anyway.
		slog.Warn("epoch announcement failed", "error", err)
		return
	}
	slog.Info("epoch announced", "topic", cfg.Kafka.Topics.EpochPublished, "epoch", epoch)
}

func readCorpus(path string) ([]index.BuildDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []index.BuildDocument
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc index.BuildDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.URL == "" {
			return nil, fmt.Errorf("line %d: document without url", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
