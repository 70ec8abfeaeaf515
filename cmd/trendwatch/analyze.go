package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebmorris/trendwatch/internal/config"
	"github.com/calebmorris/trendwatch/internal/embed"
	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
	"github.com/calebmorris/trendwatch/internal/pipeline"
	"github.com/calebmorris/trendwatch/internal/store"
)

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	keyword := fs.String("keyword", "", "keyword the items were collected for (required)")
	input := fs.String("input", "-", "items file (NDJSON or JSON array), - for stdin")
	save := fs.Bool("save", false, "persist the record to the results database")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall run timeout")
	debug := fs.Bool("debug", false, "debug logging to stderr")
	fs.Parse(os.Args[1:])

	if strings.TrimSpace(*keyword) == "" {
		fmt.Fprintln(os.Stderr, "analyze: -keyword is required")
		fs.Usage()
		os.Exit(2)
	}

	if err := logging.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: loading config: %v\n", err)
		os.Exit(1)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	items, err := readItems(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: reading items: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	analyzer := pipeline.New(cfg, provider, buildEmbedder(cfg))
	record, err := analyzer.RunItems(ctx, *keyword, items)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoData) {
			fmt.Fprintln(os.Stderr, "analyze: no items to analyze")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	if *save {
		if err := persist(cfg, record); err != nil {
			fmt.Fprintf(os.Stderr, "analyze: saving record: %v\n", err)
			os.Exit(1)
		}
	}

	out, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(out))
}

// buildProvider resolves the configured generation provider, falling back to
// any other available one when the preferred provider is unreachable.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	mgr := llm.NewManager()
	mgr.Add(llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL))
	mgr.Add(llm.NewOllamaProvider(cfg.LLM.OllamaEndpoint, cfg.LLM.OllamaModel))
	mgr.SetPreferred(cfg.LLM.Provider)

	p := mgr.Active()
	if p == nil {
		return nil, fmt.Errorf("no usable LLM provider: set LLM_API_KEY or configure ollama")
	}
	if p.Name() != cfg.LLM.Provider {
		logging.Warn("preferred provider unavailable, using fallback",
			"preferred", cfg.LLM.Provider, "using", p.Name())
	}
	return p, nil
}

// buildEmbedder returns the configured embedding provider, or nil when none
// is usable. Sampling degrades gracefully without one.
func buildEmbedder(cfg *config.Config) embed.BatchEmbedder {
	switch cfg.Embedding.Provider {
	case "ollama":
		return embed.NewOllamaEmbedder(cfg.Embedding.Endpoint, cfg.Embedding.Model)
	default:
		if cfg.Embedding.APIKey == "" {
			return nil
		}
		return embed.NewJinaEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	}
}

// readItems decodes collected items from a file or stdin. Accepts either one
// JSON array or newline-delimited JSON objects.
func readItems(path string) ([]model.Item, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	first, err := br.Peek(1)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	if first[0] == '[' {
		var items []model.Item
		if err := json.NewDecoder(br).Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var items []model.Item
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var item model.Item
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	return items, scanner.Err()
}

// persist saves the record and raises an alert when the sentiment score falls
// below the configured threshold.
func persist(cfg *config.Config, record *model.AnalysisRecord) error {
	db, err := store.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRecord(record); err != nil {
		return err
	}

	threshold := cfg.Analysis.AlertThreshold
	if threshold > 0 && record.SentimentScore < threshold {
		alert := &model.Alert{
			ID:             uuid.NewString(),
			RecordID:       record.ID,
			Keyword:        record.Keyword,
			SentimentScore: record.SentimentScore,
			Threshold:      threshold,
			AlertType:      "negative_sentiment",
			CreatedAt:      time.Now().UTC(),
		}
		if err := db.SaveAlert(alert); err != nil {
			return err
		}
		logging.Warn("sentiment alert raised",
			"keyword", record.Keyword,
			"score", record.SentimentScore,
			"threshold", threshold)
	}
	return nil
}
