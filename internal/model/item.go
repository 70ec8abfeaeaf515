// Package model defines the core data types shared across the analysis pipeline.
package model

import (
	"strings"
	"time"
)

// Item is a single collected text record from a social platform.
// Identity within one analysis run is (Platform, SourceID).
type Item struct {
	Platform    string             `json:"platform"`
	ContentType string             `json:"content_type"`
	SourceID    string             `json:"source_id"`
	Title       string             `json:"title,omitempty"`
	Content     string             `json:"content,omitempty"`
	Author      string             `json:"author,omitempty"`
	URL         string             `json:"url,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
}

// Key returns the identity key for deduplication within a run.
func (it Item) Key() string {
	return it.Platform + "/" + it.SourceID
}

// Text returns the analyzable text: content if present, otherwise title.
func (it Item) Text() string {
	if strings.TrimSpace(it.Content) != "" {
		return it.Content
	}
	return it.Title
}

// Metric returns the named engagement metric truncated to an integer,
// or 0 when absent.
func (it Item) Metric(name string) int {
	if it.Metrics == nil {
		return 0
	}
	return int(it.Metrics[name])
}

// Candidate is an Item plus its derived engagement score and a monotonic
// sequence number assigned at observation time. The sequence is used only
// for deterministic tie-breaks and never persisted.
type Candidate struct {
	Item
	Engagement int
	Sequence   int64
}

// SentimentResult is the per-item outcome of a sentiment extraction batch.
type SentimentResult struct {
	SourceID   string
	Platform   string
	Score      int
	KeyPhrases []string
	Engagement int
}

// Opinion is one clustered viewpoint extracted from the sampled texts.
type Opinion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Points      []string `json:"points,omitempty"`
}

// AnalysisRecord is the final artifact of one pipeline run. It is created
// once by the aggregator and is immutable afterwards.
type AnalysisRecord struct {
	ID                   string         `json:"id"`
	Keyword              string         `json:"keyword"`
	SentimentScore       int            `json:"sentiment_score"`
	KeyOpinions          []Opinion      `json:"key_opinions"`
	Summary              string         `json:"summary"`
	MindmapCode          string         `json:"mindmap_code"`
	HeatIndex            float64        `json:"heat_index"`
	TotalItems           int            `json:"total_items"`
	PlatformDistribution map[string]int `json:"platform_distribution"`
	AnalyzedAt           time.Time      `json:"analyzed_at"`
}

// Alert records a run whose sentiment score fell below a configured threshold.
type Alert struct {
	ID             string    `json:"id"`
	RecordID       string    `json:"record_id"`
	Keyword        string    `json:"keyword"`
	SentimentScore int       `json:"sentiment_score"`
	Threshold      int       `json:"threshold"`
	AlertType      string    `json:"alert_type"`
	CreatedAt      time.Time `json:"created_at"`
}
