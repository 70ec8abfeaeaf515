// Command trendwatch analyzes social-media chatter about a keyword: it
// filters and bounds the collected items, samples a representative subset,
// scores sentiment, clusters opinions, and emits a single analysis record.
//
// Usage:
//
//	trendwatch analyze -keyword <kw> [-input items.ndjson]
//	trendwatch show -id <record-id>
//	trendwatch list [-keyword <kw>] [-limit N]
//	trendwatch alerts [-limit N]
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const usage = `trendwatch — social trend analysis CLI

Usage:
  trendwatch <command> [flags]

Commands:
  analyze     Run the full analysis pipeline over collected items
  show        Print one saved analysis record
  list        List saved analysis records
  alerts      List sentiment alerts

Environment:
  LLM_API_KEY       API key for the text-generation provider
  OPENAI_API_KEY    Fallback API key (used when LLM_API_KEY is unset)
  LLM_API_BASE_URL  OpenAI-compatible endpoint override
  LLM_MODEL         Generation model override
  JINA_API_KEY      Jina AI API key (enables embedding-based sampling)
  JINA_EMBED_MODEL  Embedding model (default: jina-embeddings-v3)

Run 'trendwatch <command> -h' for command-specific help.
`

func main() {
	// Missing .env is fine; the environment may be set directly.
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "analyze":
		runAnalyze()
	case "show":
		runShow()
	case "list":
		runList()
	case "alerts":
		runAlerts()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "trendwatch: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
