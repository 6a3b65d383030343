// Command standby-seed recreates the qdrant collection and inserts the
// reference documents the assistant retrieves context from. Input is a JSON
// array of objects with a "text" field.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/standbybot/standby/config"
	"github.com/standbybot/standby/memory/qdrant"
	"github.com/standbybot/standby/model/openai"
)

type document struct {
	Text string `json:"text"`
}

func main() {
	file := flag.String("file", "solutions.json", "path to the JSON document file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *file, err)
	}
	var docs []document
	if err := json.Unmarshal(raw, &docs); err != nil {
		log.Fatalf("failed to parse %s: %v", *file, err)
	}
	if len(docs) == 0 {
		log.Fatalf("no documents in %s", *file)
	}

	embedder := openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		if cfg.Model.EmbeddingModel != "" {
			o.Model = cfg.Model.EmbeddingModel
		}
		o.BaseURL = cfg.Model.BaseURL
		o.APIKey = cfg.Model.APIKey
	})

	store, err := qdrant.New(qdrant.Config{
		Host:       cfg.Retrieval.QdrantHost,
		Port:       cfg.Retrieval.QdrantPort,
		Collection: cfg.Retrieval.Collection,
	}, embedder)
	if err != nil {
		log.Fatalf("failed to connect to qdrant: %v", err)
	}

	ctx := context.Background()

	// Probe the embedding dimension with the first document.
	probe, err := embedder.Embed(ctx, docs[0].Text)
	if err != nil {
		log.Fatalf("failed to embed probe document: %v", err)
	}

	if err := store.Recreate(ctx, uint64(len(probe))); err != nil {
		log.Fatalf("failed to recreate collection: %v", err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	if err := store.Upsert(ctx, texts); err != nil {
		log.Fatalf("failed to upsert documents: %v", err)
	}

	log.Printf("inserted %d documents into collection %q", len(docs), cfg.Retrieval.Collection)
}
