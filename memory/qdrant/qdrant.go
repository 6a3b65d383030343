// Package qdrant implements core.Retriever on top of a Qdrant collection of
// cosine-normalized text embeddings. Queries are embedded through a
// model.Embedder and matched with vector similarity search.
package qdrant

import (
	"context"
	"fmt"
	"math"

	"github.com/qdrant/go-client/qdrant"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/model"
)

// Config locates the collection.
type Config struct {
	Host       string
	Port       int
	Collection string
}

// Store is a Qdrant-backed retriever.
type Store struct {
	client     *qdrant.Client
	embedder   model.Embedder
	collection string
}

var _ core.Retriever = (*Store)(nil)

// New connects to Qdrant. The embedder is used for queries and upserts alike.
func New(cfg Config, embedder model.Embedder) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Store{client: client, embedder: embedder, collection: cfg.Collection}, nil
}

// Search embeds the query and returns the closest stored documents with their
// cosine similarity scores. Payload entries without a "text" field are
// skipped.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]core.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(Normalize(vec)...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]core.SearchResult, 0, len(points))
	for _, p := range points {
		text := p.GetPayload()["text"].GetStringValue()
		if text == "" {
			continue
		}
		results = append(results, core.SearchResult{
			ID:      fmt.Sprintf("%d", p.GetId().GetNum()),
			Content: text,
			Score:   float64(p.GetScore()),
		})
	}
	return results, nil
}

// Recreate drops and recreates the collection for vectors of the given
// dimension with cosine distance. Used by the seeding tool.
func (s *Store) Recreate(ctx context.Context, dim uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Upsert embeds and stores the given texts with sequential numeric ids. The
// full text is kept in the payload under "text".
func (s *Store) Upsert(ctx context.Context, texts []string) error {
	points := make([]*qdrant.PointStruct, 0, len(texts))
	for i, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed document %d: %w", i, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(Normalize(vec)...),
			Payload: qdrant.NewValueMap(map[string]any{"text": text}),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Normalize scales a vector to unit length. Zero vectors are returned as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
