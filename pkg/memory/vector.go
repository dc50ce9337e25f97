// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Point is a vector with an id and arbitrary payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is a scored point returned by a vector search.
type SearchResult struct {
	ID    string
	Score float32
	Point Point
}

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore stores and searches embedded points.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
}

// Recaller is the long-term semantic memory: finished turns are remembered
// as notes and relevant notes are recalled into persona framing on later
// turns. Notes are stored post-redaction only.
type Recaller struct {
	embedder   Embedder
	store      VectorStore
	collection string
	topK       int
}

// NewRecaller creates a Recaller over an embedder and vector store.
func NewRecaller(embedder Embedder, store VectorStore, collection string, topK int) *Recaller {
	if topK <= 0 {
		topK = 3
	}
	return &Recaller{
		embedder:   embedder,
		store:      store,
		collection: collection,
		topK:       topK,
	}
}

// Remember embeds and stores a note scoped to an agent.
func (r *Recaller) Remember(ctx context.Context, agentID, note string) error {
	if strings.TrimSpace(note) == "" {
		return nil
	}
	vector, err := r.embedder.Embed(ctx, note)
	if err != nil {
		return fmt.Errorf("embed note: %w", err)
	}
	return r.store.Upsert(ctx, r.collection, []Point{{
		ID:     uuid.NewString(),
		Vector: vector,
		Payload: map[string]interface{}{
			"agent_id": agentID,
			"note":     note,
		},
	}})
}

// Recall returns up to topK notes relevant to the query for the agent.
func (r *Recaller) Recall(ctx context.Context, agentID, query string) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.store.Search(ctx, r.collection, vector, r.topK, 0.3)
	if err != nil {
		return nil, err
	}

	var notes []string
	for _, res := range results {
		if res.Point.Payload["agent_id"] != agentID {
			continue
		}
		if note, ok := res.Point.Payload["note"].(string); ok {
			notes = append(notes, note)
		}
	}
	return notes, nil
}
