package rag

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"rag-service/internal/vector"
)

const (
	// DefaultTopK is how many hits a search returns when unspecified.
	DefaultTopK = 5

	// DefaultMMRLambda balances relevance against diversity.
	DefaultMMRLambda = 0.5
)

// SearchRequest is a retrieval query with its filters and knobs.
type SearchRequest struct {
	Query          string
	TopK           int
	FetchK         int
	ScoreThreshold *float32
	UseMMR         bool
	MMRLambda      *float32

	DocumentID  *int64
	OwnerID     *int64
	ContentType *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Hit is one retrieved chunk.
type Hit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload"`
}

// SearchResult is the retrieval outcome.
type SearchResult struct {
	Hits            []Hit `json:"hits"`
	UsedMMR         bool  `json:"used_mmr"`
	TotalCandidates int   `json:"total_candidates"`
}

// QueryEmbedder embeds the search query.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Retriever runs filtered similarity search with optional MMR re-ranking.
type Retriever struct {
	embedder QueryEmbedder
	searcher vector.Searcher
	log      zerolog.Logger
}

// NewRetriever wires the retrieval engine.
func NewRetriever(embedder QueryEmbedder, searcher vector.Searcher, log zerolog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		log:      log.With().Str("component", "retrieval").Logger(),
	}
}

// Search embeds the query, over-fetches candidates, and returns the top_k
// hits, MMR-reranked when requested.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	candidateLimit := req.FetchK
	if candidateLimit <= 0 {
		candidateLimit = 3 * topK
		if candidateLimit < topK {
			candidateLimit = topK
		}
	}

	queryVec, err := r.embedder.EmbedOne(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	filter := r.filter(req)
	candidates, err := r.searcher.Search(ctx, queryVec, candidateLimit, filter, req.ScoreThreshold, req.UseMMR)
	if err != nil {
		return nil, err
	}

	// The store applies the threshold too, but re-check locally so the
	// contract holds regardless of backend behavior.
	if req.ScoreThreshold != nil {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Score >= *req.ScoreThreshold {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	total := len(candidates)
	var selected []vector.ScoredPoint
	if req.UseMMR {
		// MMR runs whenever requested: even a pool that fits top_k gets
		// reordered, since diversity changes the pick order.
		lambda := float32(DefaultMMRLambda)
		if req.MMRLambda != nil {
			lambda = *req.MMRLambda
		}
		selected = mmrSelect(queryVec, candidates, topK, lambda)
	} else {
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		selected = candidates
	}

	hits := make([]Hit, 0, len(selected))
	for _, point := range selected {
		text, _ := point.Payload["text"].(string)
		hits = append(hits, Hit{
			ID:      point.ID,
			Score:   point.Score,
			Text:    text,
			Payload: point.Payload,
		})
	}
	return &SearchResult{
		Hits:            hits,
		UsedMMR:         req.UseMMR,
		TotalCandidates: total,
	}, nil
}

func (r *Retriever) filter(req SearchRequest) *vector.Filter {
	if req.DocumentID == nil && req.OwnerID == nil && req.ContentType == nil &&
		req.CreatedFrom == nil && req.CreatedTo == nil {
		return nil
	}
	return &vector.Filter{
		DocumentID:  req.DocumentID,
		OwnerID:     req.OwnerID,
		ContentType: req.ContentType,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
}

// mmrSelect picks k candidates by maximal marginal relevance. The first
// pick is the highest-scored candidate; each further pick maximizes
// lambda*relevance - (1-lambda)*max-similarity-to-selected. Ties break on
// the original score, then on insertion order.
func mmrSelect(queryVec []float32, candidates []vector.ScoredPoint, k int, lambda float32) []vector.ScoredPoint {
	if len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Score > candidates[order[b]].Score
	})

	selected := make([]int, 0, k)
	remaining := order[1:]
	selected = append(selected, order[0])

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		var bestMarginal, bestScore float32
		for pos, ci := range remaining {
			c := candidates[ci]
			maxSim := vector.CosineSimilarity(c.Vector, candidates[selected[0]].Vector)
			for _, si := range selected[1:] {
				sim := vector.CosineSimilarity(c.Vector, candidates[si].Vector)
				if sim > maxSim {
					maxSim = sim
				}
			}
			marginal := lambda*c.Score - (1-lambda)*maxSim
			if bestIdx == -1 || marginal > bestMarginal ||
				(marginal == bestMarginal && c.Score > bestScore) {
				bestIdx = pos
				bestMarginal = marginal
				bestScore = c.Score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	out := make([]vector.ScoredPoint, 0, len(selected))
	for _, i := range selected {
		out = append(out, candidates[i])
	}
	return out
}
