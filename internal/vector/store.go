package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"rag-service/internal/apperr"
	"rag-service/internal/retry"
)

// ScoredPoint is a search hit returned by the vector store.
type ScoredPoint struct {
	ID      string
	Score   float32
	Vector  []float32
	Payload map[string]any
}

// Filter narrows a search by exact payload matches and a created-at range.
// All set fields compose by conjunction.
type Filter struct {
	DocumentID  *int64
	OwnerID     *int64
	ContentType *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Searcher is the read side of the store, split out so the retrieval
// engine can be tested without a running Qdrant.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter *Filter, scoreThreshold *float32, withVectors bool) ([]ScoredPoint, error)
}

// Store adapts a Qdrant collection: upsert, filtered similarity search,
// and selective delete. The collection uses cosine distance; the dimension
// is fixed by the first upsert.
type Store struct {
	client     *qdrant.Client
	collection string
	retryer    *retry.Retryer
	log        zerolog.Logger
}

// NewStore wraps a Qdrant client for one collection.
func NewStore(client *qdrant.Client, collection string, retryer *retry.Retryer, log zerolog.Logger) *Store {
	return &Store{
		client:     client,
		collection: collection,
		retryer:    retryer,
		log:        log.With().Str("component", "vector").Logger(),
	}
}

func (s *Store) upstream(err error) error {
	s.log.Error().Err(err).Str("collection", s.collection).Msg("vector store call failed")
	return apperr.Upstream("Vector store unavailable", map[string]any{
		"provider":   "qdrant",
		"collection": s.collection,
	})
}

func (s *Store) exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.retryer.Do(ctx, "qdrant.collection_exists", func() error {
		var callErr error
		exists, callErr = s.client.CollectionExists(ctx, s.collection)
		return callErr
	})
	return exists, err
}

// EnsureCollection creates the collection with the given dimension and
// cosine metric when it does not exist yet. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := s.exists(ctx)
	if err != nil {
		return s.upstream(err)
	}
	if exists {
		return nil
	}

	err = s.retryer.Do(ctx, "qdrant.create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dim),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
	})
	if err != nil {
		return s.upstream(err)
	}
	return nil
}

// Upsert stores one point per id. Points get random opaque IDs; the
// logical id is preserved in the payload for later selective deletes.
// The write is acknowledged by the store before Upsert returns.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return apperr.BadRequest("ids, vectors and payloads must have the same length")
	}

	if err := s.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i := range ids {
		payload := make(map[string]*qdrant.Value, len(payloads[i])+1)
		for k, v := range payloads[i] {
			payload[k] = toValue(v)
		}
		if _, ok := payload["logical_id"]; !ok {
			payload["logical_id"] = toValue(ids[i])
		}

		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.NewString()},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vectors[i]},
				},
			},
			Payload: payload,
		})
	}

	err := s.retryer.Do(ctx, "qdrant.upsert", func() error {
		_, callErr := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return callErr
	})
	if err != nil {
		return s.upstream(err)
	}
	return nil
}

// Search returns up to limit points by descending cosine similarity.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter, scoreThreshold *float32, withVectors bool) ([]ScoredPoint, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}

	var hits []*qdrant.ScoredPoint
	err := s.retryer.Do(ctx, "qdrant.query", func() error {
		var callErr error
		hits, callErr = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			Filter:         filter.toQdrant(),
			ScoreThreshold: scoreThreshold,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		return callErr
	})
	if err != nil {
		return nil, s.upstream(err)
	}

	points := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		points = append(points, ScoredPoint{
			ID:      pointID(h.GetId()),
			Score:   h.GetScore(),
			Vector:  h.GetVectors().GetVector().GetData(),
			Payload: fromValueMap(h.GetPayload()),
		})
	}
	return points, nil
}

// DeleteByLogicalIDs removes every point whose payload logical_id is in
// ids. A missing collection is a no-op.
func (s *Store) DeleteByLogicalIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	exists, err := s.exists(ctx)
	if err != nil {
		return s.upstream(err)
	}
	if !exists {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(ids))
	for _, id := range ids {
		conditions = append(conditions, matchKeyword("logical_id", id))
	}
	return s.deleteByFilter(ctx, &qdrant.Filter{Should: conditions})
}

// DeleteByDocumentID removes every point belonging to the document.
// A missing collection is a no-op.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID int64) error {
	exists, err := s.exists(ctx)
	if err != nil {
		return s.upstream(err)
	}
	if !exists {
		return nil
	}
	return s.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{matchInt("document_id", documentID)},
	})
}

func (s *Store) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	err := s.retryer.Do(ctx, "qdrant.delete", func() error {
		_, callErr := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
			Wait: qdrant.PtrOf(true),
		})
		return callErr
	})
	if err != nil {
		return s.upstream(err)
	}
	return nil
}

func (f *Filter) toQdrant() *qdrant.Filter {
	if f == nil {
		return nil
	}

	var conditions []*qdrant.Condition
	if f.DocumentID != nil {
		conditions = append(conditions, matchInt("document_id", *f.DocumentID))
	}
	if f.OwnerID != nil {
		conditions = append(conditions, matchInt("document_owner_id", *f.OwnerID))
	}
	if f.ContentType != nil {
		conditions = append(conditions, matchKeyword("content_type", *f.ContentType))
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		r := &qdrant.Range{}
		if f.CreatedFrom != nil {
			r.Gte = qdrant.PtrOf(float64(f.CreatedFrom.Unix()))
		}
		if f.CreatedTo != nil {
			r.Lte = qdrant.PtrOf(float64(f.CreatedTo.Unix()))
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "document_created_at_ts",
					Range: r,
				},
			},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func matchKeyword(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func matchInt(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: value}},
			},
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, fromValue(item))
		}
		return out
	case *qdrant.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}

func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}
