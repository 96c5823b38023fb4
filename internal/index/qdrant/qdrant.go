// Package qdrant implements index.VectorIndex on a Qdrant collection. Point
// ids are transaction ids.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/tinoosan/walletledger/internal/index"
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  uint64
}

type Index struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

func New(cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		cfg.Collection = "transactions"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Index{client: client, collection: cfg.Collection, dimension: cfg.Dimension}, nil
}

func (i *Index) Close() error { return i.client.Close() }

// EnsureCollection creates the cosine collection when it does not exist.
func (i *Index) EnsureCollection(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     i.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", i.collection, err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, p index.Point) error {
	if uint64(len(p.Vector)) != i.dimension {
		return fmt.Errorf("vector has %d dimensions, collection expects %d", len(p.Vector), i.dimension)
	}
	wait := true
	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"transaction_id": p.Payload.TransactionID,
				"description":    p.Payload.Description,
				"category":       p.Payload.Category,
				"amount":         p.Payload.Amount,
				"kind":           p.Payload.Kind,
				"date":           p.Payload.Date,
			}),
		}},
	})
	return err
}

func (i *Index) Delete(ctx context.Context, id uint64) error {
	wait := true
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(id)),
	})
	return err
}

func (i *Index) Search(ctx context.Context, vector []float32, limit uint64, threshold float32) ([]index.Hit, error) {
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]index.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, index.Hit{
			ID:      p.GetId().GetNum(),
			Score:   p.GetScore(),
			Payload: payloadOf(p.GetPayload()),
		})
	}
	return hits, nil
}

func payloadOf(m map[string]*qdrant.Value) index.Payload {
	return index.Payload{
		TransactionID: m["transaction_id"].GetIntegerValue(),
		Description:   m["description"].GetStringValue(),
		Category:      m["category"].GetStringValue(),
		Amount:        m["amount"].GetDoubleValue(),
		Kind:          m["kind"].GetStringValue(),
		Date:          m["date"].GetStringValue(),
	}
}

var _ index.VectorIndex = (*Index)(nil)
