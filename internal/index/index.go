// Package index mirrors transactions into a vector index for semantic search.
// Index maintenance is best-effort: failures are logged and counted and the
// ledger never waits on or rolls back for the index.
package index

import (
	"context"
	"strings"
	"time"

	"github.com/tinoosan/walletledger/internal/ledger"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Payload is the metadata stored next to each vector.
type Payload struct {
	TransactionID int64   `json:"transaction_id"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Kind          string  `json:"kind"`
	Date          string  `json:"date"`
}

// Point is one vector keyed by transaction id.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Hit is a search result.
type Hit struct {
	ID      uint64  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// VectorIndex is the external index. Delete of an absent id succeeds.
type VectorIndex interface {
	Upsert(ctx context.Context, p Point) error
	Delete(ctx context.Context, id uint64) error
	Search(ctx context.Context, vector []float32, limit uint64, threshold float32) ([]Hit, error)
}

// Document is the text embedded for t: description, category name and
// counterparty joined by spaces, empty parts left out.
func Document(t ledger.Transaction, category string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Description, category, t.Counterparty} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// PayloadFor builds the stored metadata for t.
func PayloadFor(t ledger.Transaction, category string) Payload {
	amount, _ := t.Amount.Float64()
	return Payload{
		TransactionID: t.ID,
		Description:   t.Description,
		Category:      category,
		Amount:        amount,
		Kind:          string(t.Kind),
		Date:          t.Date.Format(time.RFC3339),
	}
}

// PointID maps a transaction id to its point id.
func PointID(transactionID int64) uint64 { return uint64(transactionID) }
