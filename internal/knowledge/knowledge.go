// Package knowledge retrieves golden-rule storage documents to ground
// narrative output. The corpus is one canonical document per crop; queries
// rank by embedding cosine similarity when vectors are available and fall
// back to deterministic token overlap when they are not.
package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"coldtrace/internal/crops"
	"coldtrace/internal/types"
)

// DefaultResults is the number of documents Query returns when the caller
// does not ask for a specific count.
const DefaultResults = 3

// Document is one retrievable knowledge-base entry.
type Document struct {
	ID   string
	Text string
	Crop types.Crop

	// Vector is the document embedding; empty until attached by a loader
	// or EmbedAll.
	Vector []float64
}

// ScoredDoc pairs a document with its relevance to a query.
type ScoredDoc struct {
	Document Document
	Score    float64
}

// Embedder turns text into a dense vector. Implementations typically wrap a
// remote embedding model; tests use fixed maps.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Base is an in-memory knowledge base over a fixed document set.
type Base struct {
	docs     []Document
	tokens   []map[string]struct{}
	embedder Embedder
	embedded bool
	logger   *slog.Logger
}

// NewBase builds a knowledge base. embedder may be nil; retrieval then uses
// token overlap only.
func NewBase(docs []Document, embedder Embedder, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Base{
		docs:     docs,
		tokens:   make([]map[string]struct{}, len(docs)),
		embedder: embedder,
		logger:   logger,
	}
	for i, doc := range docs {
		b.tokens[i] = tokenize(doc.Text)
	}
	b.embedded = b.allEmbedded()
	return b
}

// FromCatalog renders the catalog into retrieval documents, one per crop,
// using the canonical rule sentence and stable rule_ IDs.
func FromCatalog(catalog *crops.Catalog) []Document {
	all := catalog.All()
	docs := make([]Document, len(all))
	for i, crop := range all {
		docs[i] = Document{
			ID:   crops.DocID(crop),
			Text: crops.RuleText(crop),
			Crop: crop,
		}
	}
	return docs
}

// Len reports the corpus size.
func (b *Base) Len() int { return len(b.docs) }

// EmbedAll attaches vectors to documents that lack one. A document whose
// embedding fails is left vector-less and logged; retrieval then stays on
// the token-overlap path. Returns the context error if embedding was cut
// short.
func (b *Base) EmbedAll(ctx context.Context) error {
	if b.embedder == nil {
		return nil
	}
	for i := range b.docs {
		if len(b.docs[i].Vector) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, err := b.embedder.Embed(ctx, b.docs[i].Text)
		if err != nil {
			b.logger.WarnContext(ctx, "document embedding failed",
				"doc_id", b.docs[i].ID,
				"error", err)
			continue
		}
		b.docs[i].Vector = vec
	}
	b.embedded = b.allEmbedded()
	return nil
}

// Query returns the n most relevant documents, highest score first. Ties
// keep corpus order. n below 1 means DefaultResults.
//
// Cosine ranking requires an embedder and a fully vectorized corpus; a
// partially embedded corpus would skew comparisons, so anything less uses
// token overlap for every document.
func (b *Base) Query(ctx context.Context, query string, n int) []ScoredDoc {
	if n < 1 {
		n = DefaultResults
	}
	scored := b.scoreAll(ctx, query)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func (b *Base) scoreAll(ctx context.Context, query string) []ScoredDoc {
	if b.embedder != nil && b.embedded {
		queryVec, err := b.embedder.Embed(ctx, query)
		if err == nil {
			scored := make([]ScoredDoc, len(b.docs))
			for i, doc := range b.docs {
				scored[i] = ScoredDoc{Document: doc, Score: cosine(queryVec, doc.Vector)}
			}
			return scored
		}
		b.logger.WarnContext(ctx, "query embedding failed, ranking by token overlap", "error", err)
	}

	queryTokens := tokenize(query)
	scored := make([]ScoredDoc, len(b.docs))
	for i, doc := range b.docs {
		scored[i] = ScoredDoc{Document: doc, Score: tokenOverlap(queryTokens, b.tokens[i])}
	}
	return scored
}

func (b *Base) allEmbedded() bool {
	if len(b.docs) == 0 {
		return false
	}
	for _, doc := range b.docs {
		if len(doc.Vector) == 0 {
			return false
		}
	}
	return true
}

// cosine is dot(a,b) / (|a|·|b|); zero for empty, mismatched, or zero-norm
// vectors.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

// tokenOverlap is the share of query tokens present in the document.
func tokenOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var matched int
	for tok := range query {
		if _, ok := doc[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
