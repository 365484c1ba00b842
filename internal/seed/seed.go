// Package seed creates the default collection and the built-in transformer
// and index definitions on first boot. Each entity kind is seeded only while
// its table is empty, so user-created data is never touched.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domidx "github.com/kailas-cloud/loom/internal/domain/index"
	domtrans "github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/transform"
)

// Ids of the seeded definitions.
const (
	DefaultCollectionID = "default"
	StatsIndexID        = "default_text_stats"
	EmbeddingsIndexID   = "default_text_embeddings"
)

// CollectionStore is the collection surface the seeder needs.
type CollectionStore interface {
	List(ctx context.Context) ([]domcol.Collection, error)
	Create(ctx context.Context, col domcol.Collection) error
}

// TransformerStore is the transformer surface the seeder needs.
type TransformerStore interface {
	List(ctx context.Context) ([]domtrans.Transformer, error)
	Create(ctx context.Context, tr domtrans.Transformer) error
}

// IndexStore is the index surface the seeder needs.
type IndexStore interface {
	List(ctx context.Context) ([]domidx.Index, error)
	Create(ctx context.Context, idx domidx.Index) error
}

// Params control what gets seeded.
type Params struct {
	// DefaultCollection names the collection ensured on first boot. Empty
	// falls back to "default".
	DefaultCollection string
	// EmbeddingModel and EmbeddingDims describe the configured provider.
	// A zero dims skips the default embeddings index: its column width
	// would be a guess.
	EmbeddingModel string
	EmbeddingDims  int
}

// Seeder writes first-boot defaults.
type Seeder struct {
	collections  CollectionStore
	transformers TransformerStore
	indexes      IndexStore
	params       Params
	logger       *zap.Logger
}

// New creates a seeder.
func New(
	collections CollectionStore,
	transformers TransformerStore,
	indexes IndexStore,
	params Params,
	logger *zap.Logger,
) *Seeder {
	if params.DefaultCollection == "" {
		params.DefaultCollection = DefaultCollectionID
	}
	return &Seeder{
		collections:  collections,
		transformers: transformers,
		indexes:      indexes,
		params:       params,
		logger:       logger,
	}
}

// Run seeds whatever is still missing. Definitions only: no binding is
// created and no index table is materialized, both happen through the API
// when the user wires the pieces together.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.seedCollection(ctx); err != nil {
		return fmt.Errorf("seed collection: %w", err)
	}
	if err := s.seedTransformers(ctx); err != nil {
		return fmt.Errorf("seed transformers: %w", err)
	}
	if err := s.seedIndexes(ctx); err != nil {
		return fmt.Errorf("seed indexes: %w", err)
	}
	return nil
}

func (s *Seeder) seedCollection(ctx context.Context) error {
	existing, err := s.collections.List(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Debug("Collections already present, skipping seed")
		return nil
	}

	col, err := domcol.New(s.params.DefaultCollection, "Default collection", nil)
	if err != nil {
		return err
	}
	if err := s.collections.Create(ctx, col); err != nil {
		return fmt.Errorf("create collection %q: %w", col.ID(), err)
	}

	s.logger.Info("Seeded default collection", zap.String("collection_id", col.ID()))
	return nil
}

func (s *Seeder) seedTransformers(ctx context.Context) error {
	existing, err := s.transformers.List(ctx)
	if err != nil {
		return fmt.Errorf("list transformers: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Debug("Transformers already present, skipping seed")
		return nil
	}

	declarations := []struct {
		id, path, description string
	}{
		{"text.counter", transform.PathCounter, "Counts words and characters"},
		{"text.chunks", transform.PathChunks, "Splits content into word-window chunks"},
		{"text.embeddings.openai", transform.PathEmbeddings, "Text embeddings via the configured OpenAI-compatible provider"},
	}
	for _, d := range declarations {
		tr, err := domtrans.New(d.id, d.path, d.description)
		if err != nil {
			return err
		}
		if err := s.transformers.Create(ctx, tr); err != nil {
			return fmt.Errorf("create transformer %q: %w", d.id, err)
		}
	}

	s.logger.Info("Seeded built-in transformers", zap.Int("count", len(declarations)))
	return nil
}

func (s *Seeder) seedIndexes(ctx context.Context) error {
	existing, err := s.indexes.List(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Debug("Indexes already present, skipping seed")
		return nil
	}

	defs, err := s.indexDefinitions()
	if err != nil {
		return err
	}
	for _, idx := range defs {
		if err := s.indexes.Create(ctx, idx); err != nil {
			return fmt.Errorf("create index %q: %w", idx.ID(), err)
		}
		s.logger.Info("Seeded index definition", zap.String("index_id", idx.ID()))
	}
	return nil
}

func (s *Seeder) indexDefinitions() ([]domidx.Index, error) {
	nWords, err := domidx.NewField("n_words", domidx.TypeInt, false)
	if err != nil {
		return nil, err
	}
	nChars, err := domidx.NewField("n_chars", domidx.TypeInt, false)
	if err != nil {
		return nil, err
	}
	stats, err := domidx.New(StatsIndexID, "Word and character counts",
		[]domidx.Field{nWords, nChars})
	if err != nil {
		return nil, err
	}
	defs := []domidx.Index{stats}

	if s.params.EmbeddingDims > 0 {
		embedding, err := domidx.NewEmbeddingField(
			"embedding", s.params.EmbeddingDims, domidx.DistanceCosine, s.params.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		text, err := domidx.NewField("text", domidx.TypeText, true)
		if err != nil {
			return nil, err
		}
		embeddings, err := domidx.New(EmbeddingsIndexID, "Text embeddings",
			[]domidx.Field{embedding, text})
		if err != nil {
			return nil, err
		}
		defs = append(defs, embeddings)
	}

	return defs, nil
}
