package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/loom/internal/domain"
)

// Implementation paths of the built-in text transformers.
const (
	PathCounter    = "text.counter"
	PathChunks     = "text.chunks"
	PathEmbeddings = "text.embeddings.openai"
)

// Field names the built-ins know how to populate.
const (
	fieldText       = "text"
	fieldEmbedding  = "embedding"
	fieldNWords     = "n_words"
	fieldNChars     = "n_chars"
	fieldNTokens    = "n_tokens"
	fieldChunkIndex = "chunk_index"
)

// Chunking params and their defaults (window sizes in words).
const (
	paramChunkSize    = "chunk_size"
	paramChunkOverlap = "chunk_overlap"

	defaultChunkSize    = 256
	defaultChunkOverlap = 32
)

// Counter returns the word/char counting transformer. It emits a single row;
// each destination field must be one of n_words, n_chars.
func Counter() Handler {
	return func(_ context.Context, in Input) ([]Row, error) {
		content := in.Document.Content
		row := make(Row, len(in.Fields))
		for i, f := range in.Fields {
			switch f {
			case fieldNWords:
				row[i] = int64(len(strings.Fields(content)))
			case fieldNChars:
				row[i] = int64(len([]rune(content)))
			default:
				return nil, fmt.Errorf("%w: %s cannot populate field %q", domain.ErrValidation, PathCounter, f)
			}
		}
		return []Row{row}, nil
	}
}

// Chunks returns the splitting transformer: one output row per word-window
// chunk. Params chunk_size and chunk_overlap are in words. Destination
// fields may be text, n_words, chunk_index.
func Chunks() Handler {
	return func(_ context.Context, in Input) ([]Row, error) {
		size, err := intParam(in.Params, paramChunkSize, defaultChunkSize)
		if err != nil {
			return nil, err
		}
		overlap, err := intParam(in.Params, paramChunkOverlap, defaultChunkOverlap)
		if err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", domain.ErrValidation, paramChunkSize, size)
		}
		if overlap < 0 || overlap >= size {
			return nil, fmt.Errorf("%w: %s must be in [0, %s), got %d", domain.ErrValidation, paramChunkOverlap, paramChunkSize, overlap)
		}

		words := strings.Fields(in.Document.Content)
		if len(words) == 0 {
			return nil, nil
		}

		var rows []Row
		step := size - overlap
		for start, idx := 0, 0; start < len(words); start, idx = start+step, idx+1 {
			end := start + size
			if end > len(words) {
				end = len(words)
			}
			chunk := words[start:end]

			row := make(Row, len(in.Fields))
			for i, f := range in.Fields {
				switch f {
				case fieldText:
					row[i] = strings.Join(chunk, " ")
				case fieldNWords:
					row[i] = int64(len(chunk))
				case fieldChunkIndex:
					row[i] = int64(idx)
				default:
					return nil, fmt.Errorf("%w: %s cannot populate field %q", domain.ErrValidation, PathChunks, f)
				}
			}
			rows = append(rows, row)

			if end == len(words) {
				break
			}
		}
		return rows, nil
	}
}

// Embeddings returns the vectorizing transformer. It emits a single row;
// destination fields may be embedding, text, n_tokens.
func Embeddings(embedder domain.Embedder) Handler {
	return func(ctx context.Context, in Input) ([]Row, error) {
		res, err := embedder.Embed(ctx, in.Document.Content)
		if err != nil {
			return nil, fmt.Errorf("embed document %s: %w", in.Document.ID, err)
		}

		row := make(Row, len(in.Fields))
		for i, f := range in.Fields {
			switch f {
			case fieldEmbedding:
				row[i] = res.Embedding
			case fieldText:
				row[i] = in.Document.Content
			case fieldNTokens:
				row[i] = int64(res.TotalTokens)
			default:
				return nil, fmt.Errorf("%w: %s cannot populate field %q", domain.ErrValidation, PathEmbeddings, f)
			}
		}
		return []Row{row}, nil
	}
}

// intParam reads an integer param, tolerating the float64 JSON numbers
// arrive as.
func intParam(params map[string]any, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %s must be a whole number, got %v", domain.ErrValidation, key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", domain.ErrValidation, key, raw)
	}
}
