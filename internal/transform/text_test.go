package transform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/loom/internal/domain"
	"github.com/kailas-cloud/loom/internal/task"
)

func textInput(content string, fields []string, params map[string]any) Input {
	return Input{
		Document: task.DocumentPayload{ID: "d1", Content: content},
		Fields:   fields,
		Params:   params,
	}
}

func TestCounter(t *testing.T) {
	rows, err := Counter()(context.Background(), textInput("one two  three", []string{"n_words", "n_chars"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != int64(3) {
		t.Errorf("expected 3 words, got %v", rows[0][0])
	}
	if rows[0][1] != int64(14) {
		t.Errorf("expected 14 chars, got %v", rows[0][1])
	}
}

func TestCounter_UnknownField(t *testing.T) {
	_, err := Counter()(context.Background(), textInput("x", []string{"embedding"}, nil))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestChunks_WindowsAndOverlap(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	in := textInput(strings.Join(words, " "), []string{"text", "n_words", "chunk_index"}, map[string]any{
		"chunk_size":    float64(4),
		"chunk_overlap": float64(1),
	})

	rows, err := Chunks()(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// step=3 over 10 words: [0:4) [3:7) then [6:10) reaches the end.
	want := []string{"a b c d", "d e f g", "g h i j"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(rows))
	}
	for i, row := range rows {
		if row[0] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], row[0])
		}
		if row[2] != int64(i) {
			t.Errorf("chunk %d: expected index %d, got %v", i, i, row[2])
		}
	}
	if rows[0][1] != int64(4) {
		t.Errorf("expected 4 words in first chunk, got %v", rows[0][1])
	}
}

func TestChunks_EmptyContent(t *testing.T) {
	rows, err := Chunks()(context.Background(), textInput("   ", []string{"text"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows for blank content, got %d", len(rows))
	}
}

func TestChunks_BadParams(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
	}{
		{"zero size", map[string]any{"chunk_size": float64(0)}},
		{"overlap >= size", map[string]any{"chunk_size": float64(4), "chunk_overlap": float64(4)}},
		{"fractional size", map[string]any{"chunk_size": 2.5}},
		{"non-numeric size", map[string]any{"chunk_size": "big"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Chunks()(context.Background(), textInput("a b c", []string{"text"}, tc.params))
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

type stubEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return s.embedFn(ctx, text)
}

func TestEmbeddings(t *testing.T) {
	emb := &stubEmbedder{
		embedFn: func(_ context.Context, text string) (domain.EmbeddingResult, error) {
			if text != "hello world" {
				t.Errorf("unexpected text %q", text)
			}
			return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 7}, nil
		},
	}

	rows, err := Embeddings(emb)(context.Background(), textInput("hello world", []string{"embedding", "text", "n_tokens"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	vec, ok := rows[0][0].([]float32)
	if !ok || len(vec) != 2 {
		t.Fatalf("expected []float32 embedding, got %T", rows[0][0])
	}
	if rows[0][1] != "hello world" {
		t.Errorf("expected source text, got %v", rows[0][1])
	}
	if rows[0][2] != int64(7) {
		t.Errorf("expected 7 tokens, got %v", rows[0][2])
	}
}

func TestEmbeddings_ProviderError(t *testing.T) {
	emb := &stubEmbedder{
		embedFn: func(_ context.Context, _ string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, domain.ErrEmbeddingProviderError
		},
	}

	_, err := Embeddings(emb)(context.Background(), textInput("x", []string{"embedding"}, nil))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(_ context.Context, _ Input) ([]Row, error) { return nil, nil }

	if err := r.Register("text.custom", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("text.custom", noop); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on duplicate, got %v", err)
	}
	if err := r.Register("", noop); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty path, got %v", err)
	}
	if err := r.Register("text.nil", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for nil handler, got %v", err)
	}

	if _, ok := r.Resolve("text.custom"); !ok {
		t.Error("expected to resolve registered path")
	}
	if _, ok := r.Resolve("text.unknown"); ok {
		t.Error("resolved unregistered path")
	}
}

func TestBuiltins(t *testing.T) {
	r := Builtins(&stubEmbedder{embedFn: func(_ context.Context, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, nil
	}})
	want := []string{PathChunks, PathCounter, PathEmbeddings}
	got := r.Paths()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paths[%d]: expected %q, got %q", i, want[i], got[i])
		}
	}

	withoutEmbedder := Builtins(nil)
	if _, ok := withoutEmbedder.Resolve(PathEmbeddings); ok {
		t.Error("embeddings must stay unregistered without an embedder")
	}
}
