package binding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
	dombind "github.com/kailas-cloud/loom/internal/domain/binding"
	domcol "github.com/kailas-cloud/loom/internal/domain/collection"
	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
	"github.com/kailas-cloud/loom/internal/domain/filter"
	"github.com/kailas-cloud/loom/internal/domain/index"
	"github.com/kailas-cloud/loom/internal/domain/transformer"
	"github.com/kailas-cloud/loom/internal/task"
)

func fieldsParams() map[string]any {
	return map[string]any{dombind.ParamIndexFields: []string{"n_words"}}
}

func typeEqualsFilter(t *testing.T, value string) *filter.Filter {
	t.Helper()
	cond, err := filter.NewCondition("meta.type", filter.OpEquals, value, false)
	if err != nil {
		t.Fatalf("NewCondition: %v", err)
	}
	f, err := filter.New([]filter.Condition{cond}, filter.CombinationAnd)
	if err != nil {
		t.Fatalf("New filter: %v", err)
	}
	return &f
}

func TestProcessBinding_UnresolvableTransformerFailsBeforeDispatch(t *testing.T) {
	cases := map[string]func(ctx context.Context, id string) (transformer.Transformer, error){
		"missing": func(_ context.Context, _ string) (transformer.Transformer, error) {
			return transformer.Transformer{}, domain.ErrNotFound
		},
		"no path": func(_ context.Context, id string) (transformer.Transformer, error) {
			now := time.Now()
			return transformer.Reconstruct(id, "", "declarative only", now, now), nil
		},
	}
	for name, getFn := range cases {
		t.Run(name, func(t *testing.T) {
			svc, env := newTestService(t)
			env.transformers.getFn = getFn
			env.documents.listFn = singlePage(testDoc(t, "content", nil))

			_, manifest, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if len(manifest) != 0 || len(env.dispatcher.calls) != 0 {
				t.Error("nothing may be dispatched when a precondition fails")
			}
		})
	}
}

func TestProcessBinding_MissingIndexDefinition(t *testing.T) {
	svc, env := newTestService(t)
	env.indexes.getFn = func(_ context.Context, id string) (index.Index, error) {
		return index.Index{}, domain.ErrNotFound
	}

	_, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	var confErr *domain.ConfigurationError
	if !errors.As(err, &confErr) || confErr.BindingID != 7 {
		t.Errorf("expected the binding id in the error, got %+v", confErr)
	}
}

func TestProcessBinding_MissingTable(t *testing.T) {
	svc, env := newTestService(t)
	env.schemas.existsFn = func(_ context.Context, _ string) (bool, error) {
		return false, nil
	}

	_, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without the create flag, got %v", err)
	}
	if len(env.schemas.created) != 0 {
		t.Error("table must not be created when the flag is off")
	}

	b, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), true)
	if err != nil {
		t.Fatalf("expected table materialization, got %v", err)
	}
	if len(env.schemas.created) != 1 || env.schemas.created[0] != "word_stats" {
		t.Errorf("expected word_stats table creation, got %v", env.schemas.created)
	}
	if b.Status() != dombind.StatusOn {
		t.Errorf("expected on status, got %q", b.Status())
	}
}

func TestProcessBinding_AutoPopulatesIndexFields(t *testing.T) {
	svc, env := newTestService(t)

	b, _, err := svc.ProcessBinding(context.Background(), testBinding(t, nil), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}

	fields, ok := b.IndexFields()
	if !ok {
		t.Fatal("expected auto-populated destination fields")
	}
	want := []string{"text", "n_words"}
	if len(fields) != len(want) {
		t.Fatalf("fields: got %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d: got %q, want %q", i, fields[i], want[i])
		}
	}

	if len(env.repo.updated) == 0 {
		t.Fatal("auto-populated fields must be persisted")
	}
	persisted, ok := env.repo.updated[0].IndexFields()
	if !ok || len(persisted) != 2 {
		t.Errorf("first update must carry the field list, got %v", persisted)
	}
}

func TestProcessBinding_KeepsExplicitIndexFields(t *testing.T) {
	svc, env := newTestService(t)
	env.documents.listFn = singlePage(testDoc(t, "one two", nil))

	b, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	fields, _ := b.IndexFields()
	if len(fields) != 1 || fields[0] != "n_words" {
		t.Errorf("explicit fields must survive, got %v", fields)
	}
}

func TestProcessBinding_ManifestAndStatusFlip(t *testing.T) {
	svc, env := newTestService(t)

	docs := []domdoc.Document{
		testDoc(t, "alpha", nil),
		testDoc(t, "beta", nil),
		testDoc(t, "gamma", nil),
	}
	env.documents.listFn = singlePage(docs...)

	b, manifest, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(manifest) != 3 {
		t.Fatalf("expected one entry per document, got %d", len(manifest))
	}
	for i, ref := range manifest {
		if ref.DocumentID != docs[i].ID().String() {
			t.Errorf("entry %d: got document %s, want %s", i, ref.DocumentID, docs[i].ID())
		}
		if ref.TaskID == "" {
			t.Errorf("entry %d: missing task id", i)
		}
	}
	if b.Status() != dombind.StatusOn {
		t.Errorf("expected on status, got %q", b.Status())
	}

	call := env.dispatcher.calls[0]
	if call.band != task.BandTransform {
		t.Errorf("expected transform band, got %q", call.band)
	}
	if call.msg.Name != transformer.TaskNamePrefix+"counter1" {
		t.Errorf("unexpected task name %q", call.msg.Name)
	}
	if call.msg.BindingID != 7 || call.msg.IndexID != "word_stats" {
		t.Errorf("unexpected routing: binding %d index %q", call.msg.BindingID, call.msg.IndexID)
	}
	if _, err := dombind.ExtractIndexFields(call.msg.Params); err != nil {
		t.Errorf("dispatched params must carry the field list: %v", err)
	}
}

func TestProcessBinding_ZeroMatchesStillActivates(t *testing.T) {
	svc, env := newTestService(t)

	b := testBinding(t, fieldsParams())
	b.SetFilter(typeEqualsFilter(t, "video"))
	env.documents.listFn = singlePage(
		testDoc(t, "a", map[string]any{"type": "image"}),
		testDoc(t, "b", nil),
	)

	b, manifest, err := svc.ProcessBinding(context.Background(), b, false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(manifest) != 0 {
		t.Fatalf("expected empty manifest, got %d entries", len(manifest))
	}
	if b.Status() != dombind.StatusOn {
		t.Errorf("zero matches must still activate, got %q", b.Status())
	}
	if len(env.repo.updated) != 1 || env.repo.updated[0].Status() != dombind.StatusOn {
		t.Error("activation must be persisted")
	}
}

func TestProcessBinding_FilterSelectsSubset(t *testing.T) {
	svc, env := newTestService(t)

	b := testBinding(t, fieldsParams())
	b.SetFilter(typeEqualsFilter(t, "image"))
	match := testDoc(t, "matching", map[string]any{"type": "image"})
	env.documents.listFn = singlePage(
		match,
		testDoc(t, "other", map[string]any{"type": "video"}),
		testDoc(t, "bare", nil),
	)

	_, manifest, err := svc.ProcessBinding(context.Background(), b, false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(manifest) != 1 || manifest[0].DocumentID != match.ID().String() {
		t.Fatalf("expected only the matching document, got %v", manifest)
	}
}

func TestProcessBinding_WalksCursorPages(t *testing.T) {
	svc, env := newTestService(t)

	pageOne := testDoc(t, "one", nil)
	pageTwo := testDoc(t, "two", nil)
	var cursors []string
	env.documents.listFn = func(_ context.Context, _, cursor string, limit int) ([]domdoc.Document, string, error) {
		cursors = append(cursors, cursor)
		if limit != listPageSize {
			t.Errorf("unexpected page size %d", limit)
		}
		if cursor == "" {
			return []domdoc.Document{pageOne}, "next-1", nil
		}
		return []domdoc.Document{pageTwo}, "", nil
	}

	_, manifest, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("expected both pages dispatched, got %d", len(manifest))
	}
	if len(cursors) != 2 || cursors[0] != "" || cursors[1] != "next-1" {
		t.Errorf("unexpected cursor walk %v", cursors)
	}
}

func TestProcessBinding_RefreshesFileLocators(t *testing.T) {
	svc, env := newTestService(t)

	env.collections.getFn = func(_ context.Context, id string) (domcol.Collection, error) {
		cfg := map[string]any{domcol.ConfigStoreFiles: true}
		return domcol.Reconstruct(id, "", cfg, time.Now(), time.Now()), nil
	}
	doc := testDoc(t, "", map[string]any{"object_key": "docs/a.pdf"})
	env.documents.listFn = singlePage(doc)

	_, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(env.locators.refreshed) != 1 || env.locators.refreshed[0] != doc.ID() {
		t.Errorf("expected locator refresh for %s, got %v", doc.ID(), env.locators.refreshed)
	}
}

func TestProcessBinding_SkipsRefreshForPlainCollections(t *testing.T) {
	svc, env := newTestService(t)
	env.documents.listFn = singlePage(testDoc(t, "plain", nil))

	_, _, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if len(env.locators.refreshed) != 0 {
		t.Error("plain collections must not hit the object store")
	}
}

func TestProcessBinding_PartialManifestOnDispatchFailure(t *testing.T) {
	svc, env := newTestService(t)

	env.documents.listFn = singlePage(
		testDoc(t, "first", nil),
		testDoc(t, "second", nil),
	)
	queueDown := errors.New("queue down")
	env.dispatcher.dispatchFn = func(_ context.Context, _ task.Band, msg task.Message) (string, error) {
		if len(env.dispatcher.calls) > 1 {
			return "", queueDown
		}
		return "task-" + msg.Document.ID, nil
	}

	b, manifest, err := svc.ProcessBinding(context.Background(), testBinding(t, fieldsParams()), false)
	if !errors.Is(err, queueDown) {
		t.Fatalf("expected the dispatch error, got %v", err)
	}
	if len(manifest) != 1 {
		t.Fatalf("already dispatched tasks must stay in the manifest, got %d", len(manifest))
	}
	if b.Status() == dombind.StatusOn {
		t.Error("a failed round must not activate the binding")
	}
}

func TestProcessBinding_BandOverride(t *testing.T) {
	svc, env := newTestService(t)

	now := time.Now()
	b := dombind.Reconstruct(7, "articles", "counter1", "word_stats", "",
		map[string]any{dombind.ParamBand: "interactive"}, fieldsParams(),
		nil, dombind.StatusPending, now, now)
	env.documents.listFn = singlePage(testDoc(t, "x", nil))

	_, _, err := svc.ProcessBinding(context.Background(), b, false)
	if err != nil {
		t.Fatalf("ProcessBinding: %v", err)
	}
	if env.dispatcher.calls[0].band != task.BandInteractive {
		t.Errorf("expected interactive band, got %q", env.dispatcher.calls[0].band)
	}
}

func TestBandFor_InvalidOverrideFallsBack(t *testing.T) {
	now := time.Now()
	b := dombind.Reconstruct(7, "c", "t", "i", "",
		map[string]any{dombind.ParamBand: "turbo"}, nil, nil, dombind.StatusOn, now, now)
	if got := bandFor(b); got != task.BandTransform {
		t.Errorf("expected transform fallback, got %q", got)
	}
}

func TestGenerateTasksForDocument(t *testing.T) {
	svc, env := newTestService(t)

	now := time.Now()
	plain := dombind.Reconstruct(1, "articles", "counter1", "word_stats", "",
		nil, fieldsParams(), nil, dombind.StatusOn, now, now)
	filtered := dombind.Reconstruct(2, "articles", "counter1", "word_stats", "",
		nil, fieldsParams(), typeEqualsFilter(t, "video"), dombind.StatusOn, now, now)

	var askedStatuses []dombind.Status
	env.repo.byCollFn = func(_ context.Context, collectionID string, statuses ...dombind.Status) ([]dombind.Binding, error) {
		if collectionID != "articles" {
			t.Errorf("unexpected collection %q", collectionID)
		}
		askedStatuses = statuses
		return []dombind.Binding{plain, filtered}, nil
	}

	doc := testDoc(t, "content", map[string]any{"type": "image"})
	manifest, err := svc.GenerateTasksForDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("GenerateTasksForDocument: %v", err)
	}

	if len(askedStatuses) != 1 || askedStatuses[0] != dombind.StatusOn {
		t.Errorf("only on bindings may be considered, asked for %v", askedStatuses)
	}
	if len(manifest) != 1 || manifest[0].DocumentID != doc.ID().String() {
		t.Fatalf("expected one task from the unfiltered binding, got %v", manifest)
	}
	if env.dispatcher.calls[0].msg.BindingID != 1 {
		t.Errorf("expected binding 1 task, got %d", env.dispatcher.calls[0].msg.BindingID)
	}
}

func TestGenerateTasksForDocument_SkipsBindingWithoutFields(t *testing.T) {
	svc, env := newTestService(t)

	now := time.Now()
	bare := dombind.Reconstruct(3, "articles", "counter1", "word_stats", "",
		nil, nil, nil, dombind.StatusOn, now, now)
	env.repo.byCollFn = func(_ context.Context, _ string, _ ...dombind.Status) ([]dombind.Binding, error) {
		return []dombind.Binding{bare}, nil
	}

	manifest, err := svc.GenerateTasksForDocument(context.Background(), testDoc(t, "x", nil))
	if err != nil {
		t.Fatalf("GenerateTasksForDocument: %v", err)
	}
	if len(manifest) != 0 || len(env.dispatcher.calls) != 0 {
		t.Error("bindings without destination fields must be skipped")
	}
}

func TestCreate_VerifiesReferences(t *testing.T) {
	svc, env := newTestService(t)
	env.collections.getFn = func(_ context.Context, id string) (domcol.Collection, error) {
		return domcol.Collection{}, domain.ErrNotFound
	}

	b := testBinding(t, fieldsParams())
	if err := svc.Create(context.Background(), &b); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing collection, got %v", err)
	}
}

func TestCreate_AssignsID(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := dombind.New("articles", "counter1", "word_stats", "", nil, fieldsParams(), nil)
	if err != nil {
		t.Fatalf("New binding: %v", err)
	}
	if err := svc.Create(context.Background(), &b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID() != 1 {
		t.Errorf("expected assigned id, got %d", b.ID())
	}
}
