// Package loom provides a Go client for the loom HTTP API: collections of
// documents fanned out through transformers into typed indexes, connected by
// filtered bindings.
//
//	client, _ := loom.New("http://localhost:9100", loom.WithAPIKey("secret"))
//
//	client.Collections().Create(ctx, "articles",
//	    loom.WithCollectionDescription("news articles"),
//	)
//	client.Transformers().Create(ctx, "text.counter", "text.counter", "")
//	client.Indexes().Create(ctx, "counts", map[string]loom.Field{
//	    "text":    {Type: "text"},
//	    "n_words": {Type: "int", Optional: true},
//	})
//	client.Bindings().Create(ctx, loom.NewBinding{
//	    CollectionID:  "articles",
//	    TransformerID: "text.counter",
//	    IndexID:       "counts",
//	})
//
//	created, _ := client.Documents("articles").Add(ctx, "hello world")
//	fmt.Println(created.Tasks) // work dispatched for this document
//
// Errors map to sentinels: use errors.Is(err, loom.ErrNotFound) and friends,
// or errors.As with *loom.APIError for the HTTP status and error code.
package loom
