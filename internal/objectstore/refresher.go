package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/loom/internal/domain/document"
)

// Refresh defaults.
const (
	DefaultTTL    = time.Hour
	DefaultMargin = 5 * time.Minute
)

// presigner is the consumer interface over the minio client.
type presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Refresher re-signs document content locators that are missing, unreadable,
// or inside the expiry margin. Documents without an object key pass through
// untouched.
type Refresher struct {
	store  presigner
	bucket string
	ttl    time.Duration
	margin time.Duration
	logger *zap.Logger
}

// NewRefresher creates a locator refresher over one bucket.
func NewRefresher(store presigner, bucket string, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:  store,
		bucket: bucket,
		ttl:    DefaultTTL,
		margin: DefaultMargin,
		logger: logger,
	}
}

// WithTTL configures the presign lifetime and the refresh margin.
func (r *Refresher) WithTTL(ttl, margin time.Duration) *Refresher {
	if ttl > 0 {
		r.ttl = ttl
	}
	if margin > 0 {
		r.margin = margin
	}
	return r
}

// Refresh returns the document with a fresh content URL. The bool reports
// whether a re-sign happened.
func (r *Refresher) Refresh(ctx context.Context, doc domdoc.Document) (domdoc.Document, bool, error) {
	key, ok := doc.ObjectKey()
	if !ok {
		return doc, false, nil
	}

	if rawURL, ok := doc.ContentURL(); ok {
		stale, err := ExpiresWithin(rawURL, r.margin)
		if err == nil && !stale {
			return doc, false, nil
		}
		if err != nil {
			r.logger.Warn("Unreadable content locator, re-signing",
				zap.String("document_id", doc.ID().String()),
				zap.Error(err),
			)
		}
	}

	signed, err := r.store.PresignedGetObject(ctx, r.bucket, key, r.ttl, nil)
	if err != nil {
		return doc, false, fmt.Errorf("presign %q: %w", key, err)
	}

	doc.SetMetaValue(domdoc.MetaURL, signed.String())
	return doc, true, nil
}
