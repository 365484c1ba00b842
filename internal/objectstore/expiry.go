// Package objectstore refreshes presigned content locators on stored-file
// documents before dispatch.
package objectstore

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

// V4 signature query-parameter families (AWS and GCS).
var signerStyles = [...]string{"Amz", "Goog"}

// v4TimeLayout is the compact ISO 8601 form used by X-Amz-Date / X-Goog-Date.
const v4TimeLayout = "20060102T150405Z"

// Expiry extracts the expiration instant from a presigned URL. V4 signatures
// carry X-<Svc>-Date plus X-<Svc>-Expires seconds, V2 signatures a unix
// Expires. A URL with no recognizable expiration is a validation error.
func Expiry(rawURL string) (time.Time, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse presigned url: %w", err)
	}
	q := u.Query()

	for _, svc := range signerStyles {
		expires := q.Get("X-" + svc + "-Expires")
		if expires == "" {
			continue
		}
		seconds, err := strconv.Atoi(expires)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: X-%s-Expires %q is not a number", domain.ErrValidation, svc, expires)
		}
		issued, err := time.Parse(v4TimeLayout, q.Get("X-"+svc+"-Date"))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: X-%s-Date: %v", domain.ErrValidation, svc, err)
		}
		return issued.Add(time.Duration(seconds) * time.Second), nil
	}

	if expires := q.Get("Expires"); expires != "" {
		ts, err := strconv.ParseInt(expires, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: Expires %q is not a unix timestamp", domain.ErrValidation, expires)
		}
		return time.Unix(ts, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: no expiration in presigned url", domain.ErrValidation)
}

// ExpiresWithin reports whether the URL stops being valid before now+margin.
func ExpiresWithin(rawURL string, margin time.Duration) (bool, error) {
	at, err := Expiry(rawURL)
	if err != nil {
		return false, err
	}
	return at.Before(time.Now().UTC().Add(margin)), nil
}
