package objectstore

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/loom/internal/domain"
)

func TestExpiry_AmzV4(t *testing.T) {
	u := "https://bucket.s3.amazonaws.com/docs/a.pdf?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Date=20260825T120000Z&X-Amz-Expires=3600&X-Amz-Signature=abc"

	at, err := Expiry(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("expected %s, got %s", want, at)
	}
}

func TestExpiry_GoogV4(t *testing.T) {
	u := "https://storage.googleapis.com/bucket/docs/a.pdf?X-Goog-Algorithm=GOOG4-RSA-SHA256&X-Goog-Date=20260825T060000Z&X-Goog-Expires=600&X-Goog-Signature=abc"

	at, err := Expiry(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 8, 25, 6, 10, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("expected %s, got %s", want, at)
	}
}

func TestExpiry_V2(t *testing.T) {
	u := "https://bucket.s3.amazonaws.com/docs/a.pdf?AWSAccessKeyId=AKID&Expires=1787000400&Signature=abc"

	at, err := Expiry(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.Unix() != 1787000400 {
		t.Errorf("expected unix 1787000400, got %d", at.Unix())
	}
}

func TestExpiry_NoExpiration(t *testing.T) {
	_, err := Expiry("https://bucket.s3.amazonaws.com/docs/a.pdf")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExpiry_MalformedDate(t *testing.T) {
	u := "https://bucket.s3.amazonaws.com/a?X-Amz-Date=yesterday&X-Amz-Expires=60"
	_, err := Expiry(u)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExpiry_MalformedExpires(t *testing.T) {
	u := "https://bucket.s3.amazonaws.com/a?X-Amz-Date=20260825T120000Z&X-Amz-Expires=soon"
	_, err := Expiry(u)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExpiresWithin(t *testing.T) {
	past := "https://b.s3.amazonaws.com/a?X-Amz-Date=20200101T000000Z&X-Amz-Expires=60"
	stale, err := ExpiresWithin(past, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stale {
		t.Error("expected long-expired url to be stale")
	}

	future := "https://b.s3.amazonaws.com/a?X-Amz-Date=" +
		time.Now().UTC().Format(v4TimeLayout) + "&X-Amz-Expires=3600"
	stale, err = ExpiresWithin(future, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale {
		t.Error("expected freshly signed url to be valid")
	}
}

func TestExpiresWithin_MarginCrossesExpiry(t *testing.T) {
	// Signed now for 10 minutes: fine with a 1m margin, stale with a 15m one.
	u := "https://b.s3.amazonaws.com/a?X-Amz-Date=" +
		time.Now().UTC().Format(v4TimeLayout) + "&X-Amz-Expires=600"

	stale, err := ExpiresWithin(u, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale {
		t.Error("expected url to be valid with a 1m margin")
	}

	stale, err = ExpiresWithin(u, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stale {
		t.Error("expected url to be stale with a 15m margin")
	}
}
