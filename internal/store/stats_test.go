package store

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestStatsProviderCountsProfilesAndMerchants(t *testing.T) {
	profiles := &stubCountCollection{count: 12}
	links := &stubCountCollection{count: 5}

	provider := NewStatsProvider(profiles, links)

	ctx := context.Background()

	profileCount, err := provider.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("expected profile count to succeed, got error: %v", err)
	}
	if profileCount != 12 {
		t.Fatalf("expected 12 profiles, got %d", profileCount)
	}
	if profiles.calls != 1 {
		t.Fatalf("expected profiles count to be called once, got %d", profiles.calls)
	}

	merchantCount, err := provider.CountMerchants(ctx)
	if err != nil {
		t.Fatalf("expected merchant count to succeed, got error: %v", err)
	}
	if merchantCount != 5 {
		t.Fatalf("expected 5 merchants, got %d", merchantCount)
	}
	if links.calls != 1 {
		t.Fatalf("expected links count to be called once, got %d", links.calls)
	}
}

func TestStatsProviderRequiresContext(t *testing.T) {
	provider := NewStatsProvider(&stubCountCollection{}, &stubCountCollection{})

	if _, err := provider.CountProfiles(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := provider.CountMerchants(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestStatsProviderRequiresInitialization(t *testing.T) {
	var provider *StatsProvider

	if _, err := provider.CountProfiles(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := provider.CountMerchants(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func TestStatsProviderPropagatesErrors(t *testing.T) {
	expectedErr := errors.New("count failed")
	provider := NewStatsProvider(
		&stubCountCollection{err: expectedErr},
		&stubCountCollection{err: expectedErr},
	)

	if _, err := provider.CountProfiles(context.Background()); err == nil {
		t.Fatalf("expected error from profile count")
	}
	if _, err := provider.CountMerchants(context.Background()); err == nil {
		t.Fatalf("expected error from merchant count")
	}
}

type stubCountCollection struct {
	count int64
	err   error
	calls int
}

func (s *stubCountCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	s.calls++
	return s.count, s.err
}
