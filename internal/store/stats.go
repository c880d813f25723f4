package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	profiles countCollection
	links    countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided profiles
// and merchant catalog collections.
func NewStatsProvider(profiles, links countCollection) *StatsProvider {
	return &StatsProvider{
		profiles: profiles,
		links:    links,
	}
}

// CountProfiles returns the number of registered Telegram users.
func (p *StatsProvider) CountProfiles(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.profiles == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.profiles.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}

	return count, nil
}

// CountMerchants returns the number of merchants in the catalog.
func (p *StatsProvider) CountMerchants(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.links == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.links.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count merchants: %w", err)
	}

	return count, nil
}
