package cache

import (
	"context"
	"time"

	"salesdesk/backend/internal/domain"
)

// ReferenceKey is the single cache entry holding clients and instruments.
const ReferenceKey = "salesdesk:reference:v1"

type ReferenceCache interface {
	Get(ctx context.Context, key string) (*domain.ReferenceData, bool, error)
	Set(ctx context.Context, key string, value *domain.ReferenceData, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReferenceCache struct{}

func (NoopReferenceCache) Get(_ context.Context, _ string) (*domain.ReferenceData, bool, error) {
	return nil, false, nil
}

func (NoopReferenceCache) Set(_ context.Context, _ string, _ *domain.ReferenceData, _ time.Duration) error {
	return nil
}

func (NoopReferenceCache) Delete(_ context.Context, _ string) error {
	return nil
}
