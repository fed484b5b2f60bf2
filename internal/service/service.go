package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/cache"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/logger"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/xid"
)

// ErrInvalidQuery marks a malformed listing, chart or report request.
var ErrInvalidQuery = errors.New("invalid query")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Location is the dashboard timezone for weekday charts and anomaly
	// windows. Nil means UTC.
	Location   *time.Location
	Thresholds analytics.Thresholds
	Collation  language.Tag
	// ReferenceTTL bounds how long cached clients and instruments are served.
	ReferenceTTL time.Duration
	// Now is the clock; nil means time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

type Service struct {
	repo         store.Repository
	reference    cache.ReferenceCache
	location     *time.Location
	thresholds   analytics.Thresholds
	collation    language.Tag
	referenceTTL time.Duration
	now          func() time.Time
	log          *zap.Logger
}

func New(repo store.Repository, reference cache.ReferenceCache, opts Options) *Service {
	if reference == nil {
		reference = cache.NoopReferenceCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Thresholds == (analytics.Thresholds{}) {
		opts.Thresholds = analytics.DefaultThresholds()
	}
	if opts.Collation == language.Und {
		opts.Collation = language.English
	}
	if opts.ReferenceTTL <= 0 {
		opts.ReferenceTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:         repo,
		reference:    reference,
		location:     opts.Location,
		thresholds:   opts.Thresholds,
		collation:    opts.Collation,
		referenceTTL: opts.ReferenceTTL,
		now:          opts.Now,
		log:          opts.Logger,
	}
}

// Location is the configured dashboard timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	ref, err := s.referenceData(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Clients, nil
}

func (s *Service) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	ref, err := s.referenceData(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Instruments, nil
}

// ListAuditLogs returns the entries of one UTC day, today when date is empty.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, ErrInvalidQuery
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// referenceData serves clients and instruments from the cache, loading and
// storing them on a miss. Cache failures degrade to a repository read.
func (s *Service) referenceData(ctx context.Context) (*domain.ReferenceData, error) {
	log := s.logger(ctx)

	cached, ok, err := s.reference.Get(ctx, cache.ReferenceKey)
	if err != nil {
		log.Warn("reference cache read failed", zap.Error(err))
	}
	if ok && cached != nil {
		return cached, nil
	}

	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	instruments, err := s.repo.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	ref := &domain.ReferenceData{Clients: clients, Instruments: instruments}

	if err := s.reference.Set(ctx, cache.ReferenceKey, ref, s.referenceTTL); err != nil {
		log.Warn("reference cache write failed", zap.Error(err))
	}
	return ref, nil
}

// RefreshReferenceData drops the cached clients and instruments and reloads
// them, for when reference rows were edited outside this service.
func (s *Service) RefreshReferenceData(ctx context.Context) (*domain.ReferenceData, error) {
	if err := s.reference.Delete(ctx, cache.ReferenceKey); err != nil {
		return nil, fmt.Errorf("invalidate reference cache: %w", err)
	}
	ref, err := s.referenceData(ctx)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "reference_refresh", "reference", cache.ReferenceKey,
		fmt.Sprintf("clients=%d,instruments=%d", len(ref.Clients), len(ref.Instruments)))
	return ref, nil
}

func (s *Service) enrich(ctx context.Context, sales []domain.Sale) ([]domain.EnrichedSale, error) {
	ref, err := s.referenceData(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.Enrich(sales, ref.Clients, ref.Instruments), nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger(ctx).Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

// logger prefers the request-scoped logger so entries carry the request id.
func (s *Service) logger(ctx context.Context) *zap.Logger {
	if logger.RequestID(ctx) != "" {
		return logger.FromContext(ctx)
	}
	return s.log
}
