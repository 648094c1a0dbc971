package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"reportgen/internal/privacy"
	"reportgen/pkg/contracts/domain"
)

const (
	// DefaultSourceTimeout bounds each individual source fetch.
	DefaultSourceTimeout = 15 * time.Second

	// DefaultCacheTTL is how long a filtered aggregate stays memoized.
	DefaultCacheTTL = 5 * time.Minute

	cacheCleanupInterval = 10 * time.Minute
)

// ErrEmptyUserID rejects aggregation requests without a subject.
var ErrEmptyUserID = errors.New("aggregate: userID is required")

// Aggregator fans out to the section sources, substitutes documented
// defaults for failing ones, applies the privacy policy and memoizes the
// result per (user, policy) pair. Returned aggregates are shared with the
// cache and must be treated as read-only by downstream stages.
type Aggregator struct {
	sources Sources
	timeout time.Duration
	cache   *gocache.Cache
	logger  *slog.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithSourceTimeout overrides the per-source fetch timeout.
func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithCacheTTL overrides how long filtered aggregates are memoized.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Aggregator) { a.cache = gocache.New(ttl, cacheCleanupInterval) }
}

// NewAggregator creates the aggregation stage over the given sources.
func NewAggregator(sources Sources, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		sources: sources,
		timeout: DefaultSourceTimeout,
		cache:   gocache.New(DefaultCacheTTL, cacheCleanupInterval),
		logger:  logger.With(slog.String("component", "aggregator")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func cacheKey(userID string, policy domain.PrivacyConfiguration) string {
	return userID + "|" + policy.Signature()
}

// Aggregate produces the privacy-filtered aggregate for one user. Individual
// source failures degrade to per-section defaults; only invalid input fails
// the call.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, policy domain.PrivacyConfiguration) (*domain.AggregatedUserData, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	key := cacheKey(userID, policy)
	if cached, ok := a.cache.Get(key); ok {
		a.logger.Debug("aggregate cache hit", slog.String("user_id", userID))
		return cached.(*domain.AggregatedUserData), nil
	}

	raw := &domain.AggregatedUserData{
		UserID:      userID,
		GeneratedAt: time.Now(),
	}

	// Excluded sections are never fetched; exclusion starts at the source
	// boundary, not at the filter.
	g, gctx := errgroup.WithContext(ctx)

	if policy.LevelFor(domain.SectionProfile) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.Profile = a.fetchProfile(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionCareerJourney) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.CareerJourney = a.fetchCareerJourney(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionConversationHistory) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.Conversations = a.fetchConversations(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionRecommendations) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.Recommendations = a.fetchRecommendations(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionPersonaHistory) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.PersonaHistory = a.fetchPersonaHistory(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionEngagement) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.Engagement = a.fetchEngagement(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionSkills) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.Skills = a.fetchSkills(gctx, userID)
			return nil
		})
	}
	if policy.LevelFor(domain.SectionRecommendationTracking) != domain.PrivacyExclude {
		g.Go(func() error {
			raw.RecommendationTracking = a.fetchRecommendationTracking(gctx, userID)
			return nil
		})
	}

	_ = g.Wait() // goroutines absorb their own errors

	filtered := privacy.Apply(raw, policy)
	a.cache.Set(key, filtered, gocache.DefaultExpiration)
	return filtered, nil
}

// Invalidate drops every cached aggregate for the user, across all policies.
func (a *Aggregator) Invalidate(userID string) {
	prefix := userID + "|"
	for key := range a.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			a.cache.Delete(key)
		}
	}
}

// fetchSection runs one source call under the per-source timeout, converting
// panics into errors so a misbehaving source cannot take the job down.
func fetchSection[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (*T, error)) (out *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("source panicked: %v", r)
		}
	}()
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(fetchCtx)
}

func (a *Aggregator) logFallback(userID string, key domain.SectionKey, err error) {
	a.logger.Warn("source failed, using section default",
		slog.String("user_id", userID),
		slog.String("section", string(key)),
		slog.String("error", err.Error()))
}

func (a *Aggregator) fetchProfile(ctx context.Context, userID string) *domain.ProfileSection {
	if a.sources.Profile == nil {
		a.logFallback(userID, domain.SectionProfile, errors.New("source not configured"))
		return defaultProfile(userID)
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.ProfileSection, error) {
		return a.sources.Profile.FetchProfile(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionProfile, err)
		return defaultProfile(userID)
	}
	return s
}

func (a *Aggregator) fetchCareerJourney(ctx context.Context, userID string) *domain.CareerJourneySection {
	if a.sources.CareerJourney == nil {
		a.logFallback(userID, domain.SectionCareerJourney, errors.New("source not configured"))
		return defaultCareerJourney()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.CareerJourneySection, error) {
		return a.sources.CareerJourney.FetchCareerJourney(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionCareerJourney, err)
		return defaultCareerJourney()
	}
	return s
}

func (a *Aggregator) fetchConversations(ctx context.Context, userID string) *domain.ConversationSection {
	if a.sources.Conversations == nil {
		a.logFallback(userID, domain.SectionConversationHistory, errors.New("source not configured"))
		return defaultConversations()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.ConversationSection, error) {
		return a.sources.Conversations.FetchConversations(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionConversationHistory, err)
		return defaultConversations()
	}
	return s
}

func (a *Aggregator) fetchRecommendations(ctx context.Context, userID string) *domain.RecommendationsSection {
	if a.sources.Recommendations == nil {
		a.logFallback(userID, domain.SectionRecommendations, errors.New("source not configured"))
		return defaultRecommendations()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.RecommendationsSection, error) {
		return a.sources.Recommendations.FetchRecommendations(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionRecommendations, err)
		return defaultRecommendations()
	}
	return s
}

func (a *Aggregator) fetchPersonaHistory(ctx context.Context, userID string) *domain.PersonaHistorySection {
	if a.sources.PersonaHistory == nil {
		a.logFallback(userID, domain.SectionPersonaHistory, errors.New("source not configured"))
		return defaultPersonaHistory()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.PersonaHistorySection, error) {
		return a.sources.PersonaHistory.FetchPersonaHistory(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionPersonaHistory, err)
		return defaultPersonaHistory()
	}
	return s
}

func (a *Aggregator) fetchEngagement(ctx context.Context, userID string) *domain.EngagementSection {
	if a.sources.Engagement == nil {
		a.logFallback(userID, domain.SectionEngagement, errors.New("source not configured"))
		return defaultEngagement()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.EngagementSection, error) {
		return a.sources.Engagement.FetchEngagement(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionEngagement, err)
		return defaultEngagement()
	}
	return s
}

func (a *Aggregator) fetchSkills(ctx context.Context, userID string) *domain.SkillsSection {
	if a.sources.Skills == nil {
		a.logFallback(userID, domain.SectionSkills, errors.New("source not configured"))
		return defaultSkills()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.SkillsSection, error) {
		return a.sources.Skills.FetchSkills(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionSkills, err)
		return defaultSkills()
	}
	return s
}

func (a *Aggregator) fetchRecommendationTracking(ctx context.Context, userID string) *domain.RecommendationTrackingSection {
	if a.sources.RecommendationTracking == nil {
		a.logFallback(userID, domain.SectionRecommendationTracking, errors.New("source not configured"))
		return defaultRecommendationTracking()
	}
	s, err := fetchSection(ctx, a.timeout, func(c context.Context) (*domain.RecommendationTrackingSection, error) {
		return a.sources.RecommendationTracking.FetchRecommendationTracking(c, userID)
	})
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("source returned no data")
		}
		a.logFallback(userID, domain.SectionRecommendationTracking, err)
		return defaultRecommendationTracking()
	}
	return s
}
