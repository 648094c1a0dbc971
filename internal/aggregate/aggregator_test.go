package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/pkg/contracts/domain"
)

type fakeSources struct {
	mu    sync.Mutex
	calls map[domain.SectionKey]int

	profileErr      error
	profilePanic    bool
	engagementSlow  time.Duration
	conversationErr error
}

func newFakeSources() *fakeSources {
	return &fakeSources{calls: map[domain.SectionKey]int{}}
}

func (f *fakeSources) record(key domain.SectionKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
}

func (f *fakeSources) callCount(key domain.SectionKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeSources) FetchProfile(ctx context.Context, userID string) (*domain.ProfileSection, error) {
	f.record(domain.SectionProfile)
	if f.profilePanic {
		panic("corrupt profile row")
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &domain.ProfileSection{UserID: userID, DisplayName: "Jamie Doe", PersonalNotes: "private"}, nil
}

func (f *fakeSources) FetchCareerJourney(ctx context.Context, userID string) (*domain.CareerJourneySection, error) {
	f.record(domain.SectionCareerJourney)
	return &domain.CareerJourneySection{Milestones: []domain.JourneyMilestone{{Title: "Joined program"}}}, nil
}

func (f *fakeSources) FetchConversations(ctx context.Context, userID string) (*domain.ConversationSection, error) {
	f.record(domain.SectionConversationHistory)
	if f.conversationErr != nil {
		return nil, f.conversationErr
	}
	return &domain.ConversationSection{TotalConversations: 12, RawTranscript: "full text"}, nil
}

func (f *fakeSources) FetchRecommendations(ctx context.Context, userID string) (*domain.RecommendationsSection, error) {
	f.record(domain.SectionRecommendations)
	return &domain.RecommendationsSection{Cards: []domain.RecommendationCard{{Field: "Engineering", Score: 0.9}}}, nil
}

func (f *fakeSources) FetchPersonaHistory(ctx context.Context, userID string) (*domain.PersonaHistorySection, error) {
	f.record(domain.SectionPersonaHistory)
	return &domain.PersonaHistorySection{}, nil
}

func (f *fakeSources) FetchEngagement(ctx context.Context, userID string) (*domain.EngagementSection, error) {
	f.record(domain.SectionEngagement)
	if f.engagementSlow > 0 {
		select {
		case <-time.After(f.engagementSlow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.EngagementSection{TotalSessions: 40, TotalMinutes: 900}, nil
}

func (f *fakeSources) FetchSkills(ctx context.Context, userID string) (*domain.SkillsSection, error) {
	f.record(domain.SectionSkills)
	return &domain.SkillsSection{Skills: []domain.SkillMeasure{{Name: "Python", Level: 0.7, Baseline: 0.3}}}, nil
}

func (f *fakeSources) FetchRecommendationTracking(ctx context.Context, userID string) (*domain.RecommendationTrackingSection, error) {
	f.record(domain.SectionRecommendationTracking)
	return &domain.RecommendationTrackingSection{}, nil
}

func (f *fakeSources) bundle() Sources {
	return Sources{
		Profile:                f,
		CareerJourney:          f,
		Conversations:          f,
		Recommendations:        f,
		PersonaHistory:         f,
		Engagement:             f,
		Skills:                 f,
		RecommendationTracking: f,
	}
}

func allDetailedPolicy(userID string) domain.PrivacyConfiguration {
	sections := make(map[domain.SectionKey]domain.PrivacyLevel)
	for _, key := range domain.AllSectionKeys() {
		sections[key] = domain.PrivacyDetailed
	}
	return domain.PrivacyConfiguration{UserID: userID, ReportID: "rep-1", Sections: sections}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregateRequiresUserID(t *testing.T) {
	a := NewAggregator(newFakeSources().bundle(), testLogger())
	_, err := a.Aggregate(context.Background(), "", allDetailedPolicy(""))
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestAggregateFetchesAllIncludedSections(t *testing.T) {
	src := newFakeSources()
	a := NewAggregator(src.bundle(), testLogger())

	data, err := a.Aggregate(context.Background(), "user-1", allDetailedPolicy("user-1"))
	require.NoError(t, err)

	for _, key := range domain.AllSectionKeys() {
		assert.True(t, data.HasSection(key), "section %s missing", key)
		assert.Equal(t, 1, src.callCount(key))
	}
	assert.Equal(t, "Jamie Doe", data.Profile.DisplayName)
	assert.False(t, data.GeneratedAt.IsZero())
}

func TestAggregateSkipsExcludedSources(t *testing.T) {
	src := newFakeSources()
	a := NewAggregator(src.bundle(), testLogger())

	policy := allDetailedPolicy("user-1")
	policy.Sections[domain.SectionConversationHistory] = domain.PrivacyExclude
	policy.Sections[domain.SectionSkills] = domain.PrivacyExclude

	data, err := a.Aggregate(context.Background(), "user-1", policy)
	require.NoError(t, err)

	assert.Nil(t, data.Conversations)
	assert.Nil(t, data.Skills)
	assert.Equal(t, 0, src.callCount(domain.SectionConversationHistory), "excluded sections are never fetched")
	assert.Equal(t, 0, src.callCount(domain.SectionSkills))
	assert.NotNil(t, data.Profile)
}

func TestAggregateSubstitutesDefaultOnSourceFailure(t *testing.T) {
	src := newFakeSources()
	src.profileErr = errors.New("profile service unavailable")
	a := NewAggregator(src.bundle(), testLogger())

	data, err := a.Aggregate(context.Background(), "user-1", allDetailedPolicy("user-1"))
	require.NoError(t, err, "a single failed source must not fail aggregation")

	require.NotNil(t, data.Profile)
	assert.Equal(t, "Unknown User", data.Profile.DisplayName)
	assert.Equal(t, "user-1", data.Profile.UserID)

	// other sections carry real data
	require.NotNil(t, data.Engagement)
	assert.Equal(t, 40, data.Engagement.TotalSessions)
}

func TestAggregateSurvivesSourcePanic(t *testing.T) {
	src := newFakeSources()
	src.profilePanic = true
	a := NewAggregator(src.bundle(), testLogger())

	data, err := a.Aggregate(context.Background(), "user-1", allDetailedPolicy("user-1"))
	require.NoError(t, err)
	require.NotNil(t, data.Profile)
	assert.Equal(t, "Unknown User", data.Profile.DisplayName)
}

func TestAggregateTimesOutSlowSource(t *testing.T) {
	src := newFakeSources()
	src.engagementSlow = time.Second
	a := NewAggregator(src.bundle(), testLogger(), WithSourceTimeout(20*time.Millisecond))

	data, err := a.Aggregate(context.Background(), "user-1", allDetailedPolicy("user-1"))
	require.NoError(t, err)
	require.NotNil(t, data.Engagement)
	assert.Equal(t, 0, data.Engagement.TotalSessions, "timed-out source falls back to default")
}

func TestAggregateNilSourceFallsBack(t *testing.T) {
	src := newFakeSources()
	bundle := src.bundle()
	bundle.Skills = nil
	a := NewAggregator(bundle, testLogger())

	data, err := a.Aggregate(context.Background(), "user-1", allDetailedPolicy("user-1"))
	require.NoError(t, err)
	require.NotNil(t, data.Skills)
	assert.Empty(t, data.Skills.Skills)
}

func TestAggregateAppliesPrivacyBeforeCaching(t *testing.T) {
	src := newFakeSources()
	a := NewAggregator(src.bundle(), testLogger())

	policy := allDetailedPolicy("user-1")
	policy.Sections[domain.SectionProfile] = domain.PrivacySummary
	policy.Sections[domain.SectionConversationHistory] = domain.PrivacySummary

	data, err := a.Aggregate(context.Background(), "user-1", policy)
	require.NoError(t, err)
	assert.Empty(t, data.Profile.PersonalNotes, "detail-only field stripped at summary")
	assert.Empty(t, data.Conversations.RawTranscript)
	assert.Equal(t, 12, data.Conversations.TotalConversations)
}

func TestAggregateMemoizesPerUserAndPolicy(t *testing.T) {
	src := newFakeSources()
	a := NewAggregator(src.bundle(), testLogger())
	policy := allDetailedPolicy("user-1")

	_, err := a.Aggregate(context.Background(), "user-1", policy)
	require.NoError(t, err)
	_, err = a.Aggregate(context.Background(), "user-1", policy)
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount(domain.SectionProfile), "second call is served from cache")

	// a different policy is a different cache entry
	other := allDetailedPolicy("user-1")
	other.Sections[domain.SectionProfile] = domain.PrivacySummary
	_, err = a.Aggregate(context.Background(), "user-1", other)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(domain.SectionProfile))

	// invalidation clears every entry for the user
	a.Invalidate("user-1")
	_, err = a.Aggregate(context.Background(), "user-1", policy)
	require.NoError(t, err)
	assert.Equal(t, 3, src.callCount(domain.SectionProfile))
}

func TestHTTPSourcesFetchAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/user-1/profile":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user_id":"user-1","display_name":"Jamie Doe"}`))
		case "/users/user-1/engagement":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHTTPSources(srv.URL, srv.Client())

	profile, err := h.FetchProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Jamie Doe", profile.DisplayName)

	_, err = h.FetchEngagement(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")

	_, err = h.FetchSkills(context.Background(), "user-1")
	require.Error(t, err, "missing endpoint surfaces as an error, handled by the aggregator fallback")
}
