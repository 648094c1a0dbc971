// Package aggregate implements the data aggregation stage: it fans out to
// the per-section data sources, isolates their failures, applies the privacy
// policy and memoizes the filtered result.
package aggregate

import (
	"context"

	"reportgen/pkg/contracts/domain"
)

// ProfileSource serves the user's basic profile slice.
type ProfileSource interface {
	FetchProfile(ctx context.Context, userID string) (*domain.ProfileSection, error)
}

// CareerJourneySource serves the milestone timeline.
type CareerJourneySource interface {
	FetchCareerJourney(ctx context.Context, userID string) (*domain.CareerJourneySection, error)
}

// ConversationSource serves conversation history and derived topics.
type ConversationSource interface {
	FetchConversations(ctx context.Context, userID string) (*domain.ConversationSection, error)
}

// RecommendationsSource serves the recommendation cards.
type RecommendationsSource interface {
	FetchRecommendations(ctx context.Context, userID string) (*domain.RecommendationsSection, error)
}

// PersonaHistorySource serves the persona progression.
type PersonaHistorySource interface {
	FetchPersonaHistory(ctx context.Context, userID string) (*domain.PersonaHistorySection, error)
}

// EngagementSource serves bucketed activity metrics.
type EngagementSource interface {
	FetchEngagement(ctx context.Context, userID string) (*domain.EngagementSection, error)
}

// SkillsSource serves the skills-progression slice.
type SkillsSource interface {
	FetchSkills(ctx context.Context, userID string) (*domain.SkillsSection, error)
}

// RecommendationTrackingSource serves recommendation follow-through state.
type RecommendationTrackingSource interface {
	FetchRecommendationTracking(ctx context.Context, userID string) (*domain.RecommendationTrackingSection, error)
}

// Sources bundles the eight per-section collaborators. A nil source is
// treated the same as a failing one: the section falls back to its default.
type Sources struct {
	Profile                ProfileSource
	CareerJourney          CareerJourneySource
	Conversations          ConversationSource
	Recommendations        RecommendationsSource
	PersonaHistory         PersonaHistorySource
	Engagement             EngagementSource
	Skills                 SkillsSource
	RecommendationTracking RecommendationTrackingSource
}
