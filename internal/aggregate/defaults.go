package aggregate

import (
	"reportgen/pkg/contracts/domain"
)

// Per-section fallbacks used when a source fails, times out or panics. The
// report renders with these instead of failing the job; each default is an
// honest empty value, never synthesized data.

func defaultProfile(userID string) *domain.ProfileSection {
	return &domain.ProfileSection{
		UserID:      userID,
		DisplayName: "Unknown User",
	}
}

func defaultCareerJourney() *domain.CareerJourneySection {
	return &domain.CareerJourneySection{Milestones: []domain.JourneyMilestone{}}
}

func defaultConversations() *domain.ConversationSection {
	return &domain.ConversationSection{TotalConversations: 0}
}

func defaultRecommendations() *domain.RecommendationsSection {
	return &domain.RecommendationsSection{Cards: []domain.RecommendationCard{}}
}

func defaultPersonaHistory() *domain.PersonaHistorySection {
	return &domain.PersonaHistorySection{Snapshots: []domain.PersonaSnapshot{}}
}

func defaultEngagement() *domain.EngagementSection {
	return &domain.EngagementSection{TotalSessions: 0, TotalMinutes: 0}
}

func defaultSkills() *domain.SkillsSection {
	return &domain.SkillsSection{Skills: []domain.SkillMeasure{}}
}

func defaultRecommendationTracking() *domain.RecommendationTrackingSection {
	return &domain.RecommendationTrackingSection{Tracked: []domain.TrackedRecommendation{}}
}
