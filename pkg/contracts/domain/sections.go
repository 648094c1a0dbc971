package domain

import (
	"time"
)

// SectionKey names one independently-fetched slice of a user's aggregated
// data. Keys double as chart traceability tags.
type SectionKey string

const (
	SectionProfile                SectionKey = "profile"
	SectionCareerJourney          SectionKey = "careerJourney"
	SectionConversationHistory    SectionKey = "conversationHistory"
	SectionRecommendations        SectionKey = "recommendations"
	SectionPersonaHistory         SectionKey = "personaHistory"
	SectionEngagement             SectionKey = "engagement"
	SectionSkills                 SectionKey = "skills"
	SectionRecommendationTracking SectionKey = "recommendationTracking"
)

// AllSectionKeys lists every section in aggregation order.
func AllSectionKeys() []SectionKey {
	return []SectionKey{
		SectionProfile,
		SectionCareerJourney,
		SectionConversationHistory,
		SectionRecommendations,
		SectionPersonaHistory,
		SectionEngagement,
		SectionSkills,
		SectionRecommendationTracking,
	}
}

// ProfileSection is the user's basic profile slice.
type ProfileSection struct {
	UserID        string   `json:"user_id"`
	DisplayName   string   `json:"display_name"`
	Bio           string   `json:"bio,omitempty"`
	Interests     []string `json:"interests,omitempty"`
	Goals         []string `json:"goals,omitempty"`
	PersonalNotes string   `json:"personal_notes,omitempty"`
}

// JourneyMilestone is one entry on the career-journey timeline.
type JourneyMilestone struct {
	Title      string    `json:"title"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CareerJourneySection is the ordered milestone timeline.
type CareerJourneySection struct {
	Milestones []JourneyMilestone `json:"milestones"`
}

// TopicCount is one conversation topic with its mention count.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// ConversationSection summarizes assistant conversations. RawTranscript is
// detail-only and is stripped at summary privacy.
type ConversationSection struct {
	TotalConversations int          `json:"total_conversations"`
	TopTopics          []TopicCount `json:"top_topics,omitempty"`
	SentimentSummary   string       `json:"sentiment_summary,omitempty"`
	RawTranscript      string       `json:"raw_transcript,omitempty"`
}

// RecommendationCard is one career recommendation shown to the user.
type RecommendationCard struct {
	Field     string  `json:"field"`
	Reason    string  `json:"reason,omitempty"`
	Score     float64 `json:"score"`
	Viewed    bool    `json:"viewed"`
	Bookmarked bool   `json:"bookmarked"`
}

// RecommendationsSection holds the user's recommendation cards.
type RecommendationsSection struct {
	Cards []RecommendationCard `json:"cards"`
}

// PersonaSnapshot is one point in the persona-progression history.
type PersonaSnapshot struct {
	Persona    string    `json:"persona"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PersonaHistorySection is the chronological persona progression.
type PersonaHistorySection struct {
	Snapshots []PersonaSnapshot `json:"snapshots"`
}

// EngagementPoint is one bucketed activity measurement.
type EngagementPoint struct {
	Date     time.Time `json:"date"`
	Sessions int       `json:"sessions"`
	Minutes  int       `json:"minutes"`
}

// EngagementSection summarizes platform activity over the report window.
type EngagementSection struct {
	TotalSessions int               `json:"total_sessions"`
	TotalMinutes  int               `json:"total_minutes"`
	Timeline      []EngagementPoint `json:"timeline,omitempty"`
}

// SkillMeasure is one skill with its current and starting proficiency.
type SkillMeasure struct {
	Name     string  `json:"name"`
	Level    float64 `json:"level"`    // 0..1
	Baseline float64 `json:"baseline"` // 0..1 at window start
}

// SkillsSection is the skills-progression slice.
type SkillsSection struct {
	Skills []SkillMeasure `json:"skills"`
}

// TrackedRecommendation records follow-through on one recommendation.
type TrackedRecommendation struct {
	Field     string     `json:"field"`
	Status    string     `json:"status"` // suggested|explored|pursuing|dismissed
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// RecommendationTrackingSection holds recommendation follow-through state.
type RecommendationTrackingSection struct {
	Tracked []TrackedRecommendation `json:"tracked"`
}

// AggregatedUserData is the intermediate product of the aggregation stage.
// Each section is independently nil when excluded by privacy; a failed source
// yields that section's documented default instead. The value is job-local
// and never persisted.
type AggregatedUserData struct {
	UserID                 string                         `json:"user_id"`
	GeneratedAt            time.Time                      `json:"generated_at"`
	Profile                *ProfileSection                `json:"profile,omitempty"`
	CareerJourney          *CareerJourneySection          `json:"career_journey,omitempty"`
	Conversations          *ConversationSection           `json:"conversations,omitempty"`
	Recommendations        *RecommendationsSection        `json:"recommendations,omitempty"`
	PersonaHistory         *PersonaHistorySection         `json:"persona_history,omitempty"`
	Engagement             *EngagementSection             `json:"engagement,omitempty"`
	Skills                 *SkillsSection                 `json:"skills,omitempty"`
	RecommendationTracking *RecommendationTrackingSection `json:"recommendation_tracking,omitempty"`
}

// HasSection reports whether the given section survived privacy filtering.
func (a *AggregatedUserData) HasSection(key SectionKey) bool {
	switch key {
	case SectionProfile:
		return a.Profile != nil
	case SectionCareerJourney:
		return a.CareerJourney != nil
	case SectionConversationHistory:
		return a.Conversations != nil
	case SectionRecommendations:
		return a.Recommendations != nil
	case SectionPersonaHistory:
		return a.PersonaHistory != nil
	case SectionEngagement:
		return a.Engagement != nil
	case SectionSkills:
		return a.Skills != nil
	case SectionRecommendationTracking:
		return a.RecommendationTracking != nil
	}
	return false
}
