// Package privacy implements the per-section redaction transform applied to
// aggregated user data before it reaches any rendering stage.
//
// Every filter in this package is total (no error path) and deterministic:
// the same input and level always yield the same shape. Applying a filter to
// its own output is a no-op, which the aggregation stage relies on when it
// serves cached results.
package privacy

import (
	"reportgen/pkg/contracts/domain"
)

const (
	// SummaryMaxListEntries caps list-valued content at summary privacy.
	SummaryMaxListEntries = 3
	// SummaryMaxTextLen caps free-text fields at summary privacy. The
	// continuation marker is counted inside the limit so re-filtering a
	// summarized string leaves it unchanged.
	SummaryMaxTextLen = 100

	continuationMarker = "..."
)

// TruncateText reduces free text to at most SummaryMaxTextLen runes,
// replacing the tail with a continuation marker.
func TruncateText(s string) string {
	runes := []rune(s)
	if len(runes) <= SummaryMaxTextLen {
		return s
	}
	keep := SummaryMaxTextLen - len(continuationMarker)
	return string(runes[:keep]) + continuationMarker
}

func truncateList[T any](items []T) []T {
	if len(items) <= SummaryMaxListEntries {
		return items
	}
	return items[:SummaryMaxListEntries]
}

// Profile filters the profile section. PersonalNotes is detail-only.
func Profile(s *domain.ProfileSection, level domain.PrivacyLevel) *domain.ProfileSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := *s
		out.Bio = TruncateText(s.Bio)
		out.Interests = truncateList(s.Interests)
		out.Goals = truncateList(s.Goals)
		out.PersonalNotes = ""
		return &out
	default:
		return s
	}
}

// CareerJourney filters the milestone timeline section.
func CareerJourney(s *domain.CareerJourneySection, level domain.PrivacyLevel) *domain.CareerJourneySection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := domain.CareerJourneySection{
			Milestones: make([]domain.JourneyMilestone, 0, SummaryMaxListEntries),
		}
		for _, m := range truncateList(s.Milestones) {
			m.Detail = TruncateText(m.Detail)
			out.Milestones = append(out.Milestones, m)
		}
		return &out
	default:
		return s
	}
}

// Conversations filters the conversation-analytics section. RawTranscript is
// detail-only.
func Conversations(s *domain.ConversationSection, level domain.PrivacyLevel) *domain.ConversationSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := *s
		out.TopTopics = truncateList(s.TopTopics)
		out.SentimentSummary = TruncateText(s.SentimentSummary)
		out.RawTranscript = ""
		return &out
	default:
		return s
	}
}

// Recommendations filters the recommendation-card section.
func Recommendations(s *domain.RecommendationsSection, level domain.PrivacyLevel) *domain.RecommendationsSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := domain.RecommendationsSection{
			Cards: make([]domain.RecommendationCard, 0, SummaryMaxListEntries),
		}
		for _, c := range truncateList(s.Cards) {
			c.Reason = TruncateText(c.Reason)
			out.Cards = append(out.Cards, c)
		}
		return &out
	default:
		return s
	}
}

// PersonaHistory filters the persona-progression section.
func PersonaHistory(s *domain.PersonaHistorySection, level domain.PrivacyLevel) *domain.PersonaHistorySection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		return &domain.PersonaHistorySection{Snapshots: truncateList(s.Snapshots)}
	default:
		return s
	}
}

// Engagement filters the engagement-metrics section. Totals survive summary;
// the timeline is list-valued and truncated.
func Engagement(s *domain.EngagementSection, level domain.PrivacyLevel) *domain.EngagementSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := *s
		out.Timeline = truncateList(s.Timeline)
		return &out
	default:
		return s
	}
}

// Skills filters the skills-progression section.
func Skills(s *domain.SkillsSection, level domain.PrivacyLevel) *domain.SkillsSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		return &domain.SkillsSection{Skills: truncateList(s.Skills)}
	default:
		return s
	}
}

// RecommendationTracking filters the follow-through section. Notes are
// personal detail-only text.
func RecommendationTracking(s *domain.RecommendationTrackingSection, level domain.PrivacyLevel) *domain.RecommendationTrackingSection {
	switch level {
	case domain.PrivacyExclude:
		return nil
	case domain.PrivacySummary:
		if s == nil {
			return nil
		}
		out := domain.RecommendationTrackingSection{
			Tracked: make([]domain.TrackedRecommendation, 0, SummaryMaxListEntries),
		}
		for _, t := range truncateList(s.Tracked) {
			t.Notes = ""
			out.Tracked = append(out.Tracked, t)
		}
		return &out
	default:
		return s
	}
}

// Apply filters every section of data according to the policy and returns a
// new aggregate. The input is not mutated.
func Apply(data *domain.AggregatedUserData, policy domain.PrivacyConfiguration) *domain.AggregatedUserData {
	if data == nil {
		return nil
	}
	return &domain.AggregatedUserData{
		UserID:                 data.UserID,
		GeneratedAt:            data.GeneratedAt,
		Profile:                Profile(data.Profile, policy.LevelFor(domain.SectionProfile)),
		CareerJourney:          CareerJourney(data.CareerJourney, policy.LevelFor(domain.SectionCareerJourney)),
		Conversations:          Conversations(data.Conversations, policy.LevelFor(domain.SectionConversationHistory)),
		Recommendations:        Recommendations(data.Recommendations, policy.LevelFor(domain.SectionRecommendations)),
		PersonaHistory:         PersonaHistory(data.PersonaHistory, policy.LevelFor(domain.SectionPersonaHistory)),
		Engagement:             Engagement(data.Engagement, policy.LevelFor(domain.SectionEngagement)),
		Skills:                 Skills(data.Skills, policy.LevelFor(domain.SectionSkills)),
		RecommendationTracking: RecommendationTracking(data.RecommendationTracking, policy.LevelFor(domain.SectionRecommendationTracking)),
	}
}
