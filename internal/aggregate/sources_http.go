package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"reportgen/pkg/contracts/domain"
)

// HTTPSources implements every section source against the user-data service
// REST API. One client serves all eight sections; each section is a distinct
// endpoint so a slow or broken one cannot poison the others.
type HTTPSources struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSources creates the HTTP-backed source set. client may be nil to
// use http.DefaultClient; per-fetch deadlines come from the caller's context.
func NewHTTPSources(baseURL string, client *http.Client) *HTTPSources {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSources{baseURL: baseURL, client: client}
}

// Bundle returns the source set wired to this client for every section.
func (h *HTTPSources) Bundle() Sources {
	return Sources{
		Profile:                h,
		CareerJourney:          h,
		Conversations:          h,
		Recommendations:        h,
		PersonaHistory:         h,
		Engagement:             h,
		Skills:                 h,
		RecommendationTracking: h,
	}
}

func (h *HTTPSources) getJSON(ctx context.Context, userID, resource string, out interface{}) error {
	endpoint := fmt.Sprintf("%s/users/%s/%s", h.baseURL, url.PathEscape(userID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", resource, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}

// FetchProfile implements ProfileSource.
func (h *HTTPSources) FetchProfile(ctx context.Context, userID string) (*domain.ProfileSection, error) {
	var s domain.ProfileSection
	if err := h.getJSON(ctx, userID, "profile", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchCareerJourney implements CareerJourneySource.
func (h *HTTPSources) FetchCareerJourney(ctx context.Context, userID string) (*domain.CareerJourneySection, error) {
	var s domain.CareerJourneySection
	if err := h.getJSON(ctx, userID, "career-journey", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchConversations implements ConversationSource.
func (h *HTTPSources) FetchConversations(ctx context.Context, userID string) (*domain.ConversationSection, error) {
	var s domain.ConversationSection
	if err := h.getJSON(ctx, userID, "conversations", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchRecommendations implements RecommendationsSource.
func (h *HTTPSources) FetchRecommendations(ctx context.Context, userID string) (*domain.RecommendationsSection, error) {
	var s domain.RecommendationsSection
	if err := h.getJSON(ctx, userID, "recommendations", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchPersonaHistory implements PersonaHistorySource.
func (h *HTTPSources) FetchPersonaHistory(ctx context.Context, userID string) (*domain.PersonaHistorySection, error) {
	var s domain.PersonaHistorySection
	if err := h.getJSON(ctx, userID, "persona-history", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchEngagement implements EngagementSource.
func (h *HTTPSources) FetchEngagement(ctx context.Context, userID string) (*domain.EngagementSection, error) {
	var s domain.EngagementSection
	if err := h.getJSON(ctx, userID, "engagement", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchSkills implements SkillsSource.
func (h *HTTPSources) FetchSkills(ctx context.Context, userID string) (*domain.SkillsSection, error) {
	var s domain.SkillsSection
	if err := h.getJSON(ctx, userID, "skills", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchRecommendationTracking implements RecommendationTrackingSource.
func (h *HTTPSources) FetchRecommendationTracking(ctx context.Context, userID string) (*domain.RecommendationTrackingSection, error) {
	var s domain.RecommendationTrackingSection
	if err := h.getJSON(ctx, userID, "recommendation-tracking", &s); err != nil {
		return nil, err
	}
	return &s, nil
}
