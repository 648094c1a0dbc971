package charts

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/pkg/contracts/domain"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func fullData() *domain.AggregatedUserData {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return &domain.AggregatedUserData{
		UserID:      "user-1",
		GeneratedAt: time.Now(),
		Recommendations: &domain.RecommendationsSection{Cards: []domain.RecommendationCard{
			{Field: "Engineering", Score: 0.9},
			{Field: "Design", Score: 0.6},
			{Field: "Engineering", Score: 0.3},
		}},
		Engagement: &domain.EngagementSection{
			TotalSessions: 18,
			Timeline: []domain.EngagementPoint{
				{Date: base, Sessions: 3, Minutes: 60},
				{Date: base.AddDate(0, 0, 7), Sessions: 7, Minutes: 140},
				{Date: base.AddDate(0, 0, 14), Sessions: 8, Minutes: 150},
			},
		},
		Skills: &domain.SkillsSection{Skills: []domain.SkillMeasure{
			{Name: "Python", Level: 0.7, Baseline: 0.3},
			{Name: "Writing", Level: 0.5, Baseline: 0.4},
			{Name: "Statistics", Level: 0.6, Baseline: 0.2},
		}},
		Conversations: &domain.ConversationSection{
			TotalConversations: 12,
			TopTopics: []domain.TopicCount{
				{Topic: "universities", Count: 9},
				{Topic: "internships", Count: 5},
			},
		},
	}
}

func sourcesOf(charts []domain.ChartImageData) map[domain.SectionKey]bool {
	out := make(map[domain.SectionKey]bool, len(charts))
	for _, c := range charts {
		out[c.DataSource] = true
	}
	return out
}

func TestRenderChartsFullSet(t *testing.T) {
	r := newTestRenderer(t)

	charts := r.RenderCharts(context.Background(), fullData())
	require.Len(t, charts, 4)

	srcs := sourcesOf(charts)
	assert.True(t, srcs[domain.SectionRecommendations])
	assert.True(t, srcs[domain.SectionEngagement])
	assert.True(t, srcs[domain.SectionSkills])
	assert.True(t, srcs[domain.SectionConversationHistory])

	for _, c := range charts {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Title)
		assert.False(t, c.GeneratedAt.IsZero())

		img, err := png.Decode(bytes.NewReader(c.ImageBytes))
		require.NoError(t, err, "chart %s must be a valid PNG", c.Title)
		assert.Equal(t, c.Width, img.Bounds().Dx())
		assert.Equal(t, c.Height, img.Bounds().Dy())
	}
}

func TestRenderChartsSkipsMissingSections(t *testing.T) {
	r := newTestRenderer(t)

	data := fullData()
	data.Recommendations = nil // excluded by privacy
	data.Skills = nil

	charts := r.RenderCharts(context.Background(), data)
	srcs := sourcesOf(charts)
	assert.False(t, srcs[domain.SectionRecommendations], "no chart may reference an excluded section")
	assert.False(t, srcs[domain.SectionSkills])
	assert.True(t, srcs[domain.SectionEngagement])
	assert.True(t, srcs[domain.SectionConversationHistory])
}

func TestRenderChartsSkipsEmptyData(t *testing.T) {
	r := newTestRenderer(t)

	data := fullData()
	data.Recommendations = &domain.RecommendationsSection{Cards: []domain.RecommendationCard{}}
	data.Engagement = &domain.EngagementSection{Timeline: []domain.EngagementPoint{{Date: time.Now(), Sessions: 1}}}
	data.Skills = &domain.SkillsSection{Skills: []domain.SkillMeasure{{Name: "Python"}, {Name: "Go"}}}
	data.Conversations = &domain.ConversationSection{TopTopics: nil}

	charts := r.RenderCharts(context.Background(), data)
	assert.Empty(t, charts, "sections without drawable data produce no charts")
}

func TestRenderChartsNilData(t *testing.T) {
	r := newTestRenderer(t)
	assert.Nil(t, r.RenderCharts(context.Background(), nil))
}

func TestRenderChartsStopsOnCancelledContext(t *testing.T) {
	r := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, r.RenderCharts(ctx, fullData()))
}
