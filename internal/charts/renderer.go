// Package charts rasterizes aggregated section data into PNG chart images.
// The stage is best-effort: a failure here degrades the report to text-only
// instead of failing the job.
package charts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"reportgen/pkg/contracts/domain"
)

const (
	chartWidth  = 640
	chartHeight = 420
	radarSize   = 520
)

// palette cycles across series and slices.
var palette = []string{
	"#4C6EF5", "#12B886", "#FA5252", "#FAB005", "#7950F2",
	"#15AABF", "#E64980", "#82C91E",
}

// Renderer draws the baseline chart set from aggregated user data.
type Renderer struct {
	titleFace font.Face
	labelFace font.Face
	logger    *slog.Logger
}

// NewRenderer loads the embedded font and prepares the drawing faces.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	titleFace, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: 18, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	labelFace, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: 12, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	return &Renderer{
		titleFace: titleFace,
		labelFace: labelFace,
		logger:    logger.With(slog.String("component", "chart_renderer")),
	}, nil
}

// RenderCharts draws every chart whose backing section is present and
// non-empty. Sections removed by privacy produce no chart at all; any
// drawing panic degrades the whole stage to an empty list.
func (r *Renderer) RenderCharts(ctx context.Context, data *domain.AggregatedUserData) (out []domain.ChartImageData) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("chart rendering panicked, degrading to no charts", slog.Any("panic", rec))
			out = nil
		}
	}()
	if data == nil {
		return nil
	}

	type build struct {
		source  domain.SectionKey
		kind    domain.ChartType
		title   string
		desc    string
		draw    func() ([]byte, error)
		present bool
	}

	builds := []build{
		{
			source:  domain.SectionRecommendations,
			kind:    domain.ChartTypePie,
			title:   "Career Interest Distribution",
			desc:    "Recommendation strength by field",
			present: data.Recommendations != nil && len(data.Recommendations.Cards) > 0,
			draw:    func() ([]byte, error) { return r.drawInterestPie(data.Recommendations) },
		},
		{
			source:  domain.SectionEngagement,
			kind:    domain.ChartTypeLine,
			title:   "Engagement Over Time",
			desc:    "Sessions per period across the report window",
			present: data.Engagement != nil && len(data.Engagement.Timeline) > 1,
			draw:    func() ([]byte, error) { return r.drawEngagementLine(data.Engagement) },
		},
		{
			source:  domain.SectionSkills,
			kind:    domain.ChartTypeRadar,
			title:   "Skill Development",
			desc:    "Current level versus window baseline",
			present: data.Skills != nil && len(data.Skills.Skills) >= 3,
			draw:    func() ([]byte, error) { return r.drawSkillsRadar(data.Skills) },
		},
		{
			source:  domain.SectionConversationHistory,
			kind:    domain.ChartTypeBar,
			title:   "Top Conversation Topics",
			desc:    "Most discussed topics by mention count",
			present: data.Conversations != nil && len(data.Conversations.TopTopics) > 0,
			draw:    func() ([]byte, error) { return r.drawTopicsBar(data.Conversations) },
		},
	}

	for _, b := range builds {
		if ctx.Err() != nil {
			return out
		}
		if !b.present {
			continue
		}
		png, err := b.draw()
		if err != nil {
			r.logger.Warn("chart skipped",
				slog.String("chart", string(b.kind)),
				slog.String("section", string(b.source)),
				slog.String("error", err.Error()))
			continue
		}
		width, height := chartWidth, chartHeight
		if b.kind == domain.ChartTypeRadar {
			width, height = radarSize, radarSize
		}
		out = append(out, domain.ChartImageData{
			ID:          uuid.New().String(),
			ChartType:   b.kind,
			Title:       b.title,
			Description: b.desc,
			ImageBytes:  png,
			Width:       width,
			Height:      height,
			GeneratedAt: time.Now(),
			DataSource:  b.source,
		})
	}
	return out
}

func seriesColor(i int) string {
	return palette[i%len(palette)]
}
