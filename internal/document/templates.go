package document

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"reportgen/pkg/contracts/domain"
)

// chartView is one chart prepared for inline HTML embedding.
type chartView struct {
	Title       string
	Description string
	B64         string
	Width       int
	Height      int
}

// templateData is the single input shape every HTML template receives.
type templateData struct {
	Title        string
	Audience     string
	Intro        string
	OrgName      string
	PrimaryColor string
	LogoURL      string
	GeneratedAt  time.Time
	RangeStart   time.Time
	RangeEnd     time.Time
	Data         *domain.AggregatedUserData
	Charts       []chartView
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("January 2, 2006") },
	"pct":  func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
}

// layoutHTML is the shared document skeleton. Each section renders only when
// it survived privacy filtering; an absent section leaves no trace in the
// output.
const layoutHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #212529; margin: 40px; }
  h1 { color: {{.PrimaryColor}}; border-bottom: 3px solid {{.PrimaryColor}}; padding-bottom: 8px; }
  h2 { color: {{.PrimaryColor}}; margin-top: 32px; }
  .meta { color: #868e96; font-size: 12px; }
  .chart { margin: 16px 0; text-align: center; }
  .chart img { max-width: 100%; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #dee2e6; }
  .logo { max-height: 48px; }
</style>
</head>
<body>
{{if .LogoURL}}<img class="logo" src="{{.LogoURL}}" alt="{{.OrgName}}">{{end}}
<h1>{{.Title}}</h1>
<p class="meta">{{.OrgName}} &middot; {{.Audience}} report &middot; {{date .RangeStart}} to {{date .RangeEnd}} &middot; generated {{date .GeneratedAt}}</p>
<p>{{.Intro}}</p>

{{with .Data.Profile}}
<h2>Profile</h2>
<p><strong>{{.DisplayName}}</strong></p>
{{if .Bio}}<p>{{.Bio}}</p>{{end}}
{{if .Interests}}<p>Interests: {{range $i, $v := .Interests}}{{if $i}}, {{end}}{{$v}}{{end}}</p>{{end}}
{{if .Goals}}<p>Goals: {{range $i, $v := .Goals}}{{if $i}}, {{end}}{{$v}}{{end}}</p>{{end}}
{{if .PersonalNotes}}<p>{{.PersonalNotes}}</p>{{end}}
{{end}}

{{with .Data.CareerJourney}}{{if .Milestones}}
<h2>Career Journey</h2>
<table>
<tr><th>Milestone</th><th>Detail</th><th>Date</th></tr>
{{range .Milestones}}<tr><td>{{.Title}}</td><td>{{.Detail}}</td><td>{{date .OccurredAt}}</td></tr>{{end}}
</table>
{{end}}{{end}}

{{with .Data.Conversations}}
<h2>Conversations</h2>
<p>{{.TotalConversations}} conversations in the report window.{{if .SentimentSummary}} {{.SentimentSummary}}{{end}}</p>
{{if .RawTranscript}}<p>{{.RawTranscript}}</p>{{end}}
{{end}}

{{with .Data.Recommendations}}{{if .Cards}}
<h2>Recommendations</h2>
<table>
<tr><th>Field</th><th>Strength</th><th>Reason</th></tr>
{{range .Cards}}<tr><td>{{.Field}}</td><td>{{pct .Score}}</td><td>{{.Reason}}</td></tr>{{end}}
</table>
{{end}}{{end}}

{{with .Data.PersonaHistory}}{{if .Snapshots}}
<h2>Persona Progression</h2>
<table>
<tr><th>Persona</th><th>Confidence</th><th>Recorded</th></tr>
{{range .Snapshots}}<tr><td>{{.Persona}}</td><td>{{pct .Confidence}}</td><td>{{date .RecordedAt}}</td></tr>{{end}}
</table>
{{end}}{{end}}

{{with .Data.Engagement}}
<h2>Engagement</h2>
<p>{{.TotalSessions}} sessions, {{.TotalMinutes}} minutes of activity.</p>
{{end}}

{{with .Data.Skills}}{{if .Skills}}
<h2>Skills</h2>
<table>
<tr><th>Skill</th><th>Level</th><th>Window start</th></tr>
{{range .Skills}}<tr><td>{{.Name}}</td><td>{{pct .Level}}</td><td>{{pct .Baseline}}</td></tr>{{end}}
</table>
{{end}}{{end}}

{{with .Data.RecommendationTracking}}{{if .Tracked}}
<h2>Recommendation Follow-Through</h2>
<table>
<tr><th>Field</th><th>Status</th><th>Notes</th></tr>
{{range .Tracked}}<tr><td>{{.Field}}</td><td>{{.Status}}</td><td>{{.Notes}}</td></tr>{{end}}
</table>
{{end}}{{end}}

{{if .Charts}}
<h2>Charts</h2>
{{range .Charts}}
<div class="chart">
<h3>{{.Title}}</h3>
<img src="data:image/png;base64,{{.B64}}" width="{{.Width}}" height="{{.Height}}" alt="{{.Title}}">
{{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
</div>
{{end}}
{{end}}
</body>
</html>`

// audienceIntro frames the report for its reader. The default intro covers
// unknown types so assembly never fails on template selection.
var audienceIntro = map[domain.ReportType]struct {
	audience string
	intro    string
}{
	domain.ReportTypeParent: {
		audience: "Parent",
		intro:    "This report summarizes your child's career exploration activity, interests and progress over the selected period.",
	},
	domain.ReportTypeCounselor: {
		audience: "Counselor",
		intro:    "This report provides counseling-relevant detail on the student's exploration patterns, persona progression and engagement.",
	},
	domain.ReportTypeMentor: {
		audience: "Mentor",
		intro:    "This report highlights the mentee's goals, skill development and recommendation follow-through to support mentoring conversations.",
	},
}

var defaultIntro = struct {
	audience string
	intro    string
}{
	audience: "Progress",
	intro:    "This report summarizes the user's career exploration activity over the selected period.",
}

var docTemplate = template.Must(template.New("report").Funcs(templateFuncs).Parse(layoutHTML))

func buildTemplateData(data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration) templateData {
	framing, ok := audienceIntro[cfg.ReportType]
	if !ok {
		framing = defaultIntro
	}

	org := cfg.Branding.OrgName
	if org == "" {
		org = defaultOrgName
	}
	color := cfg.Branding.PrimaryColor
	if color == "" {
		color = "#4C6EF5"
	}

	views := make([]chartView, 0, len(charts))
	for _, c := range charts {
		views = append(views, chartView{
			Title:       c.Title,
			Description: c.Description,
			B64:         base64.StdEncoding.EncodeToString(c.ImageBytes),
			Width:       c.Width,
			Height:      c.Height,
		})
	}

	return templateData{
		Title:        cfg.Title,
		Audience:     framing.audience,
		Intro:        framing.intro,
		OrgName:      org,
		PrimaryColor: color,
		LogoURL:      cfg.Branding.LogoURL,
		GeneratedAt:  data.GeneratedAt,
		RangeStart:   cfg.DateRange.Start,
		RangeEnd:     cfg.DateRange.End,
		Data:         data,
		Charts:       views,
	}
}
