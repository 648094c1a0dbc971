package domain

import (
	"time"
)

// ChartType identifies the visual form of a rendered chart.
type ChartType string

const (
	ChartTypePie   ChartType = "pie"
	ChartTypeLine  ChartType = "line"
	ChartTypeRadar ChartType = "radar"
	ChartTypeBar   ChartType = "bar"
	ChartTypeArea  ChartType = "area"
)

// ChartImageData is one rendered raster chart, owned by the job that
// produced it. DataSource traces the chart back to the aggregated section it
// was derived from so privacy exclusions can be verified end to end.
type ChartImageData struct {
	ID          string     `json:"id"`
	ChartType   ChartType  `json:"chart_type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ImageBytes  []byte     `json:"-"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	GeneratedAt time.Time  `json:"generated_at"`
	DataSource  SectionKey `json:"data_source"`
}
