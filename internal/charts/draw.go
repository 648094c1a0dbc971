package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"reportgen/pkg/contracts/domain"
)

func (r *Renderer) newCanvas(w, h int, title string) *gg.Context {
	dc := gg.NewContext(w, h)
	dc.SetHexColor("#FFFFFF")
	dc.Clear()
	dc.SetFontFace(r.titleFace)
	dc.SetHexColor("#212529")
	dc.DrawStringAnchored(title, float64(w)/2, 26, 0.5, 0.5)
	dc.SetFontFace(r.labelFace)
	return dc
}

func encodePNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// drawInterestPie renders recommendation strength per field as pie slices
// with a side legend.
func (r *Renderer) drawInterestPie(s *domain.RecommendationsSection) ([]byte, error) {
	type slice struct {
		field string
		value float64
	}
	index := map[string]int{}
	var slices []slice
	for _, card := range s.Cards {
		if card.Score <= 0 {
			continue
		}
		if i, ok := index[card.Field]; ok {
			slices[i].value += card.Score
		} else {
			index[card.Field] = len(slices)
			slices = append(slices, slice{field: card.Field, value: card.Score})
		}
	}
	total := 0.0
	for _, sl := range slices {
		total += sl.value
	}
	if total <= 0 {
		return nil, errors.New("no positive recommendation scores")
	}

	dc := r.newCanvas(chartWidth, chartHeight, "Career Interest Distribution")
	cx, cy := 230.0, float64(chartHeight)/2+14
	radius := 140.0

	angle := -math.Pi / 2
	for i, sl := range slices {
		span := sl.value / total * 2 * math.Pi
		dc.SetHexColor(seriesColor(i))
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, radius, angle, angle+span)
		dc.ClosePath()
		dc.Fill()
		angle += span
	}

	legendX := 420.0
	legendY := 90.0
	for i, sl := range slices {
		y := legendY + float64(i)*24
		dc.SetHexColor(seriesColor(i))
		dc.DrawRectangle(legendX, y-8, 14, 14)
		dc.Fill()
		dc.SetHexColor("#343A40")
		label := fmt.Sprintf("%s (%.0f%%)", sl.field, sl.value/total*100)
		dc.DrawStringAnchored(label, legendX+22, y, 0, 0.5)
	}
	return encodePNG(dc)
}

// drawEngagementLine renders sessions per period as a polyline over the
// report window.
func (r *Renderer) drawEngagementLine(s *domain.EngagementSection) ([]byte, error) {
	points := s.Timeline
	if len(points) < 2 {
		return nil, errors.New("not enough timeline points")
	}

	dc := r.newCanvas(chartWidth, chartHeight, "Engagement Over Time")

	left, right := 56.0, float64(chartWidth)-24
	top, bottom := 56.0, float64(chartHeight)-48

	maxSessions := 1
	for _, p := range points {
		if p.Sessions > maxSessions {
			maxSessions = p.Sessions
		}
	}

	// axes
	dc.SetHexColor("#ADB5BD")
	dc.SetLineWidth(1)
	dc.DrawLine(left, top, left, bottom)
	dc.DrawLine(left, bottom, right, bottom)
	dc.Stroke()

	dc.SetHexColor("#495057")
	dc.DrawStringAnchored("0", left-10, bottom, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%d", maxSessions), left-10, top, 1, 0.5)
	dc.DrawStringAnchored(points[0].Date.Format("Jan 2"), left, bottom+16, 0, 0.5)
	dc.DrawStringAnchored(points[len(points)-1].Date.Format("Jan 2"), right, bottom+16, 1, 0.5)

	xAt := func(i int) float64 {
		return left + float64(i)/float64(len(points)-1)*(right-left)
	}
	yAt := func(sessions int) float64 {
		return bottom - float64(sessions)/float64(maxSessions)*(bottom-top)
	}

	dc.SetHexColor(seriesColor(0))
	dc.SetLineWidth(2)
	for i, p := range points {
		if i == 0 {
			dc.MoveTo(xAt(i), yAt(p.Sessions))
		} else {
			dc.LineTo(xAt(i), yAt(p.Sessions))
		}
	}
	dc.Stroke()

	for i, p := range points {
		dc.DrawCircle(xAt(i), yAt(p.Sessions), 3)
		dc.Fill()
	}
	return encodePNG(dc)
}

// drawSkillsRadar renders current level against the window baseline on one
// spoke per skill.
func (r *Renderer) drawSkillsRadar(s *domain.SkillsSection) ([]byte, error) {
	skills := s.Skills
	if len(skills) < 3 {
		return nil, errors.New("radar needs at least three skills")
	}

	dc := r.newCanvas(radarSize, radarSize, "Skill Development")
	cx, cy := float64(radarSize)/2, float64(radarSize)/2+16
	radius := float64(radarSize)/2 - 88

	n := len(skills)
	angleAt := func(i int) float64 {
		return -math.Pi/2 + float64(i)/float64(n)*2*math.Pi
	}
	pointAt := func(i int, v float64) (float64, float64) {
		v = math.Max(0, math.Min(1, v))
		a := angleAt(i)
		return cx + math.Cos(a)*radius*v, cy + math.Sin(a)*radius*v
	}

	// grid rings and spokes
	dc.SetHexColor("#DEE2E6")
	dc.SetLineWidth(1)
	for _, ring := range []float64{0.25, 0.5, 0.75, 1.0} {
		for i := 0; i <= n; i++ {
			x, y := pointAt(i%n, ring)
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()
	}
	for i := 0; i < n; i++ {
		x, y := pointAt(i, 1)
		dc.DrawLine(cx, cy, x, y)
	}
	dc.Stroke()

	// skill labels just outside the outer ring
	dc.SetHexColor("#343A40")
	for i, sk := range skills {
		a := angleAt(i)
		lx := cx + math.Cos(a)*(radius+20)
		ly := cy + math.Sin(a)*(radius+20)
		dc.DrawStringAnchored(sk.Name, lx, ly, 0.5, 0.5)
	}

	drawPolygon := func(value func(domain.SkillMeasure) float64) {
		for i, sk := range skills {
			x, y := pointAt(i, value(sk))
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
	}

	// baseline underneath, current level on top
	dc.SetRGBA(0.67, 0.71, 0.74, 0.35)
	drawPolygon(func(sk domain.SkillMeasure) float64 { return sk.Baseline })
	dc.FillPreserve()
	dc.SetRGBA(0.49, 0.54, 0.57, 1)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	dc.SetRGBA(0.30, 0.43, 0.96, 0.30)
	drawPolygon(func(sk domain.SkillMeasure) float64 { return sk.Level })
	dc.FillPreserve()
	dc.SetRGBA(0.30, 0.43, 0.96, 1)
	dc.SetLineWidth(2)
	dc.Stroke()

	return encodePNG(dc)
}

// drawTopicsBar renders the most discussed conversation topics as vertical
// bars.
func (r *Renderer) drawTopicsBar(s *domain.ConversationSection) ([]byte, error) {
	topics := s.TopTopics
	if len(topics) > 6 {
		topics = topics[:6]
	}
	maxCount := 0
	for _, t := range topics {
		if t.Count > maxCount {
			maxCount = t.Count
		}
	}
	if maxCount <= 0 {
		return nil, errors.New("no topic counts")
	}

	dc := r.newCanvas(chartWidth, chartHeight, "Top Conversation Topics")

	left, right := 56.0, float64(chartWidth)-24
	top, bottom := 56.0, float64(chartHeight)-56

	dc.SetHexColor("#ADB5BD")
	dc.SetLineWidth(1)
	dc.DrawLine(left, bottom, right, bottom)
	dc.Stroke()

	slot := (right - left) / float64(len(topics))
	barWidth := slot * 0.6
	for i, t := range topics {
		h := float64(t.Count) / float64(maxCount) * (bottom - top)
		x := left + float64(i)*slot + (slot-barWidth)/2
		dc.SetHexColor(seriesColor(i))
		dc.DrawRectangle(x, bottom-h, barWidth, h)
		dc.Fill()

		dc.SetHexColor("#343A40")
		label := t.Topic
		if len(label) > 12 {
			label = label[:12]
		}
		dc.DrawStringAnchored(label, x+barWidth/2, bottom+16, 0.5, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("%d", t.Count), x+barWidth/2, bottom-h-10, 0.5, 0.5)
	}
	return encodePNG(dc)
}
