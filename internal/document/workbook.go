package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"reportgen/pkg/contracts/domain"
)

const overviewSheet = "Overview"

// buildWorkbook renders the employer report as an XLSX workbook: one
// overview sheet, one sheet per surviving tabular section and a charts
// sheet. Sections removed by privacy get no sheet.
func buildWorkbook(data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", overviewSheet); err != nil {
		return nil, fmt.Errorf("rename overview sheet: %w", err)
	}

	org := cfg.Branding.OrgName
	if org == "" {
		org = defaultOrgName
	}
	setRows(f, overviewSheet, 1, [][]interface{}{
		{"Report", cfg.Title},
		{"Organization", org},
		{"Window start", cfg.DateRange.Start.Format("2006-01-02")},
		{"Window end", cfg.DateRange.End.Format("2006-01-02")},
		{"Generated", data.GeneratedAt.Format("2006-01-02")},
	})

	if p := data.Profile; p != nil {
		rows := [][]interface{}{{"Name", p.DisplayName}}
		if p.Bio != "" {
			rows = append(rows, []interface{}{"Bio", p.Bio})
		}
		for _, g := range p.Goals {
			rows = append(rows, []interface{}{"Goal", g})
		}
		if err := addSheet(f, "Candidate", rows); err != nil {
			return nil, err
		}
	}

	if s := data.Skills; s != nil && len(s.Skills) > 0 {
		rows := [][]interface{}{{"Skill", "Level", "Window start"}}
		for _, sk := range s.Skills {
			rows = append(rows, []interface{}{sk.Name, sk.Level, sk.Baseline})
		}
		if err := addSheet(f, "Skills", rows); err != nil {
			return nil, err
		}
	}

	if s := data.Recommendations; s != nil && len(s.Cards) > 0 {
		rows := [][]interface{}{{"Field", "Strength", "Reason"}}
		for _, c := range s.Cards {
			rows = append(rows, []interface{}{c.Field, c.Score, c.Reason})
		}
		if err := addSheet(f, "Recommendations", rows); err != nil {
			return nil, err
		}
	}

	if s := data.RecommendationTracking; s != nil && len(s.Tracked) > 0 {
		rows := [][]interface{}{{"Field", "Status", "Notes"}}
		for _, tr := range s.Tracked {
			rows = append(rows, []interface{}{tr.Field, tr.Status, tr.Notes})
		}
		if err := addSheet(f, "Follow-Through", rows); err != nil {
			return nil, err
		}
	}

	if s := data.Engagement; s != nil {
		rows := [][]interface{}{
			{"Total sessions", s.TotalSessions},
			{"Total minutes", s.TotalMinutes},
		}
		if len(s.Timeline) > 0 {
			rows = append(rows, []interface{}{"Date", "Sessions", "Minutes"})
			for _, p := range s.Timeline {
				rows = append(rows, []interface{}{p.Date.Format("2006-01-02"), p.Sessions, p.Minutes})
			}
		}
		if err := addSheet(f, "Engagement", rows); err != nil {
			return nil, err
		}
	}

	if len(charts) > 0 {
		idx, err := f.NewSheet("Charts")
		if err != nil {
			return nil, fmt.Errorf("create charts sheet: %w", err)
		}
		_ = idx
		row := 1
		for _, c := range charts {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetCellValue("Charts", cell, c.Title); err != nil {
				return nil, fmt.Errorf("write chart title: %w", err)
			}
			anchor, _ := excelize.CoordinatesToCellName(1, row+1)
			err := f.AddPictureFromBytes("Charts", anchor, &excelize.Picture{
				Extension: ".png",
				File:      c.ImageBytes,
				Format:    &excelize.GraphicOptions{ScaleX: 0.75, ScaleY: 0.75},
			})
			if err != nil {
				return nil, fmt.Errorf("embed chart %s: %w", c.Title, err)
			}
			row += 24
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func addSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	setRows(f, name, 1, rows)
	return nil
}

func setRows(f *excelize.File, sheet string, startRow int, rows [][]interface{}) {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, startRow+i)
			if err != nil {
				continue
			}
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
}
