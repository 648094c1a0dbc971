// Package document implements the final pipeline stage: it selects the
// template strategy for the report type, lays out the filtered data and
// charts, and produces the downloadable artifact.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reportgen/pkg/contracts/domain"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Assembler builds the report artifact from aggregated data and rendered
// charts. Employer reports become XLSX workbooks; every other type goes
// through the HTML template and the PDF renderer.
type Assembler struct {
	renderer Renderer
	logger   *slog.Logger
}

// NewAssembler creates the document assembly stage.
func NewAssembler(renderer Renderer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		renderer: renderer,
		logger:   logger.With(slog.String("component", "document_assembler")),
	}
}

// AssembleDocument produces the final artifact. Render failures surface as
// errors so the job-level retry policy applies.
func (a *Assembler) AssembleDocument(ctx context.Context, data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration, policy domain.PrivacyConfiguration) (*domain.Artifact, error) {
	if data == nil {
		return nil, errors.New("document: no aggregated data")
	}

	if cfg.ReportType == domain.ReportTypeEmployer {
		return a.assembleWorkbook(data, charts, cfg)
	}
	return a.assemblePDF(ctx, data, charts, cfg)
}

func (a *Assembler) assemblePDF(ctx context.Context, data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, buildTemplateData(data, charts, cfg)); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	if a.renderer == nil {
		return nil, errors.New("document: no PDF renderer configured")
	}
	pdf, err := a.renderer.Render(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}

	name := BuildFileName(cfg, data.GeneratedAt, "pdf")
	a.logger.Info("document assembled",
		slog.String("file_name", name),
		slog.Int("size", len(pdf)),
		slog.Int("charts", len(charts)))

	return &domain.Artifact{
		Data:     pdf,
		FileName: name,
		Size:     int64(len(pdf)),
		MimeType: mimePDF,
	}, nil
}

func (a *Assembler) assembleWorkbook(data *domain.AggregatedUserData, charts []domain.ChartImageData, cfg domain.ReportConfiguration) (*domain.Artifact, error) {
	book, err := buildWorkbook(data, charts, cfg)
	if err != nil {
		return nil, err
	}

	name := BuildFileName(cfg, data.GeneratedAt, "xlsx")
	a.logger.Info("document assembled",
		slog.String("file_name", name),
		slog.Int("size", len(book)),
		slog.Int("charts", len(charts)))

	return &domain.Artifact{
		Data:     book,
		FileName: name,
		Size:     int64(len(book)),
		MimeType: mimeXLSX,
	}, nil
}
