package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"reportgen/pkg/contracts/domain"
)

// defaultOrgName is used when the request carries no branding.
const defaultOrgName = "CareerPath"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// SanitizeForFilename reduces free text to a filesystem-safe token:
// unsafe runs collapse to single underscores and edge underscores are
// trimmed.
func SanitizeForFilename(s string) string {
	out := unsafeChars.ReplaceAllString(s, "_")
	out = strings.Trim(out, "_")
	if out == "" {
		return "Report"
	}
	return out
}

// BuildFileName produces the artifact name:
// {Org}_{ReportType}_Report_{SanitizedTitle}_{Date}.{ext}
func BuildFileName(cfg domain.ReportConfiguration, generatedAt time.Time, ext string) string {
	org := cfg.Branding.OrgName
	if org == "" {
		org = defaultOrgName
	}
	reportType := capitalize(string(cfg.ReportType))
	return fmt.Sprintf("%s_%s_Report_%s_%s.%s",
		SanitizeForFilename(org),
		reportType,
		SanitizeForFilename(cfg.Title),
		generatedAt.Format("2006-01-02"),
		ext)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
