package domain

import (
	"time"
)

// ReportType identifies the audience a report is generated for. The set is
// closed; each type selects its own document template.
type ReportType string

const (
	ReportTypeParent    ReportType = "parent"
	ReportTypeCounselor ReportType = "counselor"
	ReportTypeMentor    ReportType = "mentor"
	ReportTypeEmployer  ReportType = "employer"
)

// IsValid reports whether t is one of the known report types.
func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeParent, ReportTypeCounselor, ReportTypeMentor, ReportTypeEmployer:
		return true
	}
	return false
}

// DateRange bounds the activity window a report covers.
type DateRange struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// SectionDescriptor names one section the requester wants in the report,
// in display order.
type SectionDescriptor struct {
	Key   SectionKey `json:"key" validate:"required"`
	Title string     `json:"title,omitempty"`
}

// BrandingOptions carries presentation hints for the assembled document.
type BrandingOptions struct {
	OrgName      string `json:"org_name,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
}

// ReportConfiguration is the immutable request descriptor for one report.
// It is created by the requester and never mutated after submission.
type ReportConfiguration struct {
	ID          string              `json:"id" validate:"required"`
	UserID      string              `json:"user_id" validate:"required"`
	ReportType  ReportType          `json:"report_type" validate:"required,oneof=parent counselor mentor employer"`
	Title       string              `json:"title" validate:"required,min=1,max=200"`
	Description string              `json:"description,omitempty"`
	DateRange   DateRange           `json:"date_range"`
	Sections    []SectionDescriptor `json:"sections" validate:"required,min=1,dive"`
	Branding    BrandingOptions     `json:"branding,omitempty"`
}
