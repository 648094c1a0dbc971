package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PrivacyLevel is the redaction tier applied to one section.
type PrivacyLevel string

const (
	// PrivacyExclude omits the section entirely, including derived charts.
	PrivacyExclude PrivacyLevel = "exclude"
	// PrivacySummary keeps a structurally reduced view of the section.
	PrivacySummary PrivacyLevel = "summary"
	// PrivacyDetailed passes the section through at full fidelity.
	PrivacyDetailed PrivacyLevel = "detailed"
)

// IsValid reports whether l is a known privacy level.
func (l PrivacyLevel) IsValid() bool {
	switch l {
	case PrivacyExclude, PrivacySummary, PrivacyDetailed:
		return true
	}
	return false
}

// GlobalPrivacySettings are coarse report-wide consent toggles.
type GlobalPrivacySettings struct {
	ShareWithPartners bool `json:"share_with_partners"`
	AllowAnalytics    bool `json:"allow_analytics"`
}

// PrivacyAuditTrail records who last touched the policy and the consent state.
type PrivacyAuditTrail struct {
	LastModified time.Time  `json:"last_modified"`
	ModifiedBy   string     `json:"modified_by"`
	ConsentGiven bool       `json:"consent_given"`
	ConsentDate  *time.Time `json:"consent_date,omitempty"`
}

// PrivacyConfiguration is the per-section redaction policy for one report.
// It must reference the same user as its ReportConfiguration and is frozen
// once the job starts processing.
type PrivacyConfiguration struct {
	UserID   string                      `json:"user_id" validate:"required"`
	ReportID string                      `json:"report_id" validate:"required"`
	Sections map[SectionKey]PrivacyLevel `json:"sections" validate:"required"`
	Global   GlobalPrivacySettings       `json:"global_settings"`
	Audit    PrivacyAuditTrail           `json:"audit_trail"`
}

// LevelFor returns the configured level for a section, defaulting to exclude
// for sections the policy does not mention.
func (p PrivacyConfiguration) LevelFor(key SectionKey) PrivacyLevel {
	if lvl, ok := p.Sections[key]; ok && lvl.IsValid() {
		return lvl
	}
	return PrivacyExclude
}

// Signature returns a stable string encoding of the policy, used as part of
// cache keys. Sections are emitted in sorted order so equal policies always
// produce equal signatures.
func (p PrivacyConfiguration) Signature() string {
	keys := make([]string, 0, len(p.Sections))
	for k := range p.Sections {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, p.Sections[SectionKey(k)])
	}
	fmt.Fprintf(&b, "partners=%t;analytics=%t", p.Global.ShareWithPartners, p.Global.AllowAnalytics)
	return b.String()
}
