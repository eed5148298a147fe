package models

type SectionStatus string

const (
	SectionOK      SectionStatus = "ok"
	SectionMissing SectionStatus = "missing"
	SectionFailed  SectionStatus = "failed"
)

// SectionResult records how one extraction step on a detail page ended.
type SectionResult struct {
	Section string        `json:"section"`
	Status  SectionStatus `json:"status"`
	Reason  string        `json:"reason,omitempty"`
}
