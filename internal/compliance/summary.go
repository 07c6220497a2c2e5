package compliance

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RequirementState is the classification of one catalog entry.
type RequirementState string

const (
	StateMissing  RequirementState = "missing"
	StateApproved RequirementState = "approved"
	StateExpired  RequirementState = "expired"
	StateRejected RequirementState = "rejected"
	StateInReview RequirementState = "in_review"
)

// RequirementSummary describes the authoritative document for one catalog
// entry. ExpiresInDays and RenewalDue are only set for approved entries that
// carry an expiry.
type RequirementSummary struct {
	Type          DocumentType     `json:"type"`
	Label         string           `json:"label"`
	State         RequirementState `json:"status"`
	DocumentID    string           `json:"documentId,omitempty"`
	ExpiryAt      *time.Time       `json:"expiryAt,omitempty"`
	ExpiresInDays *int             `json:"expiresInDays,omitempty"`
	RenewalDue    bool             `json:"renewalDue,omitempty"`
}

// latestByType picks the authoritative document per type: newest
// reviewedAt ?? submittedAt, ties broken by submission time then id.
func latestByType(docs []Document) map[DocumentType]Document {
	out := make(map[DocumentType]Document, len(docs))
	for _, d := range docs {
		cur, ok := out[d.Type]
		if !ok || newer(d, cur) {
			out[d.Type] = d
		}
	}
	return out
}

func newer(a, b Document) bool {
	ra, rb := a.recency(), b.recency()
	if !ra.Equal(rb) {
		return ra.After(rb)
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.After(b.SubmittedAt)
	}
	return a.ID > b.ID
}

// Summarize classifies every catalog entry against docs at instant now.
func Summarize(catalog *Catalog, docs []Document, now time.Time) []RequirementSummary {
	latest := latestByType(docs)
	out := make([]RequirementSummary, 0, catalog.Len())
	for _, req := range catalog.entries {
		s := RequirementSummary{Type: req.Type, Label: req.Label, State: StateMissing}
		doc, ok := latest[req.Type]
		if ok {
			s.DocumentID = doc.ID
			s.ExpiryAt = copyTime(doc.ExpiryAt)
			s.State = classify(doc, now)
			if s.State == StateApproved && doc.ExpiryAt != nil {
				days := daysUntil(*doc.ExpiryAt, now)
				s.ExpiresInDays = &days
				s.RenewalDue = days <= req.ExpiryGraceDays
			}
		}
		out = append(out, s)
	}
	return out
}

func classify(doc Document, now time.Time) RequirementState {
	switch doc.EffectiveStatus(now) {
	case DocumentStatusApproved:
		return StateApproved
	case DocumentStatusExpired:
		return StateExpired
	case DocumentStatusRejected:
		return StateRejected
	default:
		return StateInReview
	}
}

// daysUntil is the ceiling of the remaining duration in 24h units. Day
// boundaries are measured from now, not from calendar midnight.
func daysUntil(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// Aggregate applies the status precedence: sticky suspension, then any
// missing/rejected/expired entry, then any in-review entry, then all approved.
func Aggregate(summaries []RequirementSummary, current ApplicationStatus, overrideSuspended bool) ApplicationStatus {
	if current == StatusSuspended && !overrideSuspended {
		return StatusSuspended
	}
	var inReview, approved int
	for _, s := range summaries {
		switch s.State {
		case StateMissing, StateRejected, StateExpired:
			return StatusPendingDocuments
		case StateInReview:
			inReview++
		case StateApproved:
			approved++
		}
	}
	if inReview > 0 {
		return StatusInReview
	}
	if len(summaries) > 0 && approved == len(summaries) {
		return StatusApproved
	}
	return StatusPendingDocuments
}

// Score is the share of required types currently approved, as a percentage
// rounded half away from zero to two decimals.
func Score(summaries []RequirementSummary, totalRequired int) float64 {
	if totalRequired <= 0 {
		return 0
	}
	approved := 0
	for _, s := range summaries {
		if s.State == StateApproved {
			approved++
		}
	}
	return decimal.NewFromInt(int64(approved) * 100).
		DivRound(decimal.NewFromInt(int64(totalRequired)), 2).
		InexactFloat64()
}

// ExpiryHorizon is the earliest expiry among approved entries when status is
// approved, nil otherwise.
func ExpiryHorizon(summaries []RequirementSummary, status ApplicationStatus) *time.Time {
	if status != StatusApproved {
		return nil
	}
	var earliest *time.Time
	for _, s := range summaries {
		if s.State != StateApproved || s.ExpiryAt == nil {
			continue
		}
		if earliest == nil || s.ExpiryAt.Before(*earliest) {
			earliest = copyTime(s.ExpiryAt)
		}
	}
	return earliest
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
