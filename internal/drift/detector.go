// Package drift scores how far a presented device fingerprint has moved from the
// last trusted one and maps the score to a login decision.
package drift

import (
	"errors"
	"log"
	"math"

	"zero-trust-session-core/internal/drift/domain"
)

// ErrNoBaseline is returned by Analyze without a prior fingerprint. The caller
// handles the new-device case.
var ErrNoBaseline = errors.New("no baseline fingerprint")

const maxDiffValueLen = 128

// Thresholds are the lower bounds, in percent, of each drift band.
type Thresholds struct {
	NoDrift  float64
	Minor    float64
	Moderate float64
	Major    float64
}

// DefaultThresholds returns the standard bands: 95 / 80 / 60 / 40.
func DefaultThresholds() Thresholds {
	return Thresholds{NoDrift: 95, Minor: 80, Moderate: 60, Major: 40}
}

// Detector compares fingerprints with a table of weighted components.
type Detector struct {
	components  []Component
	totalWeight float64
	thresholds  Thresholds
}

// NewDetector returns a Detector over components, or DefaultComponents when none are given.
func NewDetector(t Thresholds, components ...Component) *Detector {
	if len(components) == 0 {
		components = DefaultComponents()
	}
	var total float64
	for _, c := range components {
		total += c.Weight
	}
	return &Detector{components: components, totalWeight: total, thresholds: t}
}

// Analyze scores cur against old. A low score is a result, not an error.
func (d *Detector) Analyze(old, cur *domain.Fingerprint, userID string) (*domain.Result, error) {
	if old == nil {
		return nil, ErrNoBaseline
	}
	if cur == nil {
		return nil, domain.ErrCorruptFingerprint
	}
	var accepted float64
	details := make([]domain.ComponentDiff, 0, len(d.components))
	for _, c := range d.components {
		matched := c.Match(old, cur)
		if matched {
			accepted += c.Weight
		}
		details = append(details, domain.ComponentDiff{
			Component: c.Name,
			Old:       truncate(c.Value(old)),
			New:       truncate(c.Value(cur)),
			Weight:    c.Weight,
			Matched:   matched,
		})
	}
	var similarity float64
	if d.totalWeight > 0 {
		similarity = math.Round(accepted/d.totalWeight*100*100) / 100
	}
	r := d.Classify(similarity)
	r.Details = details
	if r.Status != domain.StatusNoDrift {
		log.Printf("drift: user %s similarity %.2f status %s", userID, similarity, r.Status)
	}
	return r, nil
}

// Classify maps a similarity score onto the configured bands.
func (d *Detector) Classify(similarity float64) *domain.Result {
	r := &domain.Result{Similarity: similarity}
	t := d.thresholds
	switch {
	case similarity >= t.NoDrift:
		r.Status, r.Action, r.Severity = domain.StatusNoDrift, domain.ActionAllow, domain.SeverityInfo
	case similarity >= t.Minor:
		r.Status, r.Action, r.Severity = domain.StatusMinorDrift, domain.ActionAllowWithLog, domain.SeverityLow
	case similarity >= t.Moderate:
		r.Status, r.Action, r.Severity = domain.StatusModerateDrift, domain.ActionRequireMFA, domain.SeverityMedium
		r.RequiresMFA = true
	case similarity >= t.Major:
		r.Status, r.Action, r.Severity = domain.StatusMajorDrift, domain.ActionRequireMFAAndReview, domain.SeverityHigh
		r.RequiresMFA = true
		r.RequiresAdminReview = true
	default:
		r.Status, r.Action, r.Severity = domain.StatusDeviceChanged, domain.ActionBlock, domain.SeverityCritical
		r.RequiresAdminReview = true
		r.Blocked = true
	}
	return r
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDiffValueLen {
		return s
	}
	return string(r[:maxDiffValueLen])
}
