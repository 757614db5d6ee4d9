package service

import (
	"sort"
	"time"

	"cityzen/geo"
	"cityzen/models"
)

// Outcome is the evaluator's verdict on a submission.
type Outcome string

const (
	OutcomeAccept            Outcome = "accept"
	OutcomeBlockDuplicate    Outcome = "block_duplicate"
	OutcomeOfferBump         Outcome = "offer_bump"
	OutcomeRejectReusedImage Outcome = "reject_reused_image"
	OutcomeRejectRateLimited Outcome = "reject_rate_limited"
)

// Decision is the evaluator result. Existing is set for BlockDuplicate and OfferBump.
type Decision struct {
	Outcome        Outcome
	Existing       *models.Complaint
	DistanceMeters float64
}

// DuplicateEvaluator applies the collision, staleness and bump rules.
type DuplicateEvaluator struct {
	policy Policy
}

func NewDuplicateEvaluator(p Policy) *DuplicateEvaluator {
	return &DuplicateEvaluator{policy: p}
}

func (e *DuplicateEvaluator) RadiusKm() float64 {
	return e.policy.DuplicateRadiusMeters / 1000
}

// IsStale reports whether no authority has touched c within the staleness window.
func (e *DuplicateEvaluator) IsStale(c *models.Complaint, now time.Time) bool {
	return now.Sub(c.ActivityReference()) > e.policy.StalenessWindow
}

// BumpEligible reports whether c has not been bumped within the cooldown.
func (e *DuplicateEvaluator) BumpEligible(c *models.Complaint, now time.Time) bool {
	return c.LastBumpedAt == nil || now.Sub(*c.LastBumpedAt) >= e.policy.BumpCooldown
}

// Evaluate decides between Accept, BlockDuplicate and OfferBump for a submission
// at (lat, lon) given candidate complaints near it. Candidates of another
// category, closed ones, and ones outside the radius are ignored. A fresh
// collision always blocks; otherwise the nearest bump-eligible one is offered.
func (e *DuplicateEvaluator) Evaluate(candidates []models.Complaint, categoryID int64, lat, lon float64, now time.Time) Decision {
	type hit struct {
		c        *models.Complaint
		distance float64
	}
	radius := e.RadiusKm()
	var hits []hit
	for i := range candidates {
		c := &candidates[i]
		if c.CategoryID != categoryID || !c.CurrentStatus.Open() {
			continue
		}
		d := geo.HaversineKm(lat, lon, c.Latitude, c.Longitude)
		if d <= radius {
			hits = append(hits, hit{c: c, distance: d})
		}
	}
	if len(hits) == 0 {
		return Decision{Outcome: OutcomeAccept}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].c.ID < hits[j].c.ID
	})

	for _, h := range hits {
		if !e.IsStale(h.c, now) {
			return Decision{Outcome: OutcomeBlockDuplicate, Existing: h.c, DistanceMeters: h.distance * 1000}
		}
	}
	for _, h := range hits {
		if e.BumpEligible(h.c, now) {
			return Decision{Outcome: OutcomeOfferBump, Existing: h.c, DistanceMeters: h.distance * 1000}
		}
	}
	return Decision{Outcome: OutcomeBlockDuplicate, Existing: hits[0].c, DistanceMeters: hits[0].distance * 1000}
}
