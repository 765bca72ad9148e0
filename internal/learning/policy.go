package learning

import "time"

// Policy decides from persisted metadata whether a retrain is due.
type Policy struct {
	artifacts *ArtifactStore
	now       func() time.Time
}

// NewPolicy returns a Policy reading metadata from artifacts. A nil clock
// means time.Now.
func NewPolicy(artifacts *ArtifactStore, now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{artifacts: artifacts, now: now}
}

// ShouldRetrain is true when no model is persisted, the metadata is missing
// or unreadable, or at least one calendar day has passed since training.
func (p *Policy) ShouldRetrain() bool {
	if !p.artifacts.ModelExists() {
		return true
	}
	meta, err := p.artifacts.LoadMetadata()
	if err != nil {
		return true
	}
	now := p.now()
	trainedAt, err := meta.TrainedAt(now.Location())
	if err != nil {
		return true
	}
	return CalendarDaysBetween(trainedAt, now) >= 1
}

// CalendarDaysBetween counts date boundaries crossed from a to b, ignoring the
// time of day: 23:59 to 00:01 the next day is one day, 00:01 to 23:59 the
// same day is zero.
func CalendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
