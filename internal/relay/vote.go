package relay

import "github.com/foxseedlab/koewake/internal/recognizer"

type VoteConfig struct {
	TailWords      int
	TailWeight     float64
	MinSwitchWords int
}

// SpeakerVoter picks one speaker tag per final result from its word-level
// tags, and resists switching speaker on a short trailing run.
type SpeakerVoter struct {
	cfg     VoteConfig
	prev    int
	hasPrev bool
}

func NewSpeakerVoter(cfg VoteConfig) *SpeakerVoter {
	if cfg.TailWeight < 1 {
		cfg.TailWeight = 1
	}
	if cfg.MinSwitchWords < 1 {
		cfg.MinSwitchWords = 1
	}
	return &SpeakerVoter{cfg: cfg}
}

// Decide returns the tag for words. ok is false when no word carries a tag;
// suppressed is true when hysteresis kept the previous speaker.
func (v *SpeakerVoter) Decide(words []recognizer.Word) (tag int, suppressed, ok bool) {
	tags := make([]int, 0, len(words))
	for _, w := range words {
		if w.SpeakerTag != 0 {
			tags = append(tags, w.SpeakerTag)
		}
	}
	if len(tags) == 0 {
		return 0, false, false
	}

	candidate := weightedMajority(tags, v.cfg.TailWords, v.cfg.TailWeight)
	tailRun := 0
	for i := len(tags) - 1; i >= 0 && tags[i] == candidate; i-- {
		tailRun++
	}

	if v.hasPrev && candidate != v.prev && tailRun < v.cfg.MinSwitchWords {
		return v.prev, true, true
	}
	v.prev = candidate
	v.hasPrev = true
	return candidate, false, true
}

// weightedMajority counts each tag, weighting the last tailWords entries by
// tailWeight. Ties go to the tag seen first.
func weightedMajority(tags []int, tailWords int, tailWeight float64) int {
	scores := make(map[int]float64, 2)
	order := make([]int, 0, 2)
	tailStart := len(tags) - tailWords
	for i, t := range tags {
		if _, seen := scores[t]; !seen {
			order = append(order, t)
		}
		w := 1.0
		if tailWords > 0 && i >= tailStart {
			w = tailWeight
		}
		scores[t] += w
	}
	best := order[0]
	for _, t := range order[1:] {
		if scores[t] > scores[best] {
			best = t
		}
	}
	return best
}
