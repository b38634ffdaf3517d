package relay

import (
	"testing"

	"github.com/foxseedlab/koewake/internal/recognizer"
)

func words(tags ...int) []recognizer.Word {
	out := make([]recognizer.Word, len(tags))
	for i, t := range tags {
		out[i] = recognizer.Word{Text: "w", SpeakerTag: t}
	}
	return out
}

func TestSpeakerVoter_MajorityWithTailWeight(t *testing.T) {
	v := NewSpeakerVoter(VoteConfig{TailWords: 3, TailWeight: 2, MinSwitchWords: 1})
	// Plain counts favour 1 (4 vs 3), the weighted tail favours 2 (4 vs 6).
	tag, suppressed, ok := v.Decide(words(1, 1, 1, 1, 2, 2, 2))
	if !ok || suppressed || tag != 2 {
		t.Fatalf("tag=%d suppressed=%v ok=%v", tag, suppressed, ok)
	}
}

func TestSpeakerVoter_HysteresisKeepsPreviousSpeaker(t *testing.T) {
	v := NewSpeakerVoter(VoteConfig{TailWords: 0, TailWeight: 1, MinSwitchWords: 3})
	if tag, _, _ := v.Decide(words(1, 1, 1)); tag != 1 {
		t.Fatalf("first decision = %d", tag)
	}
	// 2 wins the count but its trailing run is only two words.
	tag, suppressed, ok := v.Decide(words(2, 2, 1, 2, 2))
	if !ok || !suppressed || tag != 1 {
		t.Fatalf("tag=%d suppressed=%v ok=%v", tag, suppressed, ok)
	}
	tag, suppressed, _ = v.Decide(words(2, 2, 2))
	if suppressed || tag != 2 {
		t.Fatalf("expected switch to 2, got tag=%d suppressed=%v", tag, suppressed)
	}
}

func TestSpeakerVoter_FirstDecisionIsNeverSuppressed(t *testing.T) {
	v := NewSpeakerVoter(VoteConfig{MinSwitchWords: 5})
	tag, suppressed, ok := v.Decide(words(2))
	if !ok || suppressed || tag != 2 {
		t.Fatalf("tag=%d suppressed=%v ok=%v", tag, suppressed, ok)
	}
}

func TestSpeakerVoter_IgnoresUntaggedWords(t *testing.T) {
	v := NewSpeakerVoter(VoteConfig{MinSwitchWords: 1})
	if _, _, ok := v.Decide(words(0, 0)); ok {
		t.Fatal("expected no decision without tags")
	}
	if _, _, ok := v.Decide(nil); ok {
		t.Fatal("expected no decision without words")
	}
	tag, _, ok := v.Decide(words(0, 3, 0))
	if !ok || tag != 3 {
		t.Fatalf("tag=%d ok=%v", tag, ok)
	}
}

func TestWeightedMajority_TieGoesToFirstSeen(t *testing.T) {
	if got := weightedMajority([]int{2, 1, 1, 2}, 0, 1); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}
