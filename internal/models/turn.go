package models

import "strings"

// Verdict categories. The oracle prompt historically answered "dirty_trick"
// for the destructive category; NormalizeVerdict folds that spelling in.
const (
	CategoryConstructive = "constructive"
	CategoryDestructive  = "destructive"
	CategoryNeutral      = "neutral"
)

// Turn is one appended message plus its classification. Immutable once it is
// part of a transcript.
type Turn struct {
	AuthorSlot int     `json:"authorSlot"`
	AuthorName string  `json:"authorName"`
	Text       string  `json:"text"`
	SentAt     string  `json:"sentAt"` // local wall-clock "HH:MM"
	Verdict    Verdict `json:"verdict"`
	// Detailed marks a verdict confident enough for its technique and
	// explanation to be shown next to the message.
	Detailed bool `json:"detailed"`
}

// Verdict is the oracle's judgment of one message.
type Verdict struct {
	Technique   string `json:"technique"`
	Category    string `json:"category"`
	Confidence  int    `json:"confidence"`
	Explanation string `json:"explanation"`
}

// NeutralVerdict is the fallback attached when classification fails or the
// oracle's answer cannot be trusted. It never moves the score.
func NeutralVerdict() Verdict {
	return Verdict{Technique: "neutral", Category: CategoryNeutral, Confidence: 0, Explanation: ""}
}

// NormalizeVerdict canonicalizes an oracle response before it reaches the
// score engine: legacy category spellings are mapped, confidence is clamped
// to [0,100], and anything malformed collapses to the neutral verdict.
func NormalizeVerdict(v Verdict) Verdict {
	switch strings.ToLower(strings.TrimSpace(v.Category)) {
	case CategoryConstructive:
		v.Category = CategoryConstructive
	case CategoryDestructive, "dirty_trick":
		v.Category = CategoryDestructive
	case CategoryNeutral:
		v.Category = CategoryNeutral
	default:
		return NeutralVerdict()
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}
	if strings.TrimSpace(v.Technique) == "" {
		v.Technique = "neutral"
	}
	return v
}
