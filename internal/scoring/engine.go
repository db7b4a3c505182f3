// Package scoring folds classification verdicts into the running dialog
// quality score. The engine is a pure function over the values passed in;
// callers own where the result is stored.
package scoring

import "github.com/chattitude/chattitude/internal/models"

// Rules are the product-tuning constants of the game. They are configuration,
// not invariants: the defaults match the shipped game but every value may be
// adjusted per deployment.
type Rules struct {
	// ConfidenceGate is the minimum confidence a verdict needs before it
	// moves the score at all.
	ConfidenceGate int
	// DestructivePenalty is subtracted for a confident destructive turn.
	DestructivePenalty int
	// ConstructiveReward is added for a confident constructive turn. The
	// asymmetry against DestructivePenalty is deliberate: constructive
	// behavior is rewarded more than destructive behavior is punished.
	ConstructiveReward int
	// DetailThreshold is the minimum confidence for showing technique
	// detail alongside a message.
	DetailThreshold int
	MinScore        int
	MaxScore        int
}

func DefaultRules() Rules {
	return Rules{
		ConfidenceGate:     75,
		DestructivePenalty: 10,
		ConstructiveReward: 15,
		DetailThreshold:    60,
		MinScore:           0,
		MaxScore:           100,
	}
}

// Apply folds one verdict into the score and per-player stats and returns the
// updated values. Verdicts below the confidence gate, and neutral verdicts,
// change nothing. The score is always clamped to [MinScore, MaxScore].
func (r Rules) Apply(score int, stats models.Stats, authorSlot int, v models.Verdict) (int, models.Stats) {
	if v.Confidence < r.ConfidenceGate {
		return score, stats
	}
	ps := stats.ForSlot(authorSlot)
	switch v.Category {
	case models.CategoryDestructive:
		score -= r.DestructivePenalty
		ps.Destructive++
	case models.CategoryConstructive:
		score += r.ConstructiveReward
		ps.Constructive++
	default:
		return score, stats
	}
	if score < r.MinScore {
		score = r.MinScore
	}
	if score > r.MaxScore {
		score = r.MaxScore
	}
	return score, stats.WithSlot(authorSlot, ps)
}

// Detailed reports whether a verdict is confident enough for its technique
// and explanation to be surfaced next to the message.
func (r Rules) Detailed(v models.Verdict) bool {
	return v.Category != models.CategoryNeutral && v.Confidence >= r.DetailThreshold
}
