package correlate

import (
	"math"

	"github.com/user/crosscheck/pkg/model"
)

const (
	violationBoost = 1.25
	refutedFactor  = 0.5

	// FlagLikelyFalsePositive marks a group whose static findings a formal
	// result proved safe.
	FlagLikelyFalsePositive = "likely_false_positive"
	// FlagVerifiedViolation marks a group confirmed by a formal result.
	FlagVerifiedViolation = "verified_violation"
)

// Confidence is 1 + 0.2 per extra tool, capped at 2.
func Confidence(tools int) float64 {
	if tools < 1 {
		tools = 1
	}
	return math.Min(2, 1+0.2*float64(tools-1))
}

// Risk scores a group in [0, 100] and returns the rationale flags that applied.
func Risk(members []*model.Issue) (float64, []string) {
	if len(members) == 0 {
		return 0, nil
	}
	sum := 0
	var violation, safe, static bool
	for _, m := range members {
		sum += m.Severity.Weight()
		if m.IsFormal() {
			switch m.Metadata.Formal.Status {
			case model.FormalVerifiedViolation:
				violation = true
			case model.FormalVerifiedSafe:
				safe = true
			}
		} else {
			static = true
		}
	}

	score := math.Min(100, 10*Confidence(distinctTools(members))*float64(sum)/float64(len(members)))
	var flags []string
	if violation {
		score = math.Min(100, score*violationBoost)
		flags = append(flags, FlagVerifiedViolation)
	}
	if safe && static {
		score *= refutedFactor
		flags = append(flags, FlagLikelyFalsePositive)
	}
	return round2(score), flags
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
