package evalsrvc

import "github.com/programme-lv/streaks/domain"

// Item is one accepted submission after enrichment.
type Item struct {
	Slug       string
	Difficulty domain.Difficulty
	Tags       []string
}

type Decision struct {
	Completed bool
	Count     int
	Solved    []string
}

// Decide applies the challenge rules to the day's items in order: the
// difficulty filter, then the optional per-slug dedupe, then the minimum.
func Decide(c domain.Challenge, items []Item) Decision {
	solved := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if !c.AcceptsDifficulty(it.Difficulty) {
			continue
		}
		if c.UniqueProblemConstraint {
			if _, dup := seen[it.Slug]; dup {
				continue
			}
			seen[it.Slug] = struct{}{}
		}
		solved = append(solved, it.Slug)
	}
	return Decision{
		Completed: len(solved) >= c.MinSubmissionsPerDay,
		Count:     len(solved),
		Solved:    solved,
	}
}
