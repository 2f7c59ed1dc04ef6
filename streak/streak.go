// Package streak holds the per-membership streak transition.
package streak

// State is the streak portion of a membership.
type State struct {
	Current int
	Longest int
}

// Transition is the result of applying one resolved day.
type Transition struct {
	Prev State
	Next State
	// Broken is the streak lost when a failure shortened a running
	// streak, else 0.
	Broken int
}

// Later summarizes the days resolved after the day being applied.
type Later struct {
	Completed int
	Failed    bool
}

// Advance applies a resolved day that is newer than every other resolved
// day. Pending days must never reach it.
func Advance(prev State, completed bool) Transition {
	return Backfill(prev, completed, Later{})
}

// Backfill applies a resolved day that may be older than days already
// resolved. A late pass only extends the running streak when no later day
// failed. A late failure caps the running streak at the completed days
// after it.
func Backfill(prev State, completed bool, later Later) Transition {
	t := Transition{Prev: prev, Next: prev}
	if completed {
		if !later.Failed {
			t.Next.Current = prev.Current + 1
		}
		t.Next.Longest = max(prev.Longest, t.Next.Current)
		return t
	}
	t.Next.Current = min(prev.Current, later.Completed)
	if t.Next.Current < prev.Current {
		t.Broken = prev.Current
	}
	return t
}
