package evalsrvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/ledger"
	"github.com/programme-lv/streaks/logger"
	"github.com/programme-lv/streaks/notify"
	"golang.org/x/sync/errgroup"
)

// Evaluate decides one member's day and records it.
//
// Upstream failures record a pending result and return the wrapped
// upstream error so the job is retried. A day that already has a final
// result yields ErrAlreadyResolved together with the stored result.
func (s *EvalSrvc) Evaluate(ctx context.Context, c domain.Challenge, m domain.Membership, u domain.User, day domain.Day) (domain.DailyResult, error) {
	key := domain.ResultKey{ChallengeID: c.ID, MemberID: m.ID, Date: day}
	log := logger.FromContext(ctx).With("challenge_id", c.ID, "member_id", m.ID, "day", day)
	ctx = logger.WithLogger(ctx, log)

	existing, err := s.store.GetResult(ctx, key)
	if err != nil {
		return domain.DailyResult{}, fmt.Errorf("failed to load result %s: %w", key, err)
	}
	if existing != nil && !existing.Pending() {
		return *existing, ErrAlreadyResolved
	}

	now := s.now().UTC()
	base := domain.DailyResult{
		ChallengeID:    c.ID,
		MemberID:       m.ID,
		Date:           day,
		ProblemsSolved: []string{},
	}

	if !u.HasIdentity() {
		res := base
		res.Completed = boolPtr(false)
		res.EvaluatedAt = &now
		res.Metadata = map[string]any{"reason": ledger.ReasonNoIdentity}
		return s.resolve(ctx, c, m, u, res, ledger.ReasonNoIdentity)
	}
	username := *u.LeetcodeUsername

	sess, err := s.sessions.Active(ctx, u.ID)
	if err != nil {
		log.Warn("failed to load session, using public access", "error", err)
		sess = nil
	}

	acts, err := s.fetcher.FetchActivity(ctx, username, day, sess)
	if err != nil {
		pending := base
		pending.Metadata = map[string]any{
			"reason":        "upstream failure",
			"error_kind":    string(lcclient.KindOf(err)),
			"error":         err.Error(),
			"authenticated": sess != nil,
			"attempted_at":  now.Format(time.RFC3339),
		}
		return s.leavePending(ctx, pending, fmt.Errorf("failed to fetch activity of %s: %w", username, err))
	}

	items, stale, failed := s.enrich(ctx, acts, sess)
	dec := Decide(c, items)

	// Items whose difficulty could not be resolved only count against the
	// member when resolving them could not change the outcome.
	if !dec.Completed && len(failed) > 0 && Decide(c, assumeAccepted(c, items, failed)).Completed {
		first := failed[0]
		pending := base
		pending.Metadata = map[string]any{
			"reason":        "problem metadata unavailable",
			"error_kind":    string(lcclient.KindOf(first.err)),
			"error":         first.err.Error(),
			"unresolved":    failedSlugs(failed),
			"authenticated": sess != nil,
			"attempted_at":  now.Format(time.RFC3339),
		}
		return s.leavePending(ctx, pending, fmt.Errorf("failed to enrich activity of %s: %w", username, first.err))
	}

	res := base
	res.Completed = boolPtr(dec.Completed)
	res.SubmissionsCount = dec.Count
	res.ProblemsSolved = dec.Solved
	res.EvaluatedAt = &now
	res.Metadata = map[string]any{
		"accepted_submissions": len(acts),
		"authenticated":        sess != nil,
	}
	if stale > 0 {
		res.Metadata["stale_metadata"] = stale
	}
	return s.resolve(ctx, c, m, u, res, ledger.ReasonMissedRequirement)
}

// leavePending stores the day as pending and hands cause back so the job
// is retried.
func (s *EvalSrvc) leavePending(ctx context.Context, pending domain.DailyResult, cause error) (domain.DailyResult, error) {
	if err := s.store.RecordPending(ctx, pending); err != nil {
		return pending, errors.Join(cause, fmt.Errorf("failed to record pending result: %w", err))
	}
	logger.FromContext(ctx).Warn("day left pending", "error", cause)
	return pending, cause
}

func (s *EvalSrvc) resolve(ctx context.Context, c domain.Challenge, m domain.Membership, u domain.User, res domain.DailyResult, reason string) (domain.DailyResult, error) {
	log := logger.FromContext(ctx)

	var penalty *domain.PenaltyEntry
	if !res.Passed() {
		penalty = ledger.ForFailure(c, m, res.Date, reason, *res.EvaluatedAt)
	}
	rec, err := s.store.RecordOutcome(ctx, domain.Outcome{Result: res, Penalty: penalty})
	if err != nil {
		return res, fmt.Errorf("failed to record outcome: %w", err)
	}
	if rec.AlreadyResolved {
		stored, gerr := s.store.GetResult(ctx, res.Key())
		if gerr == nil && stored != nil {
			res = *stored
		}
		return res, ErrAlreadyResolved
	}

	if rec.Streak.Broken > 0 {
		s.notifier.StreakBroken(ctx, notify.StreakBroken{
			UserID:        u.ID,
			Username:      u.Username,
			Email:         u.Email,
			ChallengeID:   c.ID,
			ChallengeName: c.Name,
			PriorStreak:   rec.Streak.Broken,
			Date:          res.Date,
		})
	}

	log.Info("member evaluated",
		"completed", res.Passed(),
		"submissions", res.SubmissionsCount,
		"streak", rec.Membership.CurrentStreak,
		"penalty", penalty != nil)
	return res, nil
}

// enrichFailure is a lookup that failed for a reason worth retrying.
type enrichFailure struct {
	slug string
	err  error
}

// enrich resolves difficulty and tags per distinct slug. A failed lookup
// leaves the item with unknown difficulty; lookups that failed on a
// retryable upstream error are also reported in slug order. The int is
// how many lookups were served from a stale copy.
func (s *EvalSrvc) enrich(ctx context.Context, acts []lcclient.Activity, sess *lcclient.Session) ([]Item, int, []enrichFailure) {
	slugs := make([]string, 0, len(acts))
	index := make(map[string]int, len(acts))
	for _, a := range acts {
		if _, ok := index[a.TitleSlug]; !ok {
			index[a.TitleSlug] = len(slugs)
			slugs = append(slugs, a.TitleSlug)
		}
	}

	type meta struct {
		diff  domain.Difficulty
		tags  []string
		stale bool
		err   error
	}
	found := make([]meta, len(slugs))
	g := &errgroup.Group{}
	g.SetLimit(s.opts.EnrichConcurrency)
	for i, slug := range slugs {
		g.Go(func() error {
			l, err := s.problems.Get(ctx, slug, sess)
			if err != nil {
				logger.FromContext(ctx).Warn("problem metadata unavailable", "slug", slug, "error", err)
				found[i] = meta{diff: domain.DifficultyUnknown, err: err}
				return nil
			}
			diff := l.Problem.Difficulty
			if diff == "" {
				diff = domain.DifficultyUnknown
			}
			found[i] = meta{diff: diff, tags: l.Problem.TopicTags, stale: l.Stale}
			return nil
		})
	}
	_ = g.Wait()

	stale := 0
	var failed []enrichFailure
	for i, m := range found {
		if m.stale {
			stale++
		}
		if retryable(m.err) {
			failed = append(failed, enrichFailure{slug: slugs[i], err: m.err})
		}
	}
	items := make([]Item, len(acts))
	for i, a := range acts {
		m := found[index[a.TitleSlug]]
		items[i] = Item{Slug: a.TitleSlug, Difficulty: m.diff, Tags: m.tags}
	}
	return items, stale, failed
}

// assumeAccepted gives every failed item a difficulty the filter accepts.
func assumeAccepted(c domain.Challenge, items []Item, failed []enrichFailure) []Item {
	if len(c.DifficultyFilter) == 0 {
		return items
	}
	unresolved := make(map[string]struct{}, len(failed))
	for _, f := range failed {
		unresolved[f.slug] = struct{}{}
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if _, ok := unresolved[it.Slug]; ok {
			it.Difficulty = c.DifficultyFilter[0]
		}
		out[i] = it
	}
	return out
}

func failedSlugs(failed []enrichFailure) []string {
	res := make([]string, len(failed))
	for i, f := range failed {
		res[i] = f.slug
	}
	return res
}

func retryable(err error) bool {
	var lcErr *lcclient.Error
	return errors.As(err, &lcErr) && lcErr.Retryable()
}

func boolPtr(b bool) *bool { return &b }
