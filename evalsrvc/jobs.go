package evalsrvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/logger"
)

type ChallengeJobPayload struct {
	ChallengeID uuid.UUID  `json:"challenge_id"`
	Date        domain.Day `json:"date"`
}

type MemberJobPayload struct {
	ChallengeID uuid.UUID  `json:"challenge_id"`
	MemberID    uuid.UUID  `json:"member_id"`
	Date        domain.Day `json:"date"`
}

type TriggerParams struct {
	Date domain.Day
}

type TriggerSummary struct {
	Date       domain.Day `json:"date"`
	Challenges int        `json:"challenges"`
	Enqueued   int        `json:"enqueued"`
	Duplicates int        `json:"duplicates"`
	Revisits   int        `json:"revisits"`
}

// TriggerDaily enqueues one challenge job per evaluable challenge. It
// never evaluates anything itself. Running it twice for a day is a no-op.
func (s *EvalSrvc) TriggerDaily(ctx context.Context, p TriggerParams) (TriggerSummary, error) {
	day := p.Date
	if day.IsZero() {
		day = domain.DayOf(s.now())
	}
	if day.After(domain.DayOf(s.now())) {
		return TriggerSummary{}, ErrDateInFuture()
	}
	log := logger.FromContext(ctx).With("day", day)

	challenges, err := s.store.ListEvaluableChallenges(ctx, day)
	if err != nil {
		return TriggerSummary{}, fmt.Errorf("failed to list evaluable challenges: %w", err)
	}
	sum := TriggerSummary{Date: day, Challenges: len(challenges)}
	var errs []error
	for _, c := range challenges {
		ok, err := s.queue.Enqueue(ctx, jobqueue.KindChallengeEvaluation,
			jobqueue.ChallengeJobID(c.ID, day),
			ChallengeJobPayload{ChallengeID: c.ID, Date: day})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			sum.Enqueued++
		} else {
			sum.Duplicates++
		}
	}

	if s.opts.RevisitPendingDays > 0 {
		n, err := s.revisitPending(ctx, day)
		sum.Revisits = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("daily evaluation triggered",
		"challenges", sum.Challenges, "enqueued", sum.Enqueued,
		"duplicates", sum.Duplicates, "revisits", sum.Revisits)
	return sum, errors.Join(errs...)
}

// revisitPending gives past pending days another member job. The job id
// carries the run day so each run may retry once.
func (s *EvalSrvc) revisitPending(ctx context.Context, day domain.Day) (int, error) {
	pending, err := s.store.ListPendingResults(ctx, day.AddDays(-s.opts.RevisitPendingDays), day.AddDays(-1))
	if err != nil {
		return 0, fmt.Errorf("failed to list pending results: %w", err)
	}
	n := 0
	var errs []error
	for _, r := range pending {
		id := fmt.Sprintf("%s-revisit-%s", jobqueue.MemberJobID(r.MemberID, r.Date), day)
		ok, err := s.queue.Enqueue(ctx, jobqueue.KindMemberEvaluation, id,
			MemberJobPayload{ChallengeID: r.ChallengeID, MemberID: r.MemberID, Date: r.Date})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// HandleChallengeJob fans a challenge out into member jobs. Re-running it
// is safe since member job ids are claimed once.
func (s *EvalSrvc) HandleChallengeJob(ctx context.Context, job jobqueue.Job) error {
	var p ChallengeJobPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With("challenge_id", p.ChallengeID, "day", p.Date)

	c, err := s.store.GetChallenge(ctx, p.ChallengeID)
	if errors.Is(err, domain.ErrNotFound) {
		return jobqueue.Permanent(fmt.Errorf("challenge %s no longer exists", p.ChallengeID))
	}
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if !c.EvaluableOn(p.Date) {
		log.Info("challenge not evaluable, skipping fanout", "status", c.Status)
		return nil
	}

	members, err := s.store.ListActiveMemberships(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to list memberships: %w", err)
	}
	enqueued := 0
	var errs []error
	for _, m := range members {
		ok, err := s.queue.Enqueue(ctx, jobqueue.KindMemberEvaluation,
			jobqueue.MemberJobID(m.ID, p.Date),
			MemberJobPayload{ChallengeID: c.ID, MemberID: m.ID, Date: p.Date})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			enqueued++
		}
	}
	log.Info("challenge fanned out", "members", len(members), "enqueued", enqueued)
	return errors.Join(errs...)
}

func (s *EvalSrvc) HandleMemberJob(ctx context.Context, job jobqueue.Job) error {
	var p MemberJobPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	m, err := s.store.GetMembership(ctx, p.MemberID)
	if errors.Is(err, domain.ErrNotFound) {
		return jobqueue.Permanent(fmt.Errorf("membership %s no longer exists", p.MemberID))
	}
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.IsActive {
		log.Info("membership inactive, skipping", "member_id", m.ID)
		return nil
	}

	c, err := s.store.GetChallenge(ctx, m.ChallengeID)
	if errors.Is(err, domain.ErrNotFound) {
		return jobqueue.Permanent(fmt.Errorf("challenge %s no longer exists", m.ChallengeID))
	}
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if !c.EvaluableOn(p.Date) {
		log.Info("challenge not evaluable, skipping member", "member_id", m.ID, "status", c.Status)
		return nil
	}

	u, err := s.store.GetUser(ctx, m.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return jobqueue.Permanent(fmt.Errorf("user %s no longer exists", m.UserID))
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	_, err = s.Evaluate(ctx, c, m, u, p.Date)
	if errors.Is(err, ErrAlreadyResolved) {
		log.Debug("day already resolved", "member_id", m.ID)
		return nil
	}
	return err
}

// RegisterHandlers wires both job kinds into w.
func (s *EvalSrvc) RegisterHandlers(w *jobqueue.Worker) {
	w.Handle(jobqueue.KindChallengeEvaluation, s.HandleChallengeJob)
	w.Handle(jobqueue.KindMemberEvaluation, s.HandleMemberJob)
}
