// Package memstore keeps all state in process memory. It backs tests and
// single-process local runs.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/streak"
)

type Store struct {
	lock sync.Mutex

	challenges  map[uuid.UUID]domain.Challenge
	users       map[uuid.UUID]domain.User
	memberships map[uuid.UUID]domain.Membership
	results     map[domain.ResultKey]domain.DailyResult
	penalties   []domain.PenaltyEntry
	problems    map[string]domain.ProblemMetadata
	invites     map[string]domain.InviteCode
	sessions    map[uuid.UUID]domain.LeetcodeSession

	jobs *jobLedger
}

func New() *Store {
	return &Store{
		challenges:  make(map[uuid.UUID]domain.Challenge),
		users:       make(map[uuid.UUID]domain.User),
		memberships: make(map[uuid.UUID]domain.Membership),
		results:     make(map[domain.ResultKey]domain.DailyResult),
		problems:    make(map[string]domain.ProblemMetadata),
		invites:     make(map[string]domain.InviteCode),
		sessions:    make(map[uuid.UUID]domain.LeetcodeSession),
		jobs:        newJobLedger(),
	}
}

func (s *Store) PutChallenge(c domain.Challenge) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c.DifficultyFilter = slices.Clone(c.DifficultyFilter)
	s.challenges[c.ID] = c
}

func (s *Store) PutUser(u domain.User) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutMembership(m domain.Membership) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.memberships[m.ID] = m
}

func (s *Store) PutInvite(ic domain.InviteCode) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.invites[ic.Code] = ic
}

func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (domain.Challenge, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListEvaluableChallenges(ctx context.Context, day domain.Day) ([]domain.Challenge, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.Challenge
	for _, c := range s.challenges {
		if c.EvaluableOn(day) {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *Store) ListActiveMemberships(ctx context.Context, challengeID uuid.UUID) ([]domain.Membership, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.Membership
	for _, m := range s.memberships {
		if m.ChallengeID == challengeID && m.IsActive {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].JoinedAt.Before(res[j].JoinedAt) })
	return res, nil
}

func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (domain.Membership, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *Store) GetMembershipByPair(ctx context.Context, challengeID, userID uuid.UUID) (*domain.Membership, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if m, ok := s.findMembership(challengeID, userID); ok {
		return &m, nil
	}
	return nil, nil
}

func (s *Store) findMembership(challengeID, userID uuid.UUID) (domain.Membership, bool) {
	for _, m := range s.memberships {
		if m.ChallengeID == challengeID && m.UserID == userID {
			return m, true
		}
	}
	return domain.Membership{}, false
}

func (s *Store) CreateMembership(ctx context.Context, m domain.Membership) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.findMembership(m.ChallengeID, m.UserID); ok {
		return domain.ErrAlreadyMember
	}
	s.memberships[m.ID] = m
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// RedeemInvite checks and consumes one use of code and creates the
// membership under the same lock.
func (s *Store) RedeemInvite(ctx context.Context, code string, m domain.Membership, now time.Time) (domain.Membership, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ic, ok := s.invites[code]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	if !ic.Redeemable(now) {
		return domain.Membership{}, domain.ErrInviteUnavailable
	}
	c, ok := s.challenges[ic.ChallengeID]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	if c.Status == domain.StatusCompleted || c.Status == domain.StatusCancelled {
		return domain.Membership{}, domain.ErrChallengeClosed
	}
	if _, exists := s.findMembership(ic.ChallengeID, m.UserID); exists {
		return domain.Membership{}, domain.ErrAlreadyMember
	}
	m.ChallengeID = ic.ChallengeID
	s.memberships[m.ID] = m
	ic.UsedCount++
	s.invites[code] = ic
	return m, nil
}

func (s *Store) GetInvite(ctx context.Context, code string) (domain.InviteCode, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ic, ok := s.invites[code]
	if !ok {
		return domain.InviteCode{}, domain.ErrNotFound
	}
	return ic, nil
}

func cloneResult(r domain.DailyResult) domain.DailyResult {
	r.ProblemsSolved = slices.Clone(r.ProblemsSolved)
	if r.Metadata != nil {
		r.Metadata = maps.Clone(r.Metadata)
	}
	return r
}

func (s *Store) GetResult(ctx context.Context, key domain.ResultKey) (*domain.DailyResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, ok := s.results[key]
	if !ok {
		return nil, nil
	}
	r = cloneResult(r)
	return &r, nil
}

// RecordPending inserts a pending result unless one exists. An existing
// pending result only gets its diagnostics refreshed.
func (s *Store) RecordPending(ctx context.Context, r domain.DailyResult) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	existing, ok := s.results[r.Key()]
	if ok {
		if existing.Pending() {
			existing.Metadata = maps.Clone(r.Metadata)
			s.results[r.Key()] = existing
		}
		return nil
	}
	r = cloneResult(r)
	r.Completed = nil
	r.EvaluatedAt = nil
	s.results[r.Key()] = r
	return nil
}

func (s *Store) RecordOutcome(ctx context.Context, o domain.Outcome) (domain.RecordedOutcome, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := o.Result.Key()
	if existing, ok := s.results[key]; ok && !existing.Pending() {
		return domain.RecordedOutcome{AlreadyResolved: true, Membership: s.memberships[key.MemberID]}, nil
	}
	m, ok := s.memberships[key.MemberID]
	if !ok || m.ChallengeID != key.ChallengeID {
		return domain.RecordedOutcome{}, domain.ErrNotFound
	}

	var later streak.Later
	for k, r := range s.results {
		if k.MemberID != key.MemberID || !r.Date.After(key.Date) || r.Pending() {
			continue
		}
		if r.Passed() {
			later.Completed++
		} else {
			later.Failed = true
		}
	}
	tr := streak.Backfill(streak.State{Current: m.CurrentStreak, Longest: m.LongestStreak}, o.Result.Passed(), later)
	m.CurrentStreak = tr.Next.Current
	m.LongestStreak = tr.Next.Longest
	if o.Penalty != nil {
		s.penalties = append(s.penalties, *o.Penalty)
		m.TotalPenalties += o.Penalty.Amount
	}
	s.memberships[m.ID] = m
	s.results[key] = cloneResult(o.Result)

	return domain.RecordedOutcome{Streak: tr, Membership: m}, nil
}

func (s *Store) ListPendingResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.DailyResult
	for _, r := range s.results {
		if r.Pending() && r.Date.Within(from, to) {
			res = append(res, cloneResult(r))
		}
	}
	sortResults(res, false)
	return res, nil
}

func (s *Store) ListChallengeResults(ctx context.Context, challengeID uuid.UUID, day domain.Day) ([]domain.DailyResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.DailyResult
	for _, r := range s.results {
		if r.ChallengeID == challengeID && r.Date.Equal(day) {
			res = append(res, cloneResult(r))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MemberID.String() < res[j].MemberID.String() })
	return res, nil
}

func (s *Store) ListMemberResults(ctx context.Context, memberID uuid.UUID, limit int) ([]domain.DailyResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.DailyResult
	for _, r := range s.results {
		if r.MemberID == memberID {
			res = append(res, cloneResult(r))
		}
	}
	sortResults(res, true)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func sortResults(res []domain.DailyResult, desc bool) {
	sort.Slice(res, func(i, j int) bool {
		if desc {
			return res[i].Date.After(res[j].Date)
		}
		return res[i].Date.Before(res[j].Date)
	})
}

func (s *Store) ListPenalties(ctx context.Context, memberID uuid.UUID) ([]domain.PenaltyEntry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.PenaltyEntry
	for _, p := range s.penalties {
		if p.MemberID == memberID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *Store) ListReminderCandidates(ctx context.Context, day domain.Day) ([]domain.ReminderCandidate, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.ReminderCandidate
	for _, m := range s.memberships {
		if !m.IsActive || m.CurrentStreak == 0 {
			continue
		}
		c, ok := s.challenges[m.ChallengeID]
		if !ok || !c.EvaluableOn(day) {
			continue
		}
		r, ok := s.results[domain.ResultKey{ChallengeID: c.ID, MemberID: m.ID, Date: day}]
		if ok && r.Passed() {
			continue
		}
		u, ok := s.users[m.UserID]
		if !ok {
			continue
		}
		res = append(res, domain.ReminderCandidate{Challenge: c, Membership: m, User: u})
	}
	return res, nil
}

// ListActiveMemberDetails returns every active membership ordered by user,
// then challenge name.
func (s *Store) ListActiveMemberDetails(ctx context.Context) ([]domain.MemberDetail, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.MemberDetail
	for _, m := range s.memberships {
		if !m.IsActive {
			continue
		}
		c, ok := s.challenges[m.ChallengeID]
		if !ok {
			continue
		}
		u, ok := s.users[m.UserID]
		if !ok {
			continue
		}
		res = append(res, domain.MemberDetail{Challenge: c, Membership: m, User: u})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].User.ID != res[j].User.ID {
			return res[i].User.ID.String() < res[j].User.ID.String()
		}
		return res[i].Challenge.Name < res[j].Challenge.Name
	})
	return res, nil
}

func (s *Store) ListCompletedResults(ctx context.Context, from, to domain.Day) ([]domain.DailyResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []domain.DailyResult
	for _, r := range s.results {
		if r.Passed() && r.Date.Within(from, to) {
			res = append(res, cloneResult(r))
		}
	}
	sortResults(res, false)
	return res, nil
}

func (s *Store) DailyStats(ctx context.Context, from, to domain.Day) ([]domain.DayStats, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	byDay := map[domain.Day]*domain.DayStats{}
	for _, r := range s.results {
		if !r.Date.Within(from, to) {
			continue
		}
		st, ok := byDay[r.Date]
		if !ok {
			st = &domain.DayStats{Date: r.Date}
			byDay[r.Date] = st
		}
		st.Total++
		switch {
		case r.Pending():
			st.Pending++
		case r.Passed():
			st.Passed++
		default:
			st.Failed++
		}
	}
	res := make([]domain.DayStats, 0, len(byDay))
	for _, st := range byDay {
		res = append(res, *st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

func (s *Store) ChallengeStats(ctx context.Context, from, to domain.Day) ([]domain.ChallengeStats, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	byChallenge := map[uuid.UUID]*domain.ChallengeStats{}
	for _, r := range s.results {
		if r.Pending() || !r.Date.Within(from, to) {
			continue
		}
		st, ok := byChallenge[r.ChallengeID]
		if !ok {
			st = &domain.ChallengeStats{ChallengeID: r.ChallengeID}
			byChallenge[r.ChallengeID] = st
		}
		st.Total++
		if r.Passed() {
			st.Passed++
		} else {
			st.Failed++
		}
	}
	res := make([]domain.ChallengeStats, 0, len(byChallenge))
	for _, st := range byChallenge {
		res = append(res, *st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChallengeID.String() < res[j].ChallengeID.String() })
	return res, nil
}

func (s *Store) GetProblem(ctx context.Context, slug string) (*domain.ProblemMetadata, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.problems[slug]
	if !ok {
		return nil, nil
	}
	p.TopicTags = slices.Clone(p.TopicTags)
	return &p, nil
}

func (s *Store) UpsertProblem(ctx context.Context, p domain.ProblemMetadata) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	p.TopicTags = slices.Clone(p.TopicTags)
	s.problems[p.TitleSlug] = p
	return nil
}

func (s *Store) ReplaceSession(ctx context.Context, sess domain.LeetcodeSession) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for id, old := range s.sessions {
		if old.UserID == sess.UserID {
			old.IsActive = false
			s.sessions[id] = old
		}
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) ActiveSession(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.LeetcodeSession, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var best *domain.LeetcodeSession
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Usable(now) {
			continue
		}
		if best == nil || sess.LastUsedAt.After(best.LastUsedAt) {
			cp := sess
			best = &cp
		}
	}
	return best, nil
}

func (s *Store) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	sess.LastUsedAt = at
	s.sessions[id] = sess
	return nil
}

func (s *Store) DeactivateSessions(ctx context.Context, userID uuid.UUID) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsActive = false
			s.sessions[id] = sess
		}
	}
	return nil
}
