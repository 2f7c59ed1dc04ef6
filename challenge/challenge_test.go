package challenge_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/challenge"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/memstore"
	"github.com/programme-lv/streaks/srvcerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChallenge(store *memstore.Store, vis domain.Visibility, status domain.ChallengeStatus) domain.Challenge {
	today := domain.Today()
	c := domain.Challenge{
		ID:                   uuid.New(),
		OwnerID:              uuid.New(),
		Name:                 "leetcode every day",
		MinSubmissionsPerDay: 1,
		StartDate:            today,
		EndDate:              today.AddDays(30),
		Status:               status,
		Visibility:           vis,
	}
	store.PutChallenge(c)
	return c
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var se *srvcerror.Error
	require.True(t, errors.As(err, &se), "expected service error, got %v", err)
	return se.ErrorCode()
}

func TestJoinPublicChallenge(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)
	c := seedChallenge(store, domain.VisibilityPublic, domain.StatusActive)
	userID := uuid.New()

	m, err := srvc.Join(t.Context(), userID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, m.ChallengeID)
	assert.True(t, m.IsActive)
	assert.Zero(t, m.CurrentStreak)

	_, err = srvc.Join(t.Context(), userID, c.ID)
	assert.Equal(t, challenge.ErrCodeAlreadyMember, errCode(t, err))
}

func TestJoinRejections(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)

	private := seedChallenge(store, domain.VisibilityPrivate, domain.StatusActive)
	_, err := srvc.Join(t.Context(), uuid.New(), private.ID)
	assert.Equal(t, challenge.ErrCodeChallengePrivate, errCode(t, err))

	for _, st := range []domain.ChallengeStatus{domain.StatusCompleted, domain.StatusCancelled} {
		c := seedChallenge(store, domain.VisibilityPublic, st)
		_, err := srvc.Join(t.Context(), uuid.New(), c.ID)
		assert.Equal(t, challenge.ErrCodeChallengeClosed, errCode(t, err), "status %s", st)
	}

	_, err = srvc.Join(t.Context(), uuid.New(), uuid.New())
	assert.Equal(t, challenge.ErrCodeChallengeNotFound, errCode(t, err))
}

func TestJoinPendingChallengeIsAllowed(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)
	c := seedChallenge(store, domain.VisibilityPublic, domain.StatusPending)
	_, err := srvc.Join(t.Context(), uuid.New(), c.ID)
	require.NoError(t, err)
}

func TestRedeemInviteJoinsPrivateChallenge(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)
	c := seedChallenge(store, domain.VisibilityPrivate, domain.StatusActive)
	store.PutInvite(domain.InviteCode{Code: "FRIENDS", ChallengeID: c.ID, MaxUses: 5})

	userID := uuid.New()
	m, err := srvc.RedeemInvite(t.Context(), userID, " FRIENDS ")
	require.NoError(t, err)
	assert.Equal(t, c.ID, m.ChallengeID)
	assert.Equal(t, userID, m.UserID)

	_, err = srvc.RedeemInvite(t.Context(), userID, "FRIENDS")
	assert.Equal(t, challenge.ErrCodeAlreadyMember, errCode(t, err))

	ic, err := store.GetInvite(t.Context(), "FRIENDS")
	require.NoError(t, err)
	assert.Equal(t, 1, ic.UsedCount)
}

func TestRedeemInviteErrors(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)
	c := seedChallenge(store, domain.VisibilityPublic, domain.StatusActive)
	past := time.Now().Add(-time.Hour)
	store.PutInvite(domain.InviteCode{Code: "OLD", ChallengeID: c.ID, MaxUses: 5, ExpiresAt: &past})

	_, err := srvc.RedeemInvite(t.Context(), uuid.New(), "OLD")
	assert.Equal(t, challenge.ErrCodeInviteExhausted, errCode(t, err))

	_, err = srvc.RedeemInvite(t.Context(), uuid.New(), "NOPE")
	assert.Equal(t, challenge.ErrCodeInviteNotFound, errCode(t, err))

	_, err = srvc.RedeemInvite(t.Context(), uuid.New(), "  ")
	assert.Equal(t, srvcerror.ErrCodeInvalidRequest, errCode(t, err))
}

func TestConcurrentRedemptionsRespectMaxUses(t *testing.T) {
	store := memstore.New()
	srvc := challenge.NewService(store)
	c := seedChallenge(store, domain.VisibilityPrivate, domain.StatusActive)
	store.PutInvite(domain.InviteCode{Code: "THREE", ChallengeID: c.ID, MaxUses: 3})

	var ok, exhausted atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := srvc.RedeemInvite(t.Context(), uuid.New(), "THREE")
			if err == nil {
				ok.Add(1)
				return
			}
			var se *srvcerror.Error
			if errors.As(err, &se) && se.ErrorCode() == challenge.ErrCodeInviteExhausted {
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 3, ok.Load())
	assert.EqualValues(t, 17, exhausted.Load())

	members, err := store.ListActiveMemberships(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}
