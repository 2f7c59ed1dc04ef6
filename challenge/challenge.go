package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/logger"
	"github.com/programme-lv/streaks/srvcerror"
)

type Store interface {
	GetChallenge(ctx context.Context, id uuid.UUID) (domain.Challenge, error)
	GetMembershipByPair(ctx context.Context, challengeID, userID uuid.UUID) (*domain.Membership, error)
	// CreateMembership fails with domain.ErrAlreadyMember when the pair exists.
	CreateMembership(ctx context.Context, m domain.Membership) error
	// RedeemInvite consumes one use of code and inserts m atomically.
	RedeemInvite(ctx context.Context, code string, m domain.Membership, now time.Time) (domain.Membership, error)
}

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		log:   slog.Default().With("module", "challenge"),
		now:   time.Now,
	}
}

// Join adds userID to a public challenge that still accepts members.
func (s *Service) Join(ctx context.Context, userID, challengeID uuid.UUID) (domain.Membership, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Membership{}, ErrChallengeNotFound()
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to load challenge: %w", err)
	}
	if c.Visibility == domain.VisibilityPrivate {
		return domain.Membership{}, ErrChallengePrivate()
	}
	if closed(c) {
		return domain.Membership{}, ErrChallengeClosed()
	}

	existing, err := s.store.GetMembershipByPair(ctx, challengeID, userID)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("failed to look up membership: %w", err)
	}
	if existing != nil {
		return domain.Membership{}, ErrAlreadyMember()
	}

	m := s.newMembership(challengeID, userID)
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return domain.Membership{}, mapStoreErr(err, "failed to create membership")
	}
	logger.FromContext(ctx).Info("user joined challenge",
		"user_id", userID, "challenge_id", challengeID, "member_id", m.ID)
	return m, nil
}

// RedeemInvite joins userID to the challenge behind code, public or not.
func (s *Service) RedeemInvite(ctx context.Context, userID uuid.UUID, code string) (domain.Membership, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Membership{}, srvcerror.ErrInvalidRequest("invite code is empty")
	}
	m, err := s.store.RedeemInvite(ctx, code, s.newMembership(uuid.Nil, userID), s.now())
	if err != nil {
		return domain.Membership{}, mapStoreErr(err, "failed to redeem invite")
	}
	logger.FromContext(ctx).Info("invite redeemed",
		"user_id", userID, "challenge_id", m.ChallengeID, "member_id", m.ID)
	return m, nil
}

func (s *Service) newMembership(challengeID, userID uuid.UUID) domain.Membership {
	return domain.Membership{
		ID:          uuid.New(),
		ChallengeID: challengeID,
		UserID:      userID,
		IsActive:    true,
		JoinedAt:    s.now().UTC(),
	}
}

func closed(c domain.Challenge) bool {
	return c.Status == domain.StatusCompleted || c.Status == domain.StatusCancelled
}

func mapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyMember):
		return ErrAlreadyMember()
	case errors.Is(err, domain.ErrChallengeClosed):
		return ErrChallengeClosed()
	case errors.Is(err, domain.ErrInviteUnavailable):
		return ErrInviteExhausted()
	case errors.Is(err, domain.ErrNotFound):
		return ErrInviteNotFound()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
