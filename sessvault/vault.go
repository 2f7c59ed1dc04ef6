package sessvault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/lcclient"
)

type Store interface {
	// ReplaceSession deactivates every session of the user and inserts s.
	ReplaceSession(ctx context.Context, s domain.LeetcodeSession) error
	// ActiveSession returns the newest usable session, or nil.
	ActiveSession(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.LeetcodeSession, error)
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	DeactivateSessions(ctx context.Context, userID uuid.UUID) error
}

// ProfileFetcher validates a session against the upstream.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string, sess *lcclient.Session) (lcclient.Profile, error)
}

type Vault struct {
	sealer  *Sealer
	store   Store
	fetcher ProfileFetcher
	log     *slog.Logger
	now     func() time.Time
}

func NewVault(sealer *Sealer, store Store, fetcher ProfileFetcher) *Vault {
	return &Vault{
		sealer:  sealer,
		store:   store,
		fetcher: fetcher,
		log:     slog.Default().With("module", "sessvault"),
		now:     time.Now,
	}
}

// Store seals and saves sess as the user's only active session. When
// username is set the session is first checked upstream; a failed check is
// logged and the session is stored anyway, since the check itself may be
// what failed. The returned bool reports whether validation passed.
func (v *Vault) Store(ctx context.Context, userID uuid.UUID, username string, sess lcclient.Session, expiresAt *time.Time) (bool, error) {
	if sess.Cookie == "" {
		return false, fmt.Errorf("session cookie is empty")
	}
	validated := false
	if username != "" && v.fetcher != nil {
		if _, err := v.fetcher.FetchProfile(ctx, username, &sess); err != nil {
			v.log.Warn("session validation failed, storing anyway",
				"user_id", userID, "error", err)
		} else {
			validated = true
		}
	}

	plain, err := json.Marshal(sess)
	if err != nil {
		return false, err
	}
	sealed, err := v.sealer.Seal(plain)
	if err != nil {
		return false, fmt.Errorf("failed to seal session: %w", err)
	}
	now := v.now().UTC()
	err = v.store.ReplaceSession(ctx, domain.LeetcodeSession{
		ID:         uuid.New(),
		UserID:     userID,
		Sealed:     sealed,
		ExpiresAt:  expiresAt,
		IsActive:   true,
		LastUsedAt: now,
		CreatedAt:  now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	v.log.Info("leetcode session stored", "user_id", userID, "validated", validated)
	return validated, nil
}

// Active returns the user's session, or nil when there is none or it
// cannot be opened. Callers then fall back to public access.
func (v *Vault) Active(ctx context.Context, userID uuid.UUID) (*lcclient.Session, error) {
	now := v.now().UTC()
	rec, err := v.store.ActiveSession(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	plain, err := v.sealer.Open(rec.Sealed)
	if err != nil {
		v.log.Warn("failed to open session", "user_id", userID, "error", err)
		return nil, nil
	}
	var sess lcclient.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		v.log.Warn("failed to decode session", "user_id", userID, "error", err)
		return nil, nil
	}
	if err := v.store.TouchSession(ctx, rec.ID, now); err != nil {
		v.log.Debug("failed to touch session", "session_id", rec.ID, "error", err)
	}
	return &sess, nil
}

func (v *Vault) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := v.store.DeactivateSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return nil
}
