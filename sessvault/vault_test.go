package sessvault_test

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/memstore"
	"github.com/programme-lv/streaks/sessvault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct{ err error }

func (f fakeFetcher) FetchProfile(ctx context.Context, username string, sess *lcclient.Session) (lcclient.Profile, error) {
	return lcclient.Profile{}, f.err
}

func newSealer(t *testing.T) *sessvault.Sealer {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	s, err := sessvault.NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal([]byte(`{"cookie":"abc"}`))
	require.NoError(t, err)
	assert.Len(t, strings.Split(sealed, ":"), 3)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"cookie":"abc"}`, string(plain))

	_, err = newSealer(t).Open(sealed)
	require.Error(t, err, "other key must not open")
	_, err = s.Open("nope")
	require.ErrorIs(t, err, sessvault.ErrMalformed)
}

func TestNewSealerFromHexValidatesLength(t *testing.T) {
	_, err := sessvault.NewSealerFromHex(strings.Repeat("0f", 16))
	require.Error(t, err)
	_, err = sessvault.NewSealerFromHex(strings.Repeat("0f", 32))
	require.NoError(t, err)
}

func TestStoreKeepsSessionWhenValidationFails(t *testing.T) {
	store := memstore.New()
	v := sessvault.NewVault(newSealer(t), store, fakeFetcher{err: errors.New("upstream down")})
	ctx := context.Background()
	userID := uuid.New()

	validated, err := v.Store(ctx, userID, "alice", lcclient.Session{Cookie: "c1", CsrfToken: "t1"}, nil)
	require.NoError(t, err)
	assert.False(t, validated)

	sess, err := v.Active(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "c1", sess.Cookie)
}

func TestStoreReplacesPreviousSession(t *testing.T) {
	store := memstore.New()
	v := sessvault.NewVault(newSealer(t), store, fakeFetcher{})
	ctx := context.Background()
	userID := uuid.New()

	_, err := v.Store(ctx, userID, "alice", lcclient.Session{Cookie: "old"}, nil)
	require.NoError(t, err)
	validated, err := v.Store(ctx, userID, "alice", lcclient.Session{Cookie: "new"}, nil)
	require.NoError(t, err)
	assert.True(t, validated)

	sess, err := v.Active(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "new", sess.Cookie)

	require.NoError(t, v.Invalidate(ctx, userID))
	sess, err = v.Active(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestExpiredSessionIsIgnored(t *testing.T) {
	store := memstore.New()
	v := sessvault.NewVault(newSealer(t), store, nil)
	ctx := context.Background()
	userID := uuid.New()
	past := time.Now().Add(-time.Hour)

	_, err := v.Store(ctx, userID, "", lcclient.Session{Cookie: "c"}, &past)
	require.NoError(t, err)
	sess, err := v.Active(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestUndecryptableSessionFallsBackToPublic(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, store.ReplaceSession(ctx, domain.LeetcodeSession{
		ID: uuid.New(), UserID: userID, Sealed: "00:11:22", IsActive: true, LastUsedAt: time.Now(),
	}))

	v := sessvault.NewVault(newSealer(t), store, nil)
	sess, err := v.Active(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreRejectsEmptyCookie(t *testing.T) {
	v := sessvault.NewVault(newSealer(t), memstore.New(), nil)
	_, err := v.Store(context.Background(), uuid.New(), "", lcclient.Session{}, nil)
	require.Error(t, err)
}
