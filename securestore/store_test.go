package securestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironsession/internal/util"
	"github.com/jmcleod/ironsession/storage"
	bboltstorage "github.com/jmcleod/ironsession/storage/bbolt"
	"github.com/jmcleod/ironsession/storage/memory"
)

func newWrappingKey(t *testing.T) []byte {
	t.Helper()
	k, err := util.NewAESKey()
	require.NoError(t, err)
	return k
}

func openTestStore(t *testing.T, repo storage.Repository, wrappingKey []byte) *Store {
	t.Helper()
	s, err := Open(repo, wrappingKey)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := t.Context()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	_, ok, err := s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyAccessToken, "access-1"))
	v, ok, err := s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "access-1", v)

	require.NoError(t, s.Set(ctx, KeyAccessToken, "access-2"))
	v, _, err = s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-2", v)

	require.NoError(t, s.Delete(ctx, KeyAccessToken))
	_, ok, err = s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is not an error.
	require.NoError(t, s.Delete(ctx, KeyAccessToken))
}

func TestStore_EmptyValueIsPresent(t *testing.T) {
	ctx := t.Context()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	require.NoError(t, s.Set(ctx, KeyBiometricEnabled, ""))
	v, ok, err := s.Get(ctx, KeyBiometricEnabled)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestStore_UnknownKey(t *testing.T) {
	ctx := t.Context()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	_, _, err := s.Get(ctx, Key("password"))
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.ErrorIs(t, s.Set(ctx, Key("password"), "x"), ErrUnknownKey)
	assert.ErrorIs(t, s.Delete(ctx, Key("password")), ErrUnknownKey)
	assert.ErrorIs(t, s.DeleteAll(ctx, KeyUser, Key("password")), ErrUnknownKey)
}

func TestStore_ValuesAreSealed(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	s := openTestStore(t, repo, newWrappingKey(t))

	require.NoError(t, s.Set(ctx, KeyRefreshToken, "very-secret-refresh-token"))

	env, err := repo.Get(defaultNamespace, itemRecordType, string(KeyRefreshToken))
	require.NoError(t, err)
	assert.Equal(t, storage.SchemeAES256GCM, env.Scheme)
	assert.NotContains(t, string(env.Ciphertext), "very-secret")
}

func TestStore_ValuesBoundToKey(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	s := openTestStore(t, repo, newWrappingKey(t))

	require.NoError(t, s.Set(ctx, KeyAccessToken, "access"))
	env, err := repo.Get(defaultNamespace, itemRecordType, string(KeyAccessToken))
	require.NoError(t, err)
	// Move the sealed access token under the refresh token name.
	require.NoError(t, repo.Put(defaultNamespace, itemRecordType, string(KeyRefreshToken), env))

	_, _, err = s.Get(ctx, KeyRefreshToken)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestStore_DeleteAllAndPresent(t *testing.T) {
	ctx := t.Context()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	for _, k := range []Key{KeyUser, KeyProfiles, KeyBiometricCredentials} {
		require.NoError(t, s.Set(ctx, k, "v"))
	}
	present, err := s.Present(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyUser, KeyProfiles, KeyBiometricCredentials}, present)

	require.NoError(t, s.DeleteAll(ctx, KeyAccessToken, KeyUser, KeyProfiles))
	present, err = s.Present(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyBiometricCredentials}, present)
}

func TestStore_ReopenWithSameWrappingKey(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "session.db")
	wk := newWrappingKey(t)

	repo, err := bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	s, err := Open(repo, wk)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyUser, `{"id":"u1"}`))
	s.Close()
	require.NoError(t, repo.Close())

	repo, err = bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer repo.Close()
	s = openTestStore(t, repo, wk)
	v, ok, err := s.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"u1"}`, v)
}

func TestStore_ChangedWrappingKeyDiscardsValues(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()

	s, err := Open(repo, newWrappingKey(t))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyUser, `{"id":"u1"}`))
	s.Close()

	s = openTestStore(t, repo, newWrappingKey(t))
	_, ok, err := s.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyUser, `{"id":"u2"}`))
	v, _, err := s.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u2"}`, v)
}

func TestStore_Closed(t *testing.T) {
	ctx := t.Context()
	s, err := Open(memory.NewRepository(), newWrappingKey(t))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyUser, "u"))
	s.Close()

	_, _, err = s.Get(ctx, KeyUser)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, KeyUser, "u"), ErrClosed)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	_, _, err := s.Get(ctx, KeyUser)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_RejectsShortWrappingKey(t *testing.T) {
	_, err := Open(memory.NewRepository(), []byte("short"))
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 7)
	for _, k := range keys {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Key("other").Valid())

	keys[0] = "mutated"
	assert.Equal(t, KeyAccessToken, Keys()[0])
}

// failingPutRepo fails batch writes of one record id.
type failingPutRepo struct {
	storage.Repository
	failID string
}

func (r *failingPutRepo) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	return r.Repository.Batch(namespace, func(tx storage.BatchTx) error {
		return fn(&failingPutTx{BatchTx: tx, failID: r.failID})
	})
}

type failingPutTx struct {
	storage.BatchTx
	failID string
}

func (tx *failingPutTx) Put(recordType, recordID string, envelope *storage.Envelope) error {
	if recordID == tx.failID {
		return errors.New("disk full")
	}
	return tx.BatchTx.Put(recordType, recordID, envelope)
}

func TestStore_SetAll(t *testing.T) {
	ctx := t.Context()
	s := openTestStore(t, memory.NewRepository(), newWrappingKey(t))

	require.NoError(t, s.Set(ctx, KeyAccessToken, "old-access"))
	require.NoError(t, s.SetAll(ctx, map[Key]string{
		KeyAccessToken:  "new-access",
		KeyRefreshToken: "new-refresh",
	}))

	for key, want := range map[Key]string{KeyAccessToken: "new-access", KeyRefreshToken: "new-refresh"} {
		got, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	assert.ErrorIs(t, s.SetAll(ctx, map[Key]string{KeyUser: "u", Key("password"): "p"}), ErrUnknownKey)
	_, ok, err := s.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetAllIsAtomic(t *testing.T) {
	ctx := t.Context()
	repo := &failingPutRepo{Repository: memory.NewRepository()}
	s := openTestStore(t, repo, newWrappingKey(t))

	require.NoError(t, s.Set(ctx, KeyAccessToken, "access-a"))
	require.NoError(t, s.Set(ctx, KeyUser, "user-a"))

	repo.failID = string(KeyUser)
	err := s.SetAll(ctx, map[Key]string{
		KeyAccessToken:  "access-b",
		KeyRefreshToken: "refresh-b",
		KeyUser:         "user-b",
	})
	require.Error(t, err)

	access, _, err := s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-a", access)
	user, _, err := s.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Equal(t, "user-a", user)
	_, ok, err := s.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	wk := newWrappingKey(t)

	first := openTestStore(t, repo, wk)
	second, err := Open(repo, wk, WithNamespace("second-device"))
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.NoError(t, first.Set(ctx, KeyUser, "first"))
	_, ok, err := second.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Set(ctx, KeyUser, "second"))
	v, _, err := first.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}
