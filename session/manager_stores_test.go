package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/domain/mocks"
	"go.pilab.hu/recovery/navigation"
)

func TestSignInWithProvider_ReadBackFailureUsesWrittenFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileStore(ctrl)
	store := mocks.NewMockSessionCache(ctrl)
	idp := &MockIdentityProvider{}
	nav := &navigation.Recorder{}

	loginAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	mgr := NewManager(idp, profiles, store, nav, Options{Now: func() time.Time { return loginAt }})
	t.Cleanup(func() { _ = mgr.Close() })

	store.EXPECT().Delete(gomock.Any(), DefaultCacheKey).Return(nil)
	require.NoError(t, mgr.Start(context.Background()))
	idp.notify(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mgr.WaitReady(ctx))

	cred := googleCredential()
	idp.On("RequestInteractiveCredential", mock.Anything, domain.ProviderGoogle).Return(cred, nil)
	idp.On("ExchangeCredential", mock.Anything, cred).Return(googleSession("u9"), nil)

	written := map[string]any{
		"provider":    "google",
		"lastLogin":   loginAt,
		"email":       "user@example.com",
		"displayName": "Test User",
		"photoURL":    "https://example.com/p.jpg",
	}
	gomock.InOrder(
		profiles.EXPECT().Upsert(gomock.Any(), domain.UsersCollection, "u9", written, true).Return(nil),
		profiles.EXPECT().Get(gomock.Any(), domain.UsersCollection, "u9").Return(nil, errors.New("read timeout")),
	)
	// A failed mirror write is logged, not returned.
	store.EXPECT().Set(gomock.Any(), DefaultCacheKey, gomock.Any()).Return(errors.New("disk full"))

	require.NoError(t, mgr.SignInWithProvider(context.Background(), domain.ProviderGoogle))

	s := mgr.Current()
	require.NotNil(t, s)
	assert.Equal(t, "u9", s.Identity)
	assert.Equal(t, written, s.Profile)
	require.NotNil(t, s.LastLoginAt)
	assert.Equal(t, loginAt, *s.LastLoginAt)
	assert.Equal(t, []navigation.Transition{{Target: DefaultPostAuthTarget, Mode: domain.NavigationReplace}}, nav.Transitions())
}

func TestSignOut_RevokeFailureRewritesMirror(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileStore(ctrl)
	store := mocks.NewMockSessionCache(ctrl)
	idp := &MockIdentityProvider{}
	nav := &navigation.Recorder{}

	mgr := NewManager(idp, profiles, store, nav, Options{})
	t.Cleanup(func() { _ = mgr.Close() })

	cred := googleCredential()
	idp.On("RequestInteractiveCredential", mock.Anything, domain.ProviderGoogle).Return(cred, nil)
	idp.On("ExchangeCredential", mock.Anything, cred).Return(googleSession("u9"), nil)
	profiles.EXPECT().Upsert(gomock.Any(), domain.UsersCollection, "u9", gomock.Any(), true).Return(nil)
	profiles.EXPECT().Get(gomock.Any(), domain.UsersCollection, "u9").Return(map[string]any{"provider": "google"}, nil)
	store.EXPECT().Set(gomock.Any(), DefaultCacheKey, gomock.Any()).Return(nil)
	require.NoError(t, mgr.SignInWithProvider(context.Background(), domain.ProviderGoogle))
	before := mgr.Current()

	cause := errors.New("network down")
	idp.On("RevokeSession", mock.Anything).Return(cause)
	gomock.InOrder(
		store.EXPECT().Delete(gomock.Any(), DefaultCacheKey).Return(nil),
		store.EXPECT().Set(gomock.Any(), DefaultCacheKey, gomock.Any()).Return(nil),
	)

	err := mgr.SignOut(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, before, mgr.Current())
	assert.Len(t, nav.Transitions(), 1)
}
