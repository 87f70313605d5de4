package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byEmail map[string]*User
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: map[string]*User{}}
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) InsertUser(_ context.Context, u *User) error {
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *User) error {
	f.byEmail[u.Email] = u
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	u, err := svc.Register(ctx, "Jordan@Example.com", "Jordan", "correct-horse-9")
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", u.Email, "email stored lowercased")
	assert.Equal(t, RoleCustomer, u.Role)
	assert.NotEqual(t, "correct-horse-9", u.PasswordHash)

	got, err := svc.Authenticate(ctx, "jordan@example.com", "correct-horse-9")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "A", "long-enough-1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "A@Example.com", "A", "long-enough-2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "A", "long-enough-1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "missing@example.com", "whatever-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown email is indistinguishable from a bad password")
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	u, err := svc.Register(ctx, "a@example.com", "A", "long-enough-1")
	require.NoError(t, err)
	u.IsActive = false

	_, err = svc.Authenticate(ctx, "a@example.com", "long-enough-1")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRegisterInvalidEmail(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Register(context.Background(), "not-an-email", "A", "long-enough-1")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}
