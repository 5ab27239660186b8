// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// memUserRepo is an in-memory UserRepository for service tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
	// failWith, when set, is returned by every method.
	failWith error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[ulid.ULID]*auth.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrEmailTaken
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

var _ auth.UserRepository = (*memUserRepo)(nil)

func newTestService(t *testing.T) (*auth.Service, *memUserRepo, *auth.TokenIssuer) {
	t.Helper()
	repo := newMemUserRepo()
	issuer := newTestIssuer(t)
	svc := auth.NewService(repo, auth.NewArgon2idHasher(), issuer)
	return svc, repo, issuer
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user with hashed password", func(t *testing.T) {
		svc, repo, _ := newTestService(t)

		user, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.Username)
		assert.NotEqual(t, "pw1", stored.PasswordHash)
		assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	})

	t.Run("duplicate email is rejected without a second row", func(t *testing.T) {
		svc, repo, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "bob", "a@x.com", "pw2")
		require.ErrorIs(t, err, auth.ErrEmailTaken)
		assert.Len(t, repo.users, 1)
	})

	t.Run("duplicate email detection is case-insensitive", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "bob", "A@X.COM", "pw2")
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Register(ctx, "alice", "a@x.com", "")
		assert.Error(t, err)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("correct credentials return decodable token", func(t *testing.T) {
		svc, _, issuer := newTestService(t)
		user, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		token, loggedIn, err := svc.Login(ctx, "alice", "pw1")
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.Equal(t, user.ID, loggedIn.ID)

		decoded, err := issuer.VerifyAccess(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, decoded)
	})

	t.Run("wrong password returns no token", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		token, user, err := svc.Login(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Empty(t, token)
		assert.Nil(t, user)
	})

	t.Run("unknown username yields the same error as wrong password", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		_, _, unknownErr := svc.Login(ctx, "nobody", "pw1")
		_, _, wrongErr := svc.Login(ctx, "alice", "wrong")

		assert.ErrorIs(t, unknownErr, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, wrongErr, auth.ErrInvalidCredentials)
		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	})

	t.Run("login is by username, not email", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		_, _, err = svc.Login(ctx, "a@x.com", "pw1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token loads the user", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		registered, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		token, _, err := svc.Login(ctx, "alice", "pw1")
		require.NoError(t, err)

		user, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("token for a vanished user is invalid", func(t *testing.T) {
		svc, repo, issuer := newTestService(t)
		token, err := issuer.IssueAccess(ulid.Make())
		require.NoError(t, err)
		_ = repo

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, auth.ErrAccessTokenInvalid)
	})

	t.Run("garbage token is invalid", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Authenticate(ctx, "garbage")
		assert.ErrorIs(t, err, auth.ErrAccessTokenInvalid)
	})
}
