package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestStaticDirectory_VerifyAndLookup(t *testing.T) {
	ctx := context.Background()
	d, err := NewStaticDirectory([]config.UserConfig{
		{Username: "alice", PasswordHash: hash(t, "wonderland"), Subject: "user-1", Roles: []string{"admin"}, Attributes: map[string]string{"tenant": "acme"}},
		{Username: "bob", PasswordHash: hash(t, "builder"), Subject: "user-2"},
	})
	require.NoError(t, err)

	sub, err := d.Verify(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = d.Verify(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	_, err = d.Verify(ctx, "mallory", "wonderland")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)

	subject, err := d.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, subject.Roles)
	assert.Equal(t, "acme", subject.Attributes["tenant"])

	subject.Attributes["tenant"] = "changed"
	again, err := d.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", again.Attributes["tenant"], "lookups return copies")

	_, err = d.Lookup(ctx, "user-9")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestNewStaticDirectory_RejectsBadEntries(t *testing.T) {
	_, err := NewStaticDirectory([]config.UserConfig{{Username: "a", PasswordHash: "plaintext", Subject: "s"}})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	h := hash(t, "pw")
	_, err = NewStaticDirectory([]config.UserConfig{
		{Username: "a", PasswordHash: h, Subject: "s1"},
		{Username: "a", PasswordHash: h, Subject: "s2"},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}
