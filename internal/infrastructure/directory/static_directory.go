// Package directory provides the credential verifier and subject directory
// backed by the users section of the configuration.
package directory

import (
	"context"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// StaticDirectory verifies bcrypt password hashes and resolves subjects from a
// fixed user list.
type StaticDirectory struct {
	byUsername map[string]config.UserConfig
	bySubject  map[string]config.UserConfig
	dummyHash  []byte
}

var (
	_ service.CredentialVerifier = (*StaticDirectory)(nil)
	_ service.SubjectDirectory   = (*StaticDirectory)(nil)
)

// NewStaticDirectory indexes users. Every password hash must be a bcrypt hash and
// usernames and subjects must be unique.
func NewStaticDirectory(users []config.UserConfig) (*StaticDirectory, error) {
	d := &StaticDirectory{
		byUsername: make(map[string]config.UserConfig, len(users)),
		bySubject:  make(map[string]config.UserConfig, len(users)),
	}
	cost := bcrypt.DefaultCost
	for _, u := range users {
		c, err := bcrypt.Cost([]byte(u.PasswordHash))
		if err != nil {
			return nil, errors.ErrInvalidArgument.WithMessage("user %q has no valid bcrypt password_hash", u.Username).WithCause(err)
		}
		cost = c
		if _, dup := d.byUsername[u.Username]; dup {
			return nil, errors.ErrInvalidArgument.WithMessage("duplicate username %q", u.Username)
		}
		if _, dup := d.bySubject[u.Subject]; dup {
			return nil, errors.ErrInvalidArgument.WithMessage("duplicate subject %q", u.Subject)
		}
		d.byUsername[u.Username] = u
		d.bySubject[u.Subject] = u
	}

	// compared against for unknown usernames so both paths cost one bcrypt check
	dummy, err := bcrypt.GenerateFromPassword([]byte("credcore-unknown-user"), cost)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	d.dummyHash = dummy
	return d, nil
}

// Verify returns the subject of username when password matches its hash.
func (d *StaticDirectory) Verify(ctx context.Context, username, password string) (string, error) {
	u, ok := d.byUsername[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
		return "", errors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", errors.ErrInvalidCredentials
	}
	return u.Subject, nil
}

// Lookup returns a copy of the subject's roles and attributes.
func (d *StaticDirectory) Lookup(ctx context.Context, subjectID string) (*models.Subject, error) {
	u, ok := d.bySubject[subjectID]
	if !ok {
		return nil, errors.ErrInvalidCredentials.WithMessage("unknown subject")
	}
	subject := &models.Subject{
		ID:    u.Subject,
		Roles: append([]string(nil), u.Roles...),
	}
	if len(u.Attributes) > 0 {
		subject.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			subject.Attributes[k] = v
		}
	}
	return subject, nil
}
