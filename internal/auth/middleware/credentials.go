package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid credentials")

// Principal is an authenticated user.
type Principal struct {
	Subject string
	Role    string
}

// CredentialChecker verifies a username and password.
type CredentialChecker interface {
	Check(ctx context.Context, username, password string) (Principal, error)
}

type account struct {
	hash []byte
	role string
}

// StaticChecker checks against bcrypt hashes held in memory, typically loaded
// from configuration.
type StaticChecker struct {
	accounts map[string]account
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{accounts: map[string]account{}}
}

// Add registers username with a bcrypt hash. An empty hash is rejected.
func (c *StaticChecker) Add(username, bcryptHash, role string) error {
	username = strings.TrimSpace(username)
	if username == "" || bcryptHash == "" {
		return errors.New("username and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
		return errors.Wrapf(err, "password hash for %s", username)
	}
	c.accounts[strings.ToLower(username)] = account{hash: []byte(bcryptHash), role: role}
	return nil
}

func (c *StaticChecker) Check(_ context.Context, username, password string) (Principal, error) {
	a, ok := c.accounts[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		// compare anyway so unknown users cost the same
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Principal{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return Principal{}, ErrBadCredentials
	}
	return Principal{Subject: strings.TrimSpace(username), Role: a.role}, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.DefaultCost)
