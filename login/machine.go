// Package login implements the credential check behind the login form: it
// bootstraps the default account, verifies passwords, forces rotation of the
// bootstrapped password and mints a session on success.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jmcleod/portcullis/credential"
	"github.com/jmcleod/portcullis/session"
)

// Default bootstrap principal.
const (
	DefaultUsername = "admin"
	DefaultPassword = "changeme"
)

// MinPasswordLength is the minimum length, in characters, of a rotated password.
const MinPasswordLength = 8

// Outcome is the terminal state of one login attempt.
type Outcome int

const (
	Rejected Outcome = iota
	RotationRequired
	RotationInvalid
	SessionIssued
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case RotationRequired:
		return "rotation_required"
	case RotationInvalid:
		return "rotation_invalid"
	case SessionIssued:
		return "session_issued"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt is one submission of the login form. NewPassword and
// ConfirmPassword are set only when completing a rotation.
type Attempt struct {
	Username        string
	Password        string
	NewPassword     string
	ConfirmPassword string
}

// Result describes how an attempt ended. Message is safe to show to the user;
// Reason is for audit logging only.
type Result struct {
	Outcome  Outcome
	Username string
	Ticket   session.Ticket
	Message  string
	Reason   error
}

// Store is the credential persistence the machine needs.
type Store interface {
	Get(ctx context.Context, key string) (*credential.Record, error)
	Create(ctx context.Context, rec *credential.Record) error
	Update(ctx context.Context, key string, patch credential.Patch) (*credential.Record, error)
}

// Minter signs sessions for authenticated principals.
type Minter interface {
	Mint(username string) (session.Ticket, error)
}

// Machine runs login attempts. It holds no per-attempt state and is safe for
// concurrent use.
type Machine struct {
	store           Store
	hasher          credential.Hasher
	minter          Minter
	defaultUsername string
	defaultPassword string
	dummyDigest     string
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithDefaultCredentials overrides the bootstrap principal.
func WithDefaultCredentials(username, password string) Option {
	return func(m *Machine) {
		if username != "" {
			m.defaultUsername = username
		}
		if password != "" {
			m.defaultPassword = password
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine returns a Machine checking passwords with hasher against store
// and minting sessions with minter.
func NewMachine(store Store, hasher credential.Hasher, minter Minter, opts ...Option) (*Machine, error) {
	m := &Machine{
		store:           store,
		hasher:          hasher,
		minter:          minter,
		defaultUsername: DefaultUsername,
		defaultPassword: DefaultPassword,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	dummy, err := hasher.Hash("portcullis-unknown-principal")
	if err != nil {
		return nil, fmt.Errorf("computing placeholder digest: %w", err)
	}
	m.dummyDigest = dummy
	return m, nil
}

// DefaultUsername returns the canonical key of the bootstrap principal.
func (m *Machine) DefaultUsername() string {
	return m.defaultUsername
}

// Bootstrap creates the default principal with a forced rotation if it does
// not exist yet. Losing a creation race to a concurrent attempt is success.
func (m *Machine) Bootstrap(ctx context.Context) error {
	_, err := m.store.Get(ctx, m.defaultUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, credential.ErrNotFound) {
		return err
	}
	digest, err := m.hasher.Hash(m.defaultPassword)
	if err != nil {
		return fmt.Errorf("hashing default password: %w", err)
	}
	now := m.now().UTC()
	err = m.store.Create(ctx, &credential.Record{
		Username:           m.defaultUsername,
		PasswordHash:       digest,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if errors.Is(err, credential.ErrExists) {
		return nil
	}
	if err != nil {
		return err
	}
	m.logger.Info("bootstrapped default principal", "username", m.defaultUsername)
	return nil
}

// Attempt runs one login attempt. The returned error is non-nil only for
// infrastructure failures; rejections are reported in the Result.
func (m *Machine) Attempt(ctx context.Context, a Attempt) (Result, error) {
	if err := m.Bootstrap(ctx); err != nil {
		return Result{}, fmt.Errorf("bootstrap: %w", err)
	}

	key := credential.NormalizeKey(a.Username, m.defaultUsername)
	rec, err := m.lookup(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if rec == nil {
		// Unknown principals cost one digest, like known ones.
		m.hasher.Verify(a.Password, m.dummyDigest)
		return rejected(key, ErrUnknownPrincipal), nil
	}
	if !m.hasher.Verify(a.Password, rec.PasswordHash) {
		return rejected(rec.Username, ErrWrongPassword), nil
	}

	if a.NewPassword != "" {
		return m.rotate(ctx, key, rec, a)
	}
	if rec.MustChangePassword {
		return Result{
			Outcome:  RotationRequired,
			Username: rec.Username,
			Message:  "password change required",
			Reason:   ErrRotationRequired,
		}, nil
	}

	now := m.now().UTC()
	if _, err := m.store.Update(ctx, key, credential.Patch{LastLoginAt: &now}); err != nil {
		return Result{}, err
	}
	return m.issue(rec.Username)
}

func (m *Machine) lookup(ctx context.Context, key string) (*credential.Record, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := m.store.Get(ctx, key)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (m *Machine) rotate(ctx context.Context, key string, rec *credential.Record, a Attempt) (Result, error) {
	if utf8.RuneCountInString(a.NewPassword) < MinPasswordLength {
		return Result{
			Outcome:  RotationInvalid,
			Username: rec.Username,
			Message:  fmt.Sprintf("new password must be at least %d characters", MinPasswordLength),
			Reason:   ErrPasswordTooShort,
		}, nil
	}
	if a.NewPassword != a.ConfirmPassword {
		return Result{
			Outcome:  RotationInvalid,
			Username: rec.Username,
			Message:  "new passwords do not match",
			Reason:   ErrPasswordMismatch,
		}, nil
	}
	digest, err := m.hasher.Hash(a.NewPassword)
	if err != nil {
		return Result{}, fmt.Errorf("hashing new password: %w", err)
	}
	now := m.now().UTC()
	mustChange := false
	if _, err := m.store.Update(ctx, key, credential.Patch{
		PasswordHash:       &digest,
		MustChangePassword: &mustChange,
		UpdatedAt:          &now,
		LastLoginAt:        &now,
	}); err != nil {
		return Result{}, err
	}
	m.logger.Info("password rotated", "username", rec.Username)
	return m.issue(rec.Username)
}

func (m *Machine) issue(username string) (Result, error) {
	ticket, err := m.minter.Mint(username)
	if err != nil {
		return Result{}, fmt.Errorf("minting session: %w", err)
	}
	return Result{Outcome: SessionIssued, Username: username, Ticket: ticket}, nil
}

func rejected(username string, reason error) Result {
	return Result{Outcome: Rejected, Username: username, Message: GenericMessage, Reason: reason}
}
