package github

import (
	"errors"
	"fmt"
)

// AuthorizationError indicates the credential lacks required scope.
// It is the only fatal error class: the run aborts before any mutation.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: %v", e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr)
}

// NotFoundError indicates a specifically requested repository does not
// resolve. Recorded per name, never fatal to the run.
type NotFoundError struct {
	Owner string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("repository %s/%s not found", e.Owner, e.Name)
}

// EncryptionError indicates public-key fetch or sealing failed for a single
// (repository, secret) pair.
type EncryptionError struct {
	Repo   string
	Secret string
	Err    error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed for %s secret %s: %v", e.Repo, e.Secret, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// DeployError indicates a create-or-update call failed for a single
// (repository, secret) pair. Throttled distinguishes transient rate-limit
// pressure, which the batch runner backs off and retries, from permanent
// rejection, which is recorded immediately.
type DeployError struct {
	Repo      string
	Secret    string
	Throttled bool
	Err       error
}

func (e *DeployError) Error() string {
	if e.Throttled {
		return fmt.Sprintf("deploy throttled for %s secret %s: %v", e.Repo, e.Secret, e.Err)
	}
	return fmt.Sprintf("deploy failed for %s secret %s: %v", e.Repo, e.Secret, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }

// IsThrottled reports whether err carries rate-limit pressure from the API.
func IsThrottled(err error) bool {
	var deployErr *DeployError
	return errors.As(err, &deployErr) && deployErr.Throttled
}
