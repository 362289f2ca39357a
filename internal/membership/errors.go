package membership

import "errors"

var (
	// ErrNotFound indicates no membership row for the user/clinic pair.
	ErrNotFound = errors.New("membership: not found")
	// ErrNotActive indicates the membership exists but has_relationship is off.
	ErrNotActive = errors.New("membership: relationship not active")
	// ErrAlreadyMember indicates a grant collided with an existing membership.
	ErrAlreadyMember = errors.New("membership: already a member")
	// ErrInvalidRole indicates a role outside the clinic role set.
	ErrInvalidRole = errors.New("membership: invalid role")
)
