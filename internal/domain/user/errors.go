package user

import "errors"

var (
	ErrUnknownRole             = errors.New("unknown role")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInvalidToken            = errors.New("invalid token")
	ErrNoCompany               = errors.New("user has no company")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)
