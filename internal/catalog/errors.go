package catalog

import "errors"

var (
	ErrNetwork           = errors.New("catalog: network failure")
	ErrNotFound          = errors.New("catalog: not found")
	ErrEmptyCatalog      = errors.New("catalog: no playable audio")
	ErrInvalidIdentifier = errors.New("catalog: invalid identifier")

	errEmptyBody = errors.New("empty response")
)

func IsNetwork(err error) bool      { return errors.Is(err, ErrNetwork) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsEmptyCatalog(err error) bool { return errors.Is(err, ErrEmptyCatalog) }
