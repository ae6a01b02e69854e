package consts

import "errors"

var (
	ErrNoHomeDirectory = errors.New("no home directory")
	ErrMissingDomain   = errors.New("no email domain configured")

	ErrUnmatchedBrace    = errors.New("unmatched brace")
	ErrInvalidRecipe     = errors.New("invalid recipe")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidAssignment = errors.New("invalid assignment")

	ErrShellCommand = errors.New("command not translatable")

	ErrUnsupportedExtension = errors.New("unsupported sieve extension")
	ErrValidationFailed     = errors.New("script validation failed")
)
