package sieve

import (
	"fmt"
	"strings"

	gosieve "github.com/migadu/go-sieve"

	"github.com/migadu/procsieve/consts"
)

// ValidateScript loads rendered script text with the go-sieve interpreter to
// confirm it parses under the given extension set. A nil extension list
// allows everything go-sieve implements.
func ValidateScript(text string, enabledExtensions []string) error {
	scriptReader := strings.NewReader(text)
	options := gosieve.DefaultOptions()
	options.EnabledExtensions = enabledExtensions
	if _, err := gosieve.Load(scriptReader, options); err != nil {
		return fmt.Errorf("%w: %v", consts.ErrValidationFailed, err)
	}
	return nil
}

// CheckScript validates script text whose capability requirements are
// already known. Requirements outside go-sieve's reach make the script
// unverifiable rather than invalid; those come back in unvalidatable and the
// load is skipped.
func CheckScript(text string, required []string) (unvalidatable []string, err error) {
	if missing := UnvalidatableExtensions(required); len(missing) > 0 {
		return missing, nil
	}
	return nil, ValidateScript(text, GoSieveSupportedExtensions)
}
