package adapter

import (
	"fmt"
	"regexp"
)

const maxIdentifierLength = 100

// Decision ids in the wild look like "dec-requestRouting", so hyphens and
// dots are allowed after the first character.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]*$`)

// validateIdentifier checks a decision id, column name or fact name.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s (start with letter or underscore, followed by letters, digits, underscores, dots or hyphens)", identifierPattern)
	}
	return nil
}
