// Package instance locates a Lodge workspace and connects to the Redis
// namespace its lodge.yml names.
package instance

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength keeps the lodge:{instance}: prefix short on every key.
const MaxNameLength = 48

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateName reports whether name can namespace Redis keys. Names start
// with a letter or digit and continue with lowercase letters, digits, '-' or
// '_'. Key separators are rejected with their own message.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("instance name is required")
	case len(name) > MaxNameLength:
		return fmt.Errorf("instance name %q is too long (%d > %d)", name, len(name), MaxNameLength)
	case strings.ContainsAny(name, ":{}"):
		return fmt.Errorf("instance name %q contains a Redis key separator", name)
	case !namePattern.MatchString(name):
		return fmt.Errorf("instance name %q must start with a lowercase letter or digit and use only a-z, 0-9, '-' and '_'", name)
	}
	return nil
}
