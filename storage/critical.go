package storage

import "regexp"

// DefaultCriticalPattern matches keys and database names that hold
// authentication material: tokens, sessions, credentials, and the auth
// client's own namespaces. It is a case-insensitive substring match, so
// camelCase names such as "accessToken" and "supabaseAuth" are covered.
const DefaultCriticalPattern = `(?i)(auth|token|session|credential|sb-)`

// CriticalMatcher decides which storage entries are authentication-critical.
type CriticalMatcher struct {
	re *regexp.Regexp
}

// NewCriticalMatcher compiles pattern. An empty pattern uses
// DefaultCriticalPattern.
func NewCriticalMatcher(pattern string) (*CriticalMatcher, error) {
	if pattern == "" {
		pattern = DefaultCriticalPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &CriticalMatcher{re: re}, nil
}

// DefaultCriticalMatcher returns a matcher for DefaultCriticalPattern.
func DefaultCriticalMatcher() *CriticalMatcher {
	return &CriticalMatcher{re: regexp.MustCompile(DefaultCriticalPattern)}
}

// IsCritical reports whether name must survive non-terminal sweeps.
func (m *CriticalMatcher) IsCritical(name string) bool {
	return m.re.MatchString(name)
}
