package config

import "time"

const sessionMaxAgeVar = "SESSION_MAX_AGE"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
}

type Security struct {
	file *File
}

var _ SecurityConfig = Security{}

// GetMaxSessionAge parses SESSION_MAX_AGE as a duration (e.g. "168h").
func (s Security) GetMaxSessionAge() time.Duration {
	raw := GetEnv(sessionMaxAgeVar, fileValue(s.file, func(f *File) string { return f.SessionMaxAge }, ""))
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour // matches Discord's access token lifetime
}
