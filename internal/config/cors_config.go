package config

import (
	"slices"
	"strings"
)

const allowedOriginsVar = "ALLOWED_ORIGINS"

type Cors struct {
	file *File
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	slices.Sort(origins)
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins reads the comma separated ALLOWED_ORIGINS. Without it the
// file list is used, and without that only BASE_URL is allowed.
func (c Cors) GetAllowedOrigins() AllowedOrigins {
	var fromFile []string
	if c.file != nil {
		fromFile = c.file.AllowedOrigins
	}
	origins := GetEnvList(allowedOriginsVar, ",", fromFile)
	if len(origins) == 0 {
		origins = []string{EnvVars{file: c.file}.GetBaseURL()}
	}

	allowed := AllowedOrigins{}
	for _, o := range origins {
		allowed[strings.TrimSuffix(o, "/")] = nullValue{}
	}
	return allowed
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, X-CSRF-Token"
}
