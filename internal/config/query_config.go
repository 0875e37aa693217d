package config

import "github.com/jrsteele09/go-discord-auth/oauthflow"

const (
	queryRedirectKeyVar = "QUERY_REDIRECT_KEY"
	queryCSRFKeyVar     = "QUERY_CSRF_KEY"
)

type Query struct {
	file *File
}

var _ QueryConfig = Query{}

// GetQueryKeys returns the request parameter names for the redirect target
// and the csrf token. Empty names fall back to the flow defaults.
func (q Query) GetQueryKeys() oauthflow.QueryKeys {
	return oauthflow.QueryKeys{
		Redirect:  GetEnv(queryRedirectKeyVar, fileValue(q.file, func(f *File) string { return f.Query.Redirect }, oauthflow.DefaultRedirectKey)),
		CSRFToken: GetEnv(queryCSRFKeyVar, fileValue(q.file, func(f *File) string { return f.Query.CSRFToken }, oauthflow.DefaultCSRFTokenKey)),
	}
}
