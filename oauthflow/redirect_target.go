package oauthflow

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SanitizeRedirect turns a caller supplied redirect into a path relative to
// the site root, without the leading slash. An absolute url pointing at origin
// is reduced to its path. Any other absolute or protocol relative target, or
// one carrying control characters, returns "".
func SanitizeRedirect(raw, origin string) string {
	target := strings.TrimSpace(raw)
	// browsers drop tab, CR and LF before resolving, so "/\t/host" is "//host"
	if strings.IndexFunc(target, isControl) >= 0 {
		return ""
	}
	if origin != "" {
		origin = strings.TrimSuffix(origin, "/")
		if target == origin {
			return ""
		}
		if strings.HasPrefix(target, origin+"/") {
			target = target[len(origin):]
		}
	}

	if strings.HasPrefix(target, "http") || strings.Contains(target, "://") {
		return ""
	}
	target = strings.TrimPrefix(target, "/")
	// "//host" and "/\host" are treated as absolute by browsers
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, `\`) {
		return ""
	}
	if u, err := url.Parse(target); err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return target
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// rootRelative returns the sanitized target as an absolute path.
func rootRelative(raw string) string {
	return "/" + SanitizeRedirect(raw, "")
}

// DomainURL returns scheme://host for the incoming request. With
// trustForwarded the host comes from X-Forwarded-Host when a proxy sets it,
// otherwise the header is ignored. localhost is always served over http. A
// port other than 80 and 443 is appended to a Host without one; a forwarded
// host is used as sent.
func DomainURL(r *http.Request, port int, trustForwarded bool) string {
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); trustForwarded && forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		port = 0
	}
	if host == "" {
		return ""
	}

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	} else if port != 0 && port != 80 && port != 443 {
		host = net.JoinHostPort(host, strconv.Itoa(port))
	}

	scheme := "https"
	if hostname == "localhost" {
		scheme = "http"
	}
	return scheme + "://" + host
}
