package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"golang.org/x/oauth2"
)

const unauthorizedMessage = "401: Unauthorized"

// validateResponse applies Discord's error conventions to a response body.
// It returns the raw JSON data when the body is a successful object or array.
func validateResponse(status int, body []byte) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		if status >= http.StatusBadRequest {
			return nil, apperrors.Upstream(status, http.StatusText(status), nil)
		}
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apperrors.Upstream(invalidResultCode(status), "Invalid HTTP Result", err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		message, _ := v["message"].(string)
		if message == unauthorizedMessage {
			return nil, apperrors.Upstream(http.StatusUnauthorized, message, nil)
		}
		errCode, hasErr := v["error"].(string)
		description, hasDesc := v["error_description"].(string)
		if hasErr && hasDesc {
			return nil, apperrors.Upstream(http.StatusUnauthorized, description, errors.New(errCode))
		}
		if status >= http.StatusBadRequest {
			if message == "" {
				message = http.StatusText(status)
			}
			return nil, apperrors.Upstream(status, message, nil)
		}
		return body, nil
	case []any:
		if status >= http.StatusBadRequest {
			return nil, apperrors.Upstream(status, http.StatusText(status), nil)
		}
		return body, nil
	default:
		return nil, apperrors.Upstream(invalidResultCode(status), "Invalid HTTP Result", nil)
	}
}

func invalidResultCode(status int) int {
	if status >= http.StatusBadRequest {
		return status
	}
	return http.StatusInternalServerError
}

// tokenError converts an oauth2 token endpoint failure into a FlowError.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" && re.ErrorDescription != "" {
			return apperrors.Upstream(http.StatusUnauthorized, re.ErrorDescription, err)
		}
		status := http.StatusInternalServerError
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if _, vErr := validateResponse(status, re.Body); vErr != nil {
			return vErr
		}
		return apperrors.Upstream(status, "token request failed", err)
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return apperrors.Upstream(http.StatusInternalServerError, "Invalid User Token Data", err)
	}
	return apperrors.Upstream(http.StatusBadGateway, "Discord API unreachable", err)
}
