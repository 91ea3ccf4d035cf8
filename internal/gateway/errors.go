package gateway

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// messageExprs is the priority order of body fields holding the
// human-readable error message.
var messageExprs = []string{"detail", "message", "error.message", "error.detail"}

// classify builds the APIError for a non-2xx response.
func classify(status int, statusText string, body []byte) *types.APIError {
	msg := extractMessage(body)
	kind := types.KindOther
	switch status {
	case 401:
		kind = types.KindAuth
	case 403:
		if isPermissionMessage(msg) {
			kind = types.KindPermission
		} else {
			kind = types.KindForbidden
		}
	}
	return &types.APIError{
		Status:     status,
		StatusText: statusText,
		Message:    msg,
		Kind:       kind,
	}
}

// extractMessage walks the JMESPath priority chain over the decoded
// body, falling back to the raw text when nothing matches.
func extractMessage(body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return raw
	}
	for _, expr := range messageExprs {
		v, err := jmespath.Search(expr, payload)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return raw
}

// isPermissionMessage matches the backend's missing-permission shape
// ("Permission <name> required"). Those 403s belong to the caller, not
// the forbidden signal.
func isPermissionMessage(msg string) bool {
	return strings.Contains(msg, "Permission") && strings.Contains(msg, "required")
}
