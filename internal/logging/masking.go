package logging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveFields are JSON keys whose values never reach the log.
var sensitiveFields = map[string]bool{
	"password":   true,
	"token":      true,
	"token_hash": true,
}

// MaskToken keeps only the last four characters of a credential.
func MaskToken(value string) string {
	if len(value) < 8 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskHeader redacts sensitive header values based on header name.
//
// Password, secret and cookie headers are fully redacted. Authorization is
// reduced to its last four characters. Other headers pass through unchanged.
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		lowerName == "cookie" ||
		lowerName == "set-cookie" {
		return redacted
	}

	if lowerName == "authorization" || lowerName == "x-api-key" {
		return MaskToken(value)
	}

	return value
}

// MaskQuery masks the token query parameter in a raw query string.
func MaskQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries may still carry a credential.
		if strings.Contains(strings.ToLower(rawQuery), "token=") {
			return redacted
		}
		return rawQuery
	}
	if _, ok := values["token"]; !ok {
		return rawQuery
	}
	for i, v := range values["token"] {
		values["token"][i] = MaskToken(v)
	}
	return values.Encode()
}

// MaskJSONBody redacts credential fields at any depth of a JSON body.
// Bodies that are not valid JSON are returned unchanged.
func MaskJSONBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	result, err := json.Marshal(maskJSONValue(data))
	if err != nil {
		return body
	}
	return result
}

func maskJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if sensitiveFields[strings.ToLower(key)] {
				if s, ok := val.(string); ok && strings.EqualFold(key, "token") {
					out[key] = MaskToken(s)
				} else {
					out[key] = redacted
				}
				continue
			}
			out[key] = maskJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskJSONValue(item)
		}
		return out
	default:
		return value
	}
}

// FormatBinaryData describes a non-text body by size.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
