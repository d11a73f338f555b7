package safety

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	truncationMarker = "... [truncated]"
	maskChar         = "*"
)

// Sanitize sanitizes a value with the default policy
func Sanitize(v interface{}) interface{} {
	return defaultValidator.Sanitize(v)
}

// SanitizeString sanitizes a string with the default policy
func SanitizeString(s string) string {
	return defaultValidator.SanitizeString(s)
}

// Sanitize masks secrets and truncates long strings, walking maps and
// slices recursively. The input is never mutated.
func (v *Validator) Sanitize(value interface{}) interface{} {
	switch val := value.(type) {
	case string:
		return v.SanitizeString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = v.Sanitize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = v.SanitizeString(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = v.Sanitize(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = v.SanitizeString(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i], _ = v.Sanitize(item).(map[string]interface{})
		}
		return out
	default:
		return value
	}
}

// SanitizeString masks secret-shaped substrings, then truncates
func (v *Validator) SanitizeString(s string) string {
	if !v.policy.EnableContentFiltering {
		return truncate(s, v.policy.MaxOutputLength)
	}
	s = maskSecrets(s)
	truncated := truncate(s, v.policy.MaxOutputLength)
	if truncated == s {
		return s
	}
	// The marker can complete a key=value secret at the cut point.
	return maskSecrets(truncated)
}

// maskSecrets replaces every secret match with an equal-length mask until
// no pattern matches.
func maskSecrets(s string) string {
	for {
		changed := false
		for _, re := range secretPatterns {
			if !re.MatchString(s) {
				continue
			}
			s = re.ReplaceAllStringFunc(s, func(m string) string {
				return strings.Repeat(maskChar, utf8.RuneCountInString(m))
			})
			changed = true
			log.Debug().Str("pattern", re.String()).Msg("Masked sensitive content")
		}
		if !changed {
			return s
		}
	}
}

// truncate keeps the result, marker included, within max runes
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	log.Debug().Int("original", len(runes)).Int("max", max).Msg("Output truncated")
	return string(runes[:keep]) + truncationMarker
}
