package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}

// NormalizeViewType trims and lower-cases a view type tag.
// Allowed characters: a-z, 0-9, '-', '_'.
func NormalizeViewType(value string) (ViewType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", ErrUnknownView
	}
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return "", ErrUnknownView
	}
	return ViewType(trimmed), nil
}

// CanonicalContext serializes a context with sorted keys. Nil and empty contexts
// both serialize to "{}". Contexts JSON cannot encode (NaN, channels) fall back
// to a "!"-prefixed fmt rendering.
func CanonicalContext(ctx ViewContext) string {
	if len(ctx) == 0 {
		return "{}"
	}
	data, err := json.Marshal(map[string]any(ctx))
	if err != nil {
		return "!" + fmt.Sprint(map[string]any(ctx))
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return string(data)
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return string(data)
	}
	return string(normalized)
}

// ContextEqual reports whether two contexts are structurally equal.
func ContextEqual(a, b ViewContext) bool {
	return CanonicalContext(a) == CanonicalContext(b)
}

// CloneContext returns a deep copy of ctx (JSON round trip), or nil when empty.
func CloneContext(ctx ViewContext) ViewContext {
	if len(ctx) == 0 {
		return nil
	}
	data, err := json.Marshal(map[string]any(ctx))
	if err != nil {
		out := make(ViewContext, len(ctx))
		for k, v := range ctx {
			out[k] = v
		}
		return out
	}
	var out ViewContext
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ParseContextPairs builds a context from key=value tokens.
func ParseContextPairs(pairs []string) (ViewContext, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(ViewContext, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, ErrInvalidRequest
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
