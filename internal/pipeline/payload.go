package pipeline

import "fmt"

// payloadString/payloadBool/payloadStringSlice read a typed field out of
// a job's Payload map, returning the zero value when the field is missing
// or has another type. payloadStringSlice accepts both []string and the
// []any that JSON round-tripping through Redis produces.
func payloadString(p map[string]any, key string) string {
	v, _ := p[key].(string)
	return v
}

func payloadBool(p map[string]any, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func payloadStringSlice(p map[string]any, key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		if ss, ok := p[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func requireString(p map[string]any, key string) (string, error) {
	v := payloadString(p, key)
	if v == "" {
		return "", fmt.Errorf("pipeline: job payload missing required field %q", key)
	}
	return v, nil
}
