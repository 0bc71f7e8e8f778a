package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The job status service speaks snake_case (and the odd kebab-case key);
// everything inside this client is camelCase.

// DecodeJob parses a single wire job.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := DecodeWire(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" {
		return Job{}, fmt.Errorf("decode job: missing job id")
	}
	return job, nil
}

// DecodeJobs parses a wire job list. Both a bare array and an object with a
// "jobs" array are accepted.
func DecodeJobs(data []byte) ([]Job, error) {
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	normalized = NormalizeKeys(normalized)
	if obj, ok := normalized.(map[string]any); ok {
		normalized = obj["jobs"]
	}
	list, ok := normalized.([]any)
	if !ok {
		if normalized == nil {
			return []Job{}, nil
		}
		return nil, fmt.Errorf("decode jobs: expected a list, got %T", normalized)
	}

	buf, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	ret := make([]Job, 0, len(list))
	if err := json.Unmarshal(buf, &ret); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return ret, nil
}

// EncodeWire marshals v and rewrites every object key to snake_case.
func EncodeWire(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(mapKeys(generic, toSnake))
}

// DecodeWire unmarshals a wire payload into out after normalizing its keys.
func DecodeWire(data []byte, out any) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	buf, err := json.Marshal(NormalizeKeys(generic))
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

// NormalizeKeys rewrites object keys, at any depth, from snake/kebab case to
// camelCase. Values are left alone.
func NormalizeKeys(v any) any {
	return mapKeys(v, toCamel)
}

func mapKeys(v any, rename func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[rename(k)] = mapKeys(val, rename)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = mapKeys(val, rename)
		}
		return out
	default:
		return v
	}
}

func toCamel(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) <= 1 {
		return key
	}
	// Caser carries state, one per call
	title := cases.Title(language.Und)
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		b.WriteString(title.String(part))
	}
	return b.String()
}

func toSnake(key string) string {
	var b strings.Builder
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
