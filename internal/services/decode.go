package services

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/synccore-backend/internal/domain"
)

// decodeCrystals turns one uploaded JSON document into candidate
// crystals. Accepted shapes: a top-level array of crystal objects, an
// object wrapping them under "crystals", or a single crystal object.
//
// A document-level failure is returned as err. Per-candidate failures
// are isolated: valid siblings still come back, with one error string
// per rejected candidate.
func decodeCrystals(name string, data []byte) (candidates []domain.Crystal, itemErrs []string, err error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw []any
	switch v := doc.(type) {
	case []any:
		raw = v
	case map[string]any:
		if inner, ok := v["crystals"].([]any); ok {
			raw = inner
		} else {
			raw = []any{v}
		}
	default:
		return nil, nil, fmt.Errorf("expected object or array, got %T", doc)
	}

	for i, item := range raw {
		c, cerr := crystalFromValue(item)
		if cerr != nil {
			itemErrs = append(itemErrs, fmt.Sprintf("%s[%d]: %v", name, i, cerr))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, itemErrs, nil
}

// crystalFromValue builds one crystal from a decoded JSON value. The
// payload is the object itself, or its "payload" member when present;
// the top-level moment fields are mirrored from the payload, absent
// components defaulting to 0.
func crystalFromValue(v any) (domain.Crystal, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return domain.Crystal{}, fmt.Errorf("crystal is not an object")
	}

	payload := obj
	if inner, ok := obj["payload"].(map[string]any); ok {
		payload = inner
	}
	if len(payload) == 0 {
		return domain.Crystal{}, fmt.Errorf("crystal has empty payload")
	}

	url, _ := payload["url"].(string)
	if url == "" {
		url, _ = obj["url"].(string)
	}

	return domain.Crystal{
		URL:       url,
		Pulse:     intField(payload, "pulse"),
		Beat:      intField(payload, "beat"),
		StepIndex: intField(payload, "stepIndex"),
		Payload:   payload,
	}, nil
}

func intField(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case int:
		return v
	}
	return 0
}
