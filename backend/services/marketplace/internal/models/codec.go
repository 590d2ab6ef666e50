package models

import (
	"fmt"

	"github.com/goccy/go-json"

	"plugin/backend/services/marketplace/internal/apperr"
)

func encodeDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("models: encode: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("models: encode: %w", err)
	}
	// The id lives on the document key, never in the body.
	delete(out, "id")
	return out, nil
}

func decodeDocument(kind, id string, data map[string]any, v any) error {
	if data == nil {
		return apperr.NotFound(kind, id)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return apperr.Wrap(apperr.ErrValidation, fmt.Sprintf("%s %q is not decodable", kind, id), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Wrap(apperr.ErrValidation, fmt.Sprintf("%s %q is not decodable", kind, id), err)
	}
	return nil
}

func missingField(kind, id, field string) error {
	return apperr.Validationf("%s %q is missing %s", kind, id, field)
}

func invalidField(kind, id, field string) error {
	return apperr.Validationf("%s %q has invalid %s", kind, id, field)
}
