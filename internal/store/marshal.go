package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rollcall/internal/ir"
)

// marshalEntities converts an entity list to canonical JSON TEXT.
func marshalEntities(ids []ir.EntityID) (string, error) {
	if ids == nil {
		ids = []ir.EntityID{}
	}
	data, err := ir.MarshalCanonical(ids)
	if err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}
	return string(data), nil
}

// unmarshalEntities parses JSON TEXT to an entity list. An empty list
// comes back nil so loaded settings compare equal to compiled ones.
func unmarshalEntities(data string) ([]ir.EntityID, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []ir.EntityID
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	return ids, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
