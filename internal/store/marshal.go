package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/modhost/internal/value"
)

// marshalValue converts a settled value to canonical JSON TEXT. A nil
// value (failed run) is stored as NULL.
func marshalValue(v value.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal value: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalValue parses stored canonical JSON. Integers are preserved
// exactly; floats are rejected.
func unmarshalValue(data sql.NullString) (value.Value, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := value.Unmarshal([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
