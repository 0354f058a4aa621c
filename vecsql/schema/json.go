package schema

import (
	"encoding/json"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
)

// ToJSON serializes the schema.
func (s Schema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON deserializes and validates a schema.
func FromJSON(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, vqerrors.Wrap(vqerrors.KindSchema, "invalid schema JSON", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
