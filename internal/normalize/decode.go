package normalize

import (
	"encoding/json"
	"errors"
)

// Decode unmarshals a marketplace payload into v. Fields whose JSON type
// does not match the target are left zero instead of failing the whole
// payload; syntax errors are still returned.
func Decode(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}
