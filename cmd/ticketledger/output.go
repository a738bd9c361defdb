package main

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(v), "encoding JSON")
}
