package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeMeta decodes a transaction's metadata into a tagged struct, using
// "mapstructure" field tags. Useful when embedders attach structured
// payloads (e.g. origin, author, sync info) to transactions.
func DecodeMeta(t *Transaction, target any) error {
	if err := mapstructure.Decode(t.Meta, target); err != nil {
		return fmt.Errorf("decode meta of transaction %s: %w", t.ID, err)
	}
	return nil
}
