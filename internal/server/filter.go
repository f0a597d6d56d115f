package server

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// List methods filter through a small query DSL in the `fq` param:
// "key:value" clauses joined by " AND ". A repeated key accumulates its
// values into a set. The clause map is decoded into a per-entity filter
// struct; keys the struct does not declare fail the decode, which the RPC
// layer reports as invalid params.

type identityFilter struct {
	AccountID string `mapstructure:"account_id"`
}

type namespaceFilter struct {
	AccountID string `mapstructure:"account_id"`
}

type policyFilter struct {
	NamespaceIDs []string `mapstructure:"namespace_id"`
}

// parseFQ splits the DSL into a clause map. Single values stay strings;
// repeated keys promote to string slices.
func parseFQ(fq string) (map[string]any, error) {
	values := make(map[string]any)
	for _, clause := range strings.Split(fq, " AND ") {
		key, value, ok := strings.Cut(clause, ":")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("malformed clause %q", clause)
		}
		switch existing := values[key].(type) {
		case nil:
			values[key] = value
		case string:
			values[key] = []string{existing, value}
		case []string:
			values[key] = append(existing, value)
		}
	}
	return values, nil
}

// decodeFilter parses fq and decodes the clauses into dst. WeaklyTypedInput
// lifts a single value into a slice field; a repeated key aimed at a scalar
// field fails instead of silently dropping values.
func decodeFilter(fq string, dst any) error {
	values, err := parseFQ(fq)
	if err != nil {
		return err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("build filter decoder: %w", err)
	}
	if err := decoder.Decode(values); err != nil {
		return err
	}
	return nil
}
