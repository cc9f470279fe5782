// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
)

// Encode renders the compiled schema as canonical JSON. Map keys are
// emitted sorted and attribute order is fixed at compile time, so the
// same inputs always encode to the same bytes.
func (c *Compiled) Encode() ([]byte, error) {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding compiled schema")
	}
	return append(buf, '\n'), nil
}

// Digest returns the xxhash of the canonical encoding as a hex
// string. Operators diff digests across dictionary or rule changes.
func (c *Compiled) Digest() (string, error) {
	buf, err := c.Encode()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf)), nil
}

// Decode parses a canonical encoding back into a Compiled.
func Decode(buf []byte) (*Compiled, error) {
	var c Compiled
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, errors.Wrap(err, "decoding compiled schema")
	}
	return &c, nil
}
