// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The envelope signer depends
// on this — the same logical payload must always produce identical
// bytes, or signature verification would fail on re-encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility
// between bot and relay versions.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Bus payloads never use non-string map keys. When the
		// decoder's target is any (e.g. room metadata maps), pick
		// map[string]any instead of the CBOR default
		// map[interface{}]interface{}, which nothing downstream
		// can consume.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. It delays decoding of a
// nested value (the envelope payload) until the consumer knows its
// concrete type. Type alias so consumers import only lib/codec, not
// fxamacker/cbor directly.
type RawMessage = cbor.RawMessage
