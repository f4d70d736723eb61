// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the platform's standard CBOR encoding.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// logical message always produces identical bytes — a requirement for
// computing checksums over wire traffic. Decoding accepts standard CBOR
// and ignores unknown fields for forward compatibility. Consumers
// import only this package, never fxamacker/cbor directly.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Wire messages only ever use string map keys. Decoding into an
		// any-typed target must therefore produce map[string]any, not
		// the CBOR default map[any]any, so decoded payloads interoperate
		// with ordinary Go code.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, for delaying decode or
// embedding pre-encoded output.
type RawMessage = cbor.RawMessage
