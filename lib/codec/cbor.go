// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// modes are built once; a bad option set is a programming error.
var modes = func() struct {
	encode cbor.EncMode
	decode cbor.DecMode
} {
	encodeOptions := cbor.CoreDetEncOptions()
	encodeOptions.Time = cbor.TimeRFC3339Nano
	// uuid.UUID, checksum.Sum and compress.Tag are stored in their
	// text forms, keeping state files readable with any CBOR tool.
	encodeOptions.TextMarshaler = cbor.TextMarshalerTextString
	encode, err := encodeOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encode options: " + err.Error())
	}

	decode, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		IntDec:          cbor.IntDecConvertSigned,
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decode options: " + err.Error())
	}
	return struct {
		encode cbor.EncMode
		decode cbor.DecMode
	}{encode, decode}
}()

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return modes.encode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Duplicate map keys are an
// error.
func Unmarshal(data []byte, v any) error {
	return modes.decode.Unmarshal(data, v)
}
