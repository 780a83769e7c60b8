// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Deterministic encoding: identical values produce identical
	// archive blobs.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Provider responses are decoded into any; keep them usable
		// with encoding/json by forcing string-keyed maps.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes CBOR data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// Encoder and Decoder are aliases so callers import only this package.
type (
	Encoder    = cbor.Encoder
	Decoder    = cbor.Decoder
	RawMessage = cbor.RawMessage
)

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder { return decMode.NewDecoder(r) }
