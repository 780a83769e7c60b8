// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob wraps payloads in a small self-describing envelope with
// optional lz4 or zstd compression. The local store uses it for
// archived delivery responses and transcripts.
//
// Envelope layout: one tag byte, the uncompressed length as a uvarint,
// then the (possibly compressed) payload. Encode falls back to
// CompressionNone when compression does not shrink the input, so the
// tag in the envelope is the one to trust, not the requested one.
package blob

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression applied to an envelope payload.
// Values are stored on disk.
type Tag uint8

const (
	None Tag = 0
	LZ4  Tag = 1
	Zstd Tag = 2
)

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseTag parses the configuration spelling of a tag.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}

// maxPayload bounds the declared uncompressed length accepted by Decode.
const maxPayload = 256 << 20

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blob: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		panic("blob: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode returns data in an envelope compressed with tag.
func Encode(data []byte, tag Tag) ([]byte, error) {
	payload, used, err := compress(data, tag)
	if err != nil {
		return nil, err
	}
	envelope := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	envelope[0] = byte(used)
	envelope = binary.AppendUvarint(envelope, uint64(len(data)))
	return append(envelope, payload...), nil
}

// Decode reverses Encode.
func Decode(envelope []byte) ([]byte, error) {
	if len(envelope) < 2 {
		return nil, errors.New("blob: envelope too short")
	}
	tag := Tag(envelope[0])
	size, n := binary.Uvarint(envelope[1:])
	if n <= 0 {
		return nil, errors.New("blob: malformed length")
	}
	if size > maxPayload {
		return nil, fmt.Errorf("blob: declared length %d exceeds limit", size)
	}
	payload := envelope[1+n:]

	switch tag {
	case None:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("blob: payload is %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case LZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("blob: lz4: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("blob: lz4 produced %d bytes, header says %d", read, size)
		}
		return out, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("blob: zstd: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("blob: zstd produced %d bytes, header says %d", len(out), size)
		}
		return out, nil
	}
	return nil, fmt.Errorf("blob: unsupported tag %s", tag)
}

func compress(data []byte, tag Tag) ([]byte, Tag, error) {
	var (
		out []byte
		err error
	)
	switch tag {
	case None:
		return data, None, nil
	case LZ4:
		out, err = compressLZ4(data)
	case Zstd:
		out = zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			err = errIncompressible
		}
	default:
		return nil, 0, fmt.Errorf("blob: unsupported tag %s", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, tag, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: lz4: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
