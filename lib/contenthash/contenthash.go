// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package contenthash derives stable identifiers for ingested files.
//
// A content reference is keyed by (source, uid). For files picked up
// from a remote drop the uid is a BLAKE3 keyed hash over the source
// code, the file name and the publication date, so the same file
// scanned twice maps to the same reference and the dedup check stops
// the second ingestion.
package contenthash

import (
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

type domainKey [32]byte

// Changing a key changes every identifier derived in its domain.
var (
	referenceKey = domainKey{
		'm', 'm', 'i', 'a', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', 'r', 'e', 'f', '.',
		'u', 'i', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	bodyKey = domainKey{
		'm', 'm', 'i', 'a', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'b', 'o', 'd',
		'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// ReferenceUID returns the uid for a file from source named name and
// published on the calendar day of publishedOn (in its location).
// Source codes are case-insensitive; file names are not.
func ReferenceUID(source, name string, publishedOn time.Time) string {
	hasher := newHasher(referenceKey)
	// NUL separators keep ("ab","c") and ("a","bc") distinct.
	hasher.Write([]byte(strings.ToUpper(source)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(name))
	hasher.Write([]byte{0})
	hasher.Write([]byte(publishedOn.Format("2006-01-02")))
	return hex.EncodeToString(hasher.Sum(nil)[:16])
}

// BodyDigest returns a digest of a content body, used to detect that a
// body changed between two reads.
func BodyDigest(body string) string {
	hasher := newHasher(bodyKey)
	io.WriteString(hasher, body)
	return hex.EncodeToString(hasher.Sum(nil))
}

func newHasher(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("contenthash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
