// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package contenthash

import (
	"testing"
	"time"
)

func TestReferenceUIDStable(t *testing.T) {
	day := time.Date(2026, 4, 2, 6, 30, 0, 0, time.UTC)
	first := ReferenceUID("PROVINCE", "A01.jpg", day)
	second := ReferenceUID("province", "A01.jpg", day.Add(10*time.Hour))
	if first != second {
		t.Fatalf("same file on same day produced different uids: %s != %s", first, second)
	}
	if len(first) != 32 {
		t.Fatalf("uid length = %d, want 32 hex chars", len(first))
	}
}

func TestReferenceUIDDistinguishesInputs(t *testing.T) {
	day := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	base := ReferenceUID("SUN", "A01.jpg", day)
	for name, other := range map[string]string{
		"source":   ReferenceUID("TC", "A01.jpg", day),
		"file":     ReferenceUID("SUN", "A02.jpg", day),
		"date":     ReferenceUID("SUN", "A01.jpg", day.AddDate(0, 0, 1)),
		"boundary": ReferenceUID("SU", "NA01.jpg", day),
	} {
		if other == base {
			t.Errorf("changing %s did not change the uid", name)
		}
	}
}

func TestBodyDigest(t *testing.T) {
	if BodyDigest("transcript") == BodyDigest("transcript.") {
		t.Fatal("different bodies share a digest")
	}
	if BodyDigest("same") != BodyDigest("same") {
		t.Fatal("digest is not deterministic")
	}
}
