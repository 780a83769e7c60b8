// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed reads and writes age-encrypted credential bundles.
//
// A bundle is a flat YAML map of credential names to values, encrypted
// to one or more age X25519 recipients and stored ASCII-armored:
//
//	api_token: ...
//	ches_client_secret: ...
//	image_password_PROVINCE: ...
//
// Services open the bundle at startup with the host's identity file and
// copy the values into their configuration (config.ApplyCredentials).
// Operators create bundles with `mmia seal`.
package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"gopkg.in/yaml.v3"
)

// Identity is a generated keypair in age's text encodings.
type Identity struct {
	// Secret is the AGE-SECRET-KEY-1... string. Never log it.
	Secret string
	// Recipient is the age1... public key.
	Recipient string
}

// GenerateIdentity creates a new X25519 keypair.
func GenerateIdentity() (Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Identity{}, fmt.Errorf("generating age identity: %w", err)
	}
	return Identity{Secret: identity.String(), Recipient: identity.Recipient().String()}, nil
}

// Seal encrypts values to every recipient and returns the armored
// bundle.
func Seal(values map[string]string, recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	parsed := make([]age.Recipient, 0, len(recipients))
	for _, key := range recipients {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		parsed = append(parsed, recipient)
	}

	plaintext, err := yaml.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, parsed...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting bundle: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Open decrypts an armored bundle with any of the identities in
// identityText (the contents of an age identity file; comments and
// blank lines are allowed).
func Open(bundle []byte, identityText string) (map[string]string, error) {
	identities, err := age.ParseIdentities(strings.NewReader(identityText))
	if err != nil {
		return nil, fmt.Errorf("parsing identities: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(bundle)), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting bundle: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted bundle: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	return values, nil
}

// OpenFile reads the bundle and identity from disk and calls Open.
func OpenFile(bundlePath, identityPath string) (map[string]string, error) {
	bundle, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, err
	}
	identity, err := os.ReadFile(identityPath)
	if err != nil {
		return nil, err
	}
	return Open(bundle, string(identity))
}
