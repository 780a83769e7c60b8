// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mmia-foundation/mmia/lib/sealed"
)

func runKeygen(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	output := flags.String("output", "", "identity file to create (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("--output is required")
	}

	identity, err := sealed.GenerateIdentity()
	if err != nil {
		return err
	}
	contents := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient, identity.Secret)
	file, err := os.OpenFile(*output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := file.WriteString(contents); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	fmt.Fprintln(stdout, identity.Recipient)
	return nil
}

func runSeal(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
	var (
		recipients []string
		input      string
		output     string
	)
	flags.StringArrayVar(&recipients, "recipient", nil, "age recipient (age1...); repeat for several hosts")
	flags.StringVar(&input, "input", "", "plaintext YAML map of credential names to values (required)")
	flags.StringVar(&output, "output", "", "bundle to write; stdout when empty")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if input == "" {
		return errors.New("--input is required")
	}

	plaintext, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("parsing %s: %w", input, err)
	}
	if len(values) == 0 {
		return fmt.Errorf("%s has no credentials", input)
	}

	bundle, err := sealed.Seal(values, recipients)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = stdout.Write(bundle)
		return err
	}
	return os.WriteFile(output, bundle, 0o644)
}
