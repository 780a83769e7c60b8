// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// mmia is the operator CLI. It controls running services through their
// control sockets and manages sealed credential bundles.
//
//	mmia status --service mmia-image-service
//	mmia resume --socket /run/mmia/mmia-image-service.sock --reset
//	mmia keygen --output /etc/mmia/identity
//	mmia seal --recipient age1... --input values.yaml --output credentials.age
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mmia-foundation/mmia/lib/process"
	"github.com/mmia-foundation/mmia/lib/version"
)

const usage = `Usage: mmia <command> [flags]

Service control:
  status    show a service's run state
  pause     stop consuming until resumed
  sleep     stop consuming until resumed, as after repeated failures
  resume    start consuming again (--reset clears the failure count)
  stop      stop the service

Credentials:
  keygen    generate an age identity for a service host
  seal      encrypt a credential bundle

Run "mmia <command> --help" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}
	command, args := args[0], args[1:]
	switch command {
	case "status", "pause", "sleep", "resume", "stop":
		return runControl(command, args, stdout)
	case "keygen":
		return runKeygen(args, stdout)
	case "seal":
		return runSeal(args, stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "mmia %s\n", version.Info())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q (run \"mmia help\")", command)
}
