// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/service"
)

func runControl(action string, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet(action, pflag.ContinueOnError)
	var (
		socketPath  string
		serviceName string
		reset       bool
		timeout     time.Duration
	)
	flags.StringVar(&socketPath, "socket", "", "control socket path")
	flags.StringVar(&serviceName, "service", "", "service name; the socket is /run/mmia/<name>.sock")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the service")
	if action == "resume" {
		flags.BoolVar(&reset, "reset", false, "clear the failure count")
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	if socketPath == "" {
		if serviceName == "" {
			return fmt.Errorf("--socket or --service is required")
		}
		socketPath = "/run/mmia/" + serviceName + ".sock"
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var fields map[string]any
	if reset {
		fields = map[string]any{"reset": true}
	}
	var report consumer.StatusReport
	if err := service.NewClient(socketPath).Call(ctx, action, fields, &report); err != nil {
		return err
	}
	styled := false
	if file, ok := stdout.(*os.File); ok {
		styled = term.IsTerminal(int(file.Fd()))
	}
	fmt.Fprint(stdout, formatReport(report, styled, time.Now()))
	return nil
}

var (
	labelStyle   = lipgloss.NewStyle().Faint(true)
	healthyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	waitingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	stoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

// formatReport renders report as aligned label/value lines.
func formatReport(report consumer.StatusReport, styled bool, now time.Time) string {
	render := func(style lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return style.Render(text)
	}

	statusStyle := waitingStyle
	switch report.Status {
	case consumer.Running.String():
		statusStyle = healthyStyle
	case consumer.Stopped.String():
		statusStyle = stoppedStyle
	}

	task := "idle"
	if report.TaskActive {
		task = fmt.Sprintf("consuming (generation %d)", report.Generation)
	}

	lines := [][2]string{
		{"service", report.Service},
		{"status", render(statusStyle, report.Status)},
		{"task", task},
		{"failures", fmt.Sprint(report.FailureCount)},
	}
	if report.LastFailureAt != nil {
		ago := now.Sub(*report.LastFailureAt).Truncate(time.Second)
		lines = append(lines, [2]string{"last failure", fmt.Sprintf("%s (%s ago)", report.LastFailureAt.Format(time.RFC3339), ago)})
	}
	if report.LastError != "" {
		lines = append(lines, [2]string{"last error", report.LastError})
	}

	var builder strings.Builder
	for _, line := range lines {
		label := fmt.Sprintf("%-13s", line[0]+":")
		builder.WriteString(render(labelStyle, label))
		builder.WriteString(line[1])
		builder.WriteByte('\n')
	}
	return builder.String()
}
