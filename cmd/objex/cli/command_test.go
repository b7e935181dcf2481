// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "objex",
		Subcommands: []*Command{
			{
				Name: "send",
				Run: func(args []string) error {
					called = "send"
					return nil
				},
			},
			{
				Name: "serve",
				Run: func(args []string) error {
					called = "serve"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"serve"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "serve" {
		t.Errorf("dispatched to %q, want %q", called, "serve")
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socket string
	var receivedArgs []string

	command := &Command{
		Name: "send",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.StringVar(&socket, "socket", "echo", "service name")
			return flagSet
		},
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"--socket", "/tmp/a.sock", "text=hello", "count=3"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socket != "/tmp/a.sock" {
		t.Errorf("socket = %q, want /tmp/a.sock", socket)
	}
	if strings.Join(receivedArgs, " ") != "text=hello count=3" {
		t.Errorf("args = %v", receivedArgs)
	}
}

func TestCommand_Execute_RootRunWithFlags(t *testing.T) {
	var showVersion, ran bool

	root := &Command{
		Name: "objex",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("objex", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version")
			return flagSet
		},
		Subcommands: []*Command{{Name: "dump", Run: func([]string) error { return nil }}},
		Run: func(args []string) error {
			ran = true
			return nil
		},
	}

	if err := root.Execute([]string{"--version"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !ran || !showVersion {
		t.Errorf("ran=%v showVersion=%v, want both true", ran, showVersion)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "objex",
		Subcommands: []*Command{
			{Name: "serve", Run: func([]string) error { return nil }},
			{Name: "dump", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"serv"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "serve"`) {
		t.Errorf("error = %q, want a suggestion for serve", err)
	}

	err = root.Execute([]string{"completely-different"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "pack",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flagSet.String("message", "", "message document")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--mesage", "x.json"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --message?") {
		t.Errorf("error = %q, want a suggestion for --message", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:        "objex",
		Output:      &help,
		Subcommands: []*Command{{Name: "dump", Summary: "Describe a packed message"}},
	}

	err := root.Execute(nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %v, want subcommand required", err)
	}
	if !strings.Contains(help.String(), "Describe a packed message") {
		t.Errorf("help output missing subcommand summary:\n%s", help.String())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "dump",
		Description: "Unpack a packed message and describe it.",
		Usage:       "objex dump FILE [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.String("format", "text", "output format")
			return flagSet
		},
		Examples: []Example{
			{Description: "Describe a message", Command: "objex dump message.bin"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Unpack a packed message and describe it.",
		"Usage:\n  objex dump FILE [flags]",
		"--format",
		"# Describe a message",
		"objex dump message.bin",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestCommand_HelpFlagPrintsHelp(t *testing.T) {
	var help bytes.Buffer
	ran := false
	command := &Command{
		Name:    "serve",
		Summary: "Run an echo service",
		Output:  &help,
		Run: func([]string) error {
			ran = true
			return nil
		},
	}

	if err := command.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ran {
		t.Error("Run called for --help")
	}
	if !strings.Contains(help.String(), "Run an echo service") {
		t.Errorf("help output = %q", help.String())
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"serve", "serve", 0},
		{"serv", "serve", 1},
		{"sned", "send", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
