// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bureau-foundation/objex/lib/config"
)

func TestNewLogger_AutoFormat(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := newLogger(&buffer, config.LoggingConfig{Level: "info", Format: "auto"}, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("peer connected", "pid", 42)

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("piped auto output is not JSON: %v (%q)", err, buffer.String())
	}
	if record["msg"] != "peer connected" {
		t.Errorf("msg = %v", record["msg"])
	}

	buffer.Reset()
	logger, err = newLogger(&buffer, config.LoggingConfig{Format: "auto"}, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("peer connected")
	if !strings.Contains(buffer.String(), "msg=\"peer connected\"") {
		t.Errorf("terminal auto output is not text: %q", buffer.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := newLogger(&buffer, config.LoggingConfig{Level: "warn", Format: "text"}, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")

	output := buffer.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("info record written at warn level: %q", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("warn record missing: %q", output)
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	var buffer bytes.Buffer
	if _, err := newLogger(&buffer, config.LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(&buffer, config.LoggingConfig{Format: "xml"}, false); err == nil {
		t.Error("expected error for unknown format")
	}
}
