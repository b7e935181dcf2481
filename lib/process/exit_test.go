// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	cause := fmt.Errorf("calling echo: %w", errors.New("connection invalid"))

	var buffer bytes.Buffer
	report(&buffer, "objex", cause)
	if got, want := buffer.String(), "objex: error: calling echo: connection invalid\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}

	buffer.Reset()
	report(&buffer, "", cause)
	if got, want := buffer.String(), "error: calling echo: connection invalid\n"; got != want {
		t.Errorf("report without program = %q, want %q", got, want)
	}
}
