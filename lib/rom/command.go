// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPatcher runs an external patch tool. Argv is a command
// template; the placeholders {base}, {patch}, {format} and {out} are
// replaced in each argument. For example:
//
//	["flips", "--apply", "{patch}", "{base}", "{out}"]
type CommandPatcher struct {
	Argv []string
}

// Apply runs the command. A non-zero exit fails with the tool's
// combined output in the error.
func (c CommandPatcher) Apply(ctx context.Context, base, patch, format, out string) error {
	if len(c.Argv) == 0 {
		return errors.New("rom: empty patch command")
	}
	replacer := strings.NewReplacer("{base}", base, "{patch}", patch, "{format}", format, "{out}", out)
	argv := make([]string, len(c.Argv))
	for i, argument := range c.Argv {
		argv[i] = replacer.Replace(argument)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(output.String()))
	}
	return nil
}
