package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Launcher spawns a service's start command. The manager only needs a pid
// back; stdout and stderr are inherited by the controlling terminal.
type Launcher interface {
	Spawn(ctx context.Context, command, dir string, detached bool) (pid int, err error)
}

// execLauncher launches commands via os/exec. When detached, the child is
// placed in its own session so the tool's exit does not take it down.
type execLauncher struct{}

// NewLauncher returns the default process launcher.
func NewLauncher() Launcher {
	return execLauncher{}
}

// Spawn starts the command in dir and returns the observed pid.
func (execLauncher) Spawn(_ context.Context, command, dir string, detached bool) (int, error) {
	args, err := parseCommand(command)
	if err != nil {
		return 0, err
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("empty command")
	}

	// Not CommandContext: the child must outlive this invocation
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	configureSysProcAttr(cmd, detached)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %q: %w", command, err)
	}

	pid := cmd.Process.Pid

	// Reap the child if it ever exits while we are still alive, without
	// holding up anything else
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// parseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++ // skip the backslash
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
