package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lightkeeper/internal/logging"
)

// Module levels set only in the config file, with no dedicated flag, must
// reach the logging setup through the root command.
func TestRootCommandAppliesConfigFileModuleLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "[logging]\nportprobe = \"debug\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", path, "version"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	logger := logging.GetLogger("portprobe")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("portprobe level from the config file was not applied")
	}
}
