package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"

	"lightkeeper/internal/logging"
)

// LighthouseCLI drives a Lighthouse-compatible audit CLI against an already
// running browser host. The engine is opaque to the rest of the tool: one
// invocation in, one fixed-shape report out.
type LighthouseCLI struct {
	binary string
	logger logging.Logger
}

// NewLighthouseCLI creates the default audit engine adapter.
// The binary must be on PATH (npm i -g lighthouse).
func NewLighthouseCLI(logger logging.Logger) *LighthouseCLI {
	return &LighthouseCLI{binary: "lighthouse", logger: logger}
}

// lighthouseReport is the slice of the Lighthouse JSON output we consume.
type lighthouseReport struct {
	Categories struct {
		Performance struct {
			Score *float64 `json:"score"`
		} `json:"performance"`
	} `json:"categories"`
	Audits map[string]struct {
		NumericValue *float64 `json:"numericValue"`
	} `json:"audits"`
}

// Audit runs one performance audit of url through the host's debugging port.
func (e *LighthouseCLI) Audit(ctx context.Context, url string, host Host) (*AuditReport, error) {
	_, port, err := net.SplitHostPort(host.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("invalid host endpoint %q: %w", host.Endpoint(), err)
	}

	cmd := exec.CommandContext(ctx, e.binary, url,
		"--port="+port,
		"--output=json",
		"--only-categories=performance",
		"--quiet",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("audit of %s failed: %w", url, err)
	}

	return parseLighthouseReport(out)
}

// parseLighthouseReport extracts the score and the numeric audit values.
func parseLighthouseReport(data []byte) (*AuditReport, error) {
	var raw lighthouseReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse audit report: %w", err)
	}

	report := &AuditReport{Audits: make(map[string]float64, len(raw.Audits))}
	if raw.Categories.Performance.Score != nil {
		report.Score = *raw.Categories.Performance.Score
	}
	for key, audit := range raw.Audits {
		if audit.NumericValue != nil {
			report.Audits[key] = *audit.NumericValue
		}
	}
	return report, nil
}
