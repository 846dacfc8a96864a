// Package engine defines the boundary to the external performance-audit
// collaborators: the audit engine itself and the browser host it drives.
// The core never depends on a concrete engine; it sees these interfaces.
package engine

import "context"

// AuditReport is the fixed-shape result of one audit-engine invocation:
// an overall score in 0.0 to 1.0 plus named numeric audit values.
type AuditReport struct {
	Score  float64
	Audits map[string]float64
}

// Engine runs one audit of a URL against a live browser host.
type Engine interface {
	Audit(ctx context.Context, url string, host Host) (*AuditReport, error)
}

// Page is a live page handle inside a host, used by caller-supplied
// override steps before audits run.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string) error
	Close() error
}

// Host is one live browser instance. Each host is privately owned by
// exactly one measurement session and never shared across scenarios.
type Host interface {
	// Endpoint returns the address the audit engine should attach to.
	Endpoint() string
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher acquires a fresh host instance.
type Launcher interface {
	Launch(ctx context.Context) (Host, error)
}
