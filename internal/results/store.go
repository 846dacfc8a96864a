// Package results persists measurement sessions and batch reports.
// Canonical storage is a per-session directory holding one immutable JSON
// summary; every summary additionally fans out, as one JSON line, to a
// global log and to per-tag and per-scenario logs. All log writes are
// appends; a previously written line is never truncated or rewritten.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lightkeeper/internal/batch"
	"lightkeeper/internal/logging"
	"lightkeeper/internal/measure"
)

const (
	summaryFileName  = "summary.json"
	measurementsLog  = "measurements.jsonl"
	batchesLog       = "batches.jsonl"
	tagsDirName      = "tags"
	scenariosDirName = "scenarios"

	// Filesystem-safe and sorts lexicographically in chronological order.
	timestampLayout = "2006-01-02T15-04-05"
)

// ErrNoSessions is returned when retrieval finds no recorded sessions.
var ErrNoSessions = errors.New("no measurement sessions recorded")

// Store reads and writes the results root directory.
type Store struct {
	root   string
	logger logging.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger logging.Logger) *Store {
	return &Store{root: dir, logger: logger}
}

// Root returns the results root directory.
func (s *Store) Root() string {
	return s.root
}

// SaveSummary persists one measurement session and fans it out to the
// global, per-tag, and per-scenario logs. Returns the session directory.
func (s *Store) SaveSummary(summary *measure.Summary, tags []string, scenarioID string) (string, error) {
	name := s.sessionName(summary.Timestamp, tags, scenarioID)
	dir := filepath.Join(s.root, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, summaryFileName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	line, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary line: %w", err)
	}

	if err := s.appendLine(filepath.Join(s.root, measurementsLog), line); err != nil {
		return "", err
	}
	for _, tag := range tags {
		path := filepath.Join(s.root, tagsDirName, sanitizeLabel(tag)+".jsonl")
		if err := s.appendLine(path, line); err != nil {
			return "", err
		}
	}
	if scenarioID != "" {
		path := filepath.Join(s.root, scenariosDirName, sanitizeLabel(scenarioID)+".jsonl")
		if err := s.appendLine(path, line); err != nil {
			return "", err
		}
	}

	s.logger.Info("Session saved", "session", name, "tags", strings.Join(tags, ","))
	return dir, nil
}

// batchRecord tags a batch result with a type discriminator so batch logs
// stay distinguishable from measurement lines.
type batchRecord struct {
	Type string `json:"type"`
	*batch.Result
}

// SaveBatch appends the batch report to the batch-only global log and to
// the per-tag batch logs for each tag of the batch's filter.
func (s *Store) SaveBatch(result *batch.Result) error {
	line, err := json.Marshal(batchRecord{Type: "batch", Result: result})
	if err != nil {
		return fmt.Errorf("failed to marshal batch record: %w", err)
	}

	if err := s.appendLine(filepath.Join(s.root, batchesLog), line); err != nil {
		return err
	}
	for _, tag := range result.TagFilter {
		path := filepath.Join(s.root, tagsDirName, sanitizeLabel(tag)+".batch.jsonl")
		if err := s.appendLine(path, line); err != nil {
			return err
		}
	}

	s.logger.Info("Batch saved", "batch_id", result.BatchID)
	return nil
}

// Session is one stored measurement session.
type Session struct {
	Name string
	Path string
}

// List enumerates session directories newest-first by the timestamp
// ordering of their names.
func (s *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read results root: %w", err)
	}

	var sessions []Session
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == tagsDirName || entry.Name() == scenariosDirName {
			continue
		}
		sessions = append(sessions, Session{
			Name: entry.Name(),
			Path: filepath.Join(s.root, entry.Name()),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessionTimestamp(sessions[i].Name) > sessionTimestamp(sessions[j].Name)
	})
	return sessions, nil
}

// Latest returns the most recent session.
func (s *Store) Latest() (Session, error) {
	sessions, err := s.List()
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrNoSessions
	}
	return sessions[0], nil
}

// Load resolves an identifier, either a bare session directory name or an
// explicit path, to its summary document.
func (s *Store) Load(identifier string) (*measure.Summary, error) {
	dir := identifier
	if !strings.ContainsRune(identifier, os.PathSeparator) {
		dir = filepath.Join(s.root, identifier)
	}

	data, err := os.ReadFile(filepath.Join(dir, summaryFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load result %q: %w", identifier, err)
	}

	var summary measure.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse result %q: %w", identifier, err)
	}
	return &summary, nil
}

// sessionName builds the session directory name: a sanitized scenario or
// tag label prefix, then the timestamp. A second session in the same
// second gets a numeric suffix instead of overwriting.
func (s *Store) sessionName(ts time.Time, tags []string, scenarioID string) string {
	label := scenarioID
	if label == "" && len(tags) > 0 {
		label = tags[0]
	}

	name := ts.Format(timestampLayout)
	if label != "" {
		name = sanitizeLabel(label) + "-" + name
	}

	candidate := name
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(s.root, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
}

// sessionTimestamp extracts the sortable timestamp portion of a session
// name; label prefixes and collision suffixes must not affect
// chronological ordering.
func sessionTimestamp(name string) string {
	for candidate := name; len(candidate) >= len(timestampLayout); {
		tail := candidate[len(candidate)-len(timestampLayout):]
		if _, err := time.Parse(timestampLayout, tail); err == nil {
			return tail
		}
		// Drop a collision suffix such as "-2" and retry.
		i := strings.LastIndexByte(candidate, '-')
		if i <= 0 {
			break
		}
		candidate = candidate[:i]
	}
	return name
}

// appendLine appends one JSON line, creating parent directories as needed.
func (s *Store) appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to log %s: %w", filepath.Base(path), err)
	}
	return nil
}
