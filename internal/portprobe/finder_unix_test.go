//go:build !windows

package portprobe

import "testing"

func TestParseLsofOutput(t *testing.T) {
	out := "p1234\ncnode\np5678\ncruby\n"
	owners := parseLsofOutput(out)
	if len(owners) != 2 {
		t.Fatalf("expected 2 owners, got %d", len(owners))
	}
	if owners[0].PID != 1234 || owners[0].Name != "node" {
		t.Errorf("unexpected first owner %+v", owners[0])
	}
	if owners[1].PID != 5678 || owners[1].Name != "ruby" {
		t.Errorf("unexpected second owner %+v", owners[1])
	}
}

func TestParseLsofOutputEmpty(t *testing.T) {
	if owners := parseLsofOutput(""); len(owners) != 0 {
		t.Errorf("expected no owners, got %+v", owners)
	}
}

func TestParseLsofOutputSkipsMalformedPid(t *testing.T) {
	owners := parseLsofOutput("pabc\ncnode\np99\ncsh\n")
	if len(owners) != 1 || owners[0].PID != 99 {
		t.Errorf("expected only the valid entry, got %+v", owners)
	}
}
