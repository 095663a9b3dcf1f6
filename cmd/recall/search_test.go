package main

import (
	"testing"
)

func resetFilterFlags() {
	filterSince = ""
	filterUntil = ""
	filterProject = ""
	filterSession = ""
	filterTypes = nil
	filterTools = nil
	filterRole = ""
	filterLimit = 0
	filterOffset = 0
}

func TestBuildFilter_PassesThroughPlainFields(t *testing.T) {
	resetFilterFlags()
	t.Cleanup(resetFilterFlags)

	filterProject = "recall"
	filterSession = "sess-1"
	filterRole = "user"
	filterLimit = 10

	f, err := buildFilter()
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	if f.ProjectID != "recall" || f.SessionID != "sess-1" || f.Role != "user" || f.Limit != 10 {
		t.Errorf("unexpected filter: %+v", f)
	}
}

func TestBuildFilter_ResolvesRelativeSince(t *testing.T) {
	resetFilterFlags()
	t.Cleanup(resetFilterFlags)

	filterSince = "1h"
	f, err := buildFilter()
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	if f.Since == "" {
		t.Error("expected --since to resolve to a formatted timestamp")
	}
}

func TestBuildFilter_RejectsUnparseableSince(t *testing.T) {
	resetFilterFlags()
	t.Cleanup(resetFilterFlags)

	filterSince = "not a time"
	if _, err := buildFilter(); err == nil {
		t.Error("expected an error for an unparseable --since value")
	}
}
