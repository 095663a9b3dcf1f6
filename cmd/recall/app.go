package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boshu2/recall/internal/config"
	"github.com/boshu2/recall/internal/identity"
	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/ingest/gitlog"
	"github.com/boshu2/recall/internal/ingest/jsonl"
	"github.com/boshu2/recall/internal/ingest/plaintext"
	"github.com/boshu2/recall/internal/ingest/splitfile"
	"github.com/boshu2/recall/internal/store"
	"github.com/boshu2/recall/internal/types"
	"github.com/boshu2/recall/internal/watch"
)

// app bundles the handles every subcommand needs, built once in
// PersistentPreRunE and torn down in PersistentPostRunE.
type app struct {
	cfg      *config.Config
	store    *store.Store
	device   types.Device
	project  types.Project
	orch     *ingest.Orchestrator
	adapters map[types.SourceKind]ingest.Adapter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	dbPath := filepath.Join(cfg.BaseDir, "recall.db")
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	deviceConfigPath := filepath.Join(cfg.BaseDir, "device.json")
	device, err := identity.GetOrCreateDevice(deviceConfigPath, cfg.Device.Nickname)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("get or create device: %w", err)
	}
	if err := st.UpsertDevice(ctx, device); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register device: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("getwd: %w", err)
	}
	project, err := identity.DetectProject(cwd)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("detect project: %w", err)
	}
	if err := st.UpsertProject(ctx, project); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register project: %w", err)
	}

	adapters := map[types.SourceKind]ingest.Adapter{
		types.SourceKindJSONLTranscript: jsonl.New(cwd),
		types.SourceKindSplitTranscript: splitfile.New(cwd),
		types.SourceKindPlainTranscript: plaintext.New(cwd),
		types.SourceKindGit:             gitlog.New(cwd, gitlog.AuthorScope(cfg.Git.AuthorScope), nil),
	}

	orch := ingest.New(st, adapters, 0)

	return &app{
		cfg:      cfg,
		store:    st,
		device:   device,
		project:  project,
		orch:     orch,
		adapters: adapters,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newCoordinator builds the watch coordinator over this app's orchestrator
// and adapters.
func (a *app) newCoordinator() *watch.Coordinator {
	return watch.New(a.store, a.orch, a.adapters, a.device.DeviceID)
}

// printJSON writes v to stdout as indented JSON, the CLI's only output
// format (interactive table/yaml rendering is an explicit Non-goal).
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
