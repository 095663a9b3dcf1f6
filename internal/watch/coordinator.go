// Package watch implements spec.md §4.6: the continuous-watch coordinator
// that schedules ingestion across many sources, tolerating rotated/missing
// files and periodically rediscovering new ones.
package watch

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

const (
	stableWriteDebounce = 100 * time.Millisecond
	splitFilePollPeriod = 5 * time.Second
	rediscoveryPeriod   = 30 * time.Second
)

// Store is the subset of *store.Store the coordinator needs to register
// newly discovered sources and dispatch ingestion ticks.
type Store interface {
	ListSources(ctx context.Context, status types.SourceStatus) ([]types.Source, error)
	UpsertSource(ctx context.Context, src types.Source) error
}

// Orchestrator is the subset of *ingest.Orchestrator the coordinator drives.
type Orchestrator interface {
	IngestSource(ctx context.Context, src types.Source) (ingest.Report, error)
}

// Coordinator runs fsnotify watchers for tailable sources, a polling loop
// for split-file sources, a single logs/HEAD watch per git source, and
// periodic rediscovery, per spec.md §4.6.
type Coordinator struct {
	store    Store
	orch     Orchestrator
	adapters map[types.SourceKind]ingest.Adapter
	deviceID string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Coordinator. adapters maps each source_kind to the adapter
// responsible for discovering and ingesting it.
func New(st Store, orch Orchestrator, adapters map[types.SourceKind]ingest.Adapter, deviceID string) *Coordinator {
	return &Coordinator{store: st, orch: orch, adapters: adapters, deviceID: deviceID}
}

// Start is idempotent: calling it while already running is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.run(runCtx)
}

// Stop tears down all watchers and polling timers and blocks until the run
// loop has exited.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

// RunUntilSignal acquires pidFile, starts the coordinator, blocks until
// SIGINT/SIGTERM, then performs a graceful stop and releases pidFile
// (spec.md §6 daemon lifecycle).
func (c *Coordinator) RunUntilSignal(ctx context.Context, pidFile *PIDFile) error {
	if err := pidFile.Acquire(); err != nil {
		return err
	}
	defer pidFile.Release()

	c.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)

	c.Stop()
	return nil
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("watch: fsnotify init failed, falling back to polling only: %v", err)
	} else {
		defer watcher.Close()
	}

	c.rediscover(ctx)
	c.addWatches(ctx, watcher)

	rediscoverTimer := time.NewTicker(rediscoveryPeriod)
	defer rediscoverTimer.Stop()
	splitPollTimer := time.NewTicker(splitFilePollPeriod)
	defer splitPollTimer.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pendingPaths := map[string]bool{}

	var eventsCh chan fsnotify.Event
	var errorsCh chan fsnotify.Error
	if watcher != nil {
		eventsCh = watcher.Events
		errorsCh = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			pendingPaths[ev.Name] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(stableWriteDebounce)
			debounceCh = debounceTimer.C

		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			log.Printf("watch: fsnotify error: %v", err)

		case <-debounceCh:
			debounceCh = nil
			paths := pendingPaths
			pendingPaths = map[string]bool{}
			c.ingestPaths(ctx, paths)

		case <-splitPollTimer.C:
			c.ingestByKind(ctx, types.SourceKindSplitTranscript)

		case <-rediscoverTimer.C:
			c.rediscover(ctx)
			c.addWatches(ctx, watcher)
		}
	}
}

// addWatches subscribes to every tailable (jsonl/plaintext) source's file
// and every git source's logs/HEAD file.
func (c *Coordinator) addWatches(ctx context.Context, watcher *fsnotify.Watcher) {
	if watcher == nil {
		return
	}
	sources, err := c.store.ListSources(ctx, types.SourceActive)
	if err != nil {
		log.Printf("watch: list sources: %v", err)
		return
	}
	for _, src := range sources {
		switch src.Kind {
		case types.SourceKindJSONLTranscript, types.SourceKindPlainTranscript:
			if err := watcher.Add(src.Locator); err != nil {
				log.Printf("watch: add %s: %v", src.Locator, err)
			}
		case types.SourceKindGit:
			headLog := filepath.Join(src.Locator, ".git", "logs", "HEAD")
			if err := watcher.Add(headLog); err != nil {
				log.Printf("watch: add %s: %v", headLog, err)
			}
		}
	}
}

// ingestPaths re-ingests every active source whose locator matches one of
// the changed paths (or whose git logs/HEAD file changed).
func (c *Coordinator) ingestPaths(ctx context.Context, paths map[string]bool) {
	sources, err := c.store.ListSources(ctx, types.SourceActive)
	if err != nil {
		log.Printf("watch: list sources: %v", err)
		return
	}
	for _, src := range sources {
		locator := src.Locator
		if src.Kind == types.SourceKindGit {
			locator = filepath.Join(src.Locator, ".git", "logs", "HEAD")
		}
		if !paths[locator] {
			continue
		}
		c.ingestOne(ctx, src)
	}
}

func (c *Coordinator) ingestByKind(ctx context.Context, kind types.SourceKind) {
	sources, err := c.store.ListSources(ctx, types.SourceActive)
	if err != nil {
		log.Printf("watch: list sources: %v", err)
		return
	}
	for _, src := range sources {
		if src.Kind == kind {
			c.ingestOne(ctx, src)
		}
	}
}

// ingestOne drives one ingest tick, logging (not propagating) any error so
// a single bad source never stalls the coordinator (spec.md §4.6
// "Resilience").
func (c *Coordinator) ingestOne(ctx context.Context, src types.Source) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("watch: recovered from panic ingesting %s: %v", src.SourceID, r)
		}
	}()
	if _, err := c.orch.IngestSource(ctx, src); err != nil {
		log.Printf("watch: ingest %s: %v", src.SourceID, err)
	}
}

// rediscover re-runs each registered adapter's Discover to pick up new
// sessions and newly initialized repositories, auto-registering anything
// new (spec.md §4.6 "Periodic rediscovery").
func (c *Coordinator) rediscover(ctx context.Context) {
	for kind, adapter := range c.adapters {
		candidates, err := adapter.Discover(ctx)
		if err != nil {
			log.Printf("watch: discover %s: %v", kind, err)
			continue
		}
		for _, cand := range candidates {
			src := types.Source{
				SourceID:      sourceID(c.deviceID, cand.Locator),
				Kind:          cand.Kind,
				Locator:       cand.Locator,
				DeviceID:      c.deviceID,
				Status:        types.SourceActive,
				RedactSecrets: true,
				CreatedAt:     time.Now().UTC(),
				LastSeenAt:    time.Now().UTC(),
			}
			if err := c.store.UpsertSource(ctx, src); err != nil {
				log.Printf("watch: register source %s: %v", cand.Locator, err)
			}
		}
	}
}

func sourceID(deviceID, locator string) string {
	return deviceID + ":" + locator
}
