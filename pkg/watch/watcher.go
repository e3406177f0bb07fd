// Package watch deploys process artifacts dropped into a directory.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/telemetry"
)

// DefaultDebounce is how long a file must stay quiet before it is deployed.
const DefaultDebounce = 500 * time.Millisecond

// Deployer uploads one artifact.
type Deployer interface {
	Deploy(ctx context.Context, name string, content []byte) (*engine.DeploymentResult, error)
}

// DeployFunc is called after every deployment attempt.
type DeployFunc func(path string, res *engine.DeploymentResult, err error)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is deployed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger.NewComponentLogger("deploy-watcher")
		}
	}
}

// WithInitialSync deploys the artifacts already present when watching starts.
func WithInitialSync(enabled bool) Option {
	return func(w *Watcher) {
		w.initialSync = enabled
	}
}

// OnDeploy registers a callback invoked after every deployment attempt.
func OnDeploy(fn DeployFunc) Option {
	return func(w *Watcher) {
		w.onDeploy = fn
	}
}

// Watcher watches a directory and deploys changed process artifacts.
type Watcher struct {
	dir         string
	deployer    Deployer
	debounce    time.Duration
	initialSync bool
	onDeploy    DeployFunc
	logger      *telemetry.Logger

	mu       sync.Mutex
	started  bool
	timers   map[string]*time.Timer
	deployed map[string][32]byte

	deployMu sync.Mutex
	pending  sync.WaitGroup
	done     chan struct{}
	fsw      *fsnotify.Watcher
}

// New creates a Watcher for dir.
func New(dir string, deployer Deployer, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		deployer: deployer,
		debounce: DefaultDebounce,
		logger:   telemetry.NewNopLogger(),
		timers:   make(map[string]*time.Timer),
		deployed: make(map[string][32]byte),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsArtifact reports whether name looks like a deployable process artifact.
func IsArtifact(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(lower, ".") {
		return false
	}
	return strings.HasSuffix(lower, ".bpmn") || strings.HasSuffix(lower, ".bpmn20.xml")
}

// Watch starts watching. Events are processed in the background until ctx
// is done; Wait blocks until then. A Watcher can be started once.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher for %s already started", w.dir)
	}
	w.started = true
	w.mu.Unlock()

	if err := w.start(ctx); err != nil {
		close(w.done)
		return err
	}
	return nil
}

func (w *Watcher) start(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %s is not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	if w.initialSync {
		if err := w.syncExisting(ctx); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	go w.processEvents(ctx)

	w.logger.WithFields(map[string]interface{}{
		"dir":      w.dir,
		"debounce": w.debounce.String(),
	}).Info("Started watching deployment directory")
	return nil
}

// Wait blocks until the event loop has stopped and every in-flight
// deployment has finished. It returns at once when Watch was never called
// or failed to start.
func (w *Watcher) Wait() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	w.pending.Wait()
}

func (w *Watcher) syncExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", w.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsArtifact(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w.pending.Add(1)
		w.deploy(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsArtifact(event.Name) {
				continue
			}
			w.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("Artifact changed")
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

// schedule (re)starts the debounce timer of path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.deploy(ctx, path)
	})
	w.timers[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
}

// deploy uploads path unless its content is unchanged since the last
// successful deployment. The caller has added to pending.
func (w *Watcher) deploy(ctx context.Context, path string) {
	defer w.pending.Done()
	w.deployMu.Lock()
	defer w.deployMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.WithField("file", path).WithError(err).Warn("Failed to read artifact")
		return
	}
	if len(content) == 0 {
		return
	}

	sum := sha256.Sum256(content)
	w.mu.Lock()
	prev, seen := w.deployed[path]
	w.mu.Unlock()
	if seen && prev == sum {
		w.logger.WithField("file", path).Debug("Artifact unchanged, skipping")
		return
	}

	name := filepath.Base(path)
	logger := w.logger.WithField("file", path)
	res, err := w.deployer.Deploy(ctx, name, content)
	switch {
	case err != nil:
		logger.WithError(err).Error("Deployment failed")
	case !res.Success:
		logger.WithField("errors", res.Errors).Warn("Deployment rejected")
	default:
		w.mu.Lock()
		w.deployed[path] = sum
		w.mu.Unlock()
		logger.WithResourceID(res.ID).Info("Artifact deployed")
	}

	if w.onDeploy != nil {
		w.onDeploy(path, res, err)
	}
}
