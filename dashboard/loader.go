// Package dashboard is the data contract of the interactive dashboard: a
// fingerprint-keyed cache of the prepared dataset and trained model, and
// per-sample explanations of model predictions.
package dashboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/YuminosukeSato/robotdetect/core/model"
	"github.com/YuminosukeSato/robotdetect/dataset"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/preprocessing"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
)

// LoaderOptions locates the dashboard inputs.
type LoaderOptions struct {
	DataPath  string
	ModelPath string
	Target    string
	Delimiter rune
	Prepare   preprocessing.PrepareOptions
	// SnapshotPath, when set, stores the prepared split as a gob file so a
	// restarted dashboard skips preparation for an unchanged input.
	SnapshotPath string
}

// snapshot is the gob payload written to SnapshotPath. It is reused only
// for the same data file prepared with the same options.
type snapshot struct {
	DataFingerprint string
	OptionsKey      string
	Split           *preprocessing.Split
}

// optionsKey identifies the preparation settings a snapshot was built with.
func (l *Loader) optionsKey() string {
	return fmt.Sprintf("target=%s delimiter=%q prepare=%+v", l.opts.Target, l.opts.Delimiter, l.opts.Prepare)
}

// Loader caches the prepared split and model. The cache key is the SHA-256
// fingerprint of both files; a changed fingerprint or a watched file event
// invalidates it. Loads are serialised by a single mutex.
type Loader struct {
	opts LoaderOptions

	mu    sync.Mutex
	key   string
	split *preprocessing.Split
	model *gbdt.Model
	loads int

	logger log.Logger
}

// NewLoader creates an empty loader.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Target == "" {
		opts.Target = "ROBOT"
	}
	if opts.Prepare.TestFraction == 0 {
		opts.Prepare = preprocessing.DefaultPrepareOptions()
	}
	return &Loader{
		opts:   opts,
		logger: log.GetLoggerWithName("dashboard.loader"),
	}
}

// Fingerprint returns the hex SHA-256 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", scigoErrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", scigoErrors.Wrapf(err, "hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load returns the prepared split and model, reusing the cached pair while
// both fingerprints are unchanged.
func (l *Loader) Load(ctx context.Context) (*preprocessing.Split, *gbdt.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	dataKey, err := Fingerprint(l.opts.DataPath)
	if err != nil {
		return nil, nil, err
	}
	modelKey, err := Fingerprint(l.opts.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	key := dataKey + ":" + modelKey

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.split != nil && l.key == key {
		return l.split, l.model, nil
	}

	start := time.Now()
	split, err := l.prepare(dataKey)
	if err != nil {
		return nil, nil, err
	}
	m, err := gbdt.LoadModel(l.opts.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	if m.NumFeatures != len(split.FeatureNames) {
		return nil, nil, scigoErrors.NewDimensionError("Loader.Load", len(split.FeatureNames), m.NumFeatures, 1)
	}

	l.key, l.split, l.model = key, split, m
	l.loads++
	l.logger.Info("Dashboard cache refreshed",
		log.OperationKey, log.PhaseDashboard,
		log.CacheKeyKey, key,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return split, m, nil
}

func (l *Loader) prepare(dataKey string) (*preprocessing.Split, error) {
	if l.opts.SnapshotPath != "" {
		var snap snapshot
		err := model.LoadGob(&snap, l.opts.SnapshotPath)
		if err == nil && snap.DataFingerprint == dataKey && snap.OptionsKey == l.optionsKey() && snap.Split != nil {
			l.logger.Debug("Prepared split restored from snapshot", log.PathKey, l.opts.SnapshotPath)
			return snap.Split, nil
		}
	}

	frame, err := dataset.ReadCSVFile(l.opts.DataPath, dataset.ReadOptions{Delimiter: l.opts.Delimiter})
	if err != nil {
		return nil, err
	}
	split, err := preprocessing.Prepare(frame, l.opts.Target, l.opts.Prepare)
	if err != nil {
		return nil, err
	}
	if l.opts.SnapshotPath != "" {
		if err := model.SaveGob(snapshot{DataFingerprint: dataKey, OptionsKey: l.optionsKey(), Split: split}, l.opts.SnapshotPath); err != nil {
			l.logger.Warn("Failed to write split snapshot", err, log.PathKey, l.opts.SnapshotPath)
		}
	}
	return split, nil
}

// Invalidate drops the cached pair.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.key, l.split, l.model = "", nil, nil
}

// Cached reports whether a loaded pair is held.
func (l *Loader) Cached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.split != nil
}

// Loads returns how many times the inputs were read from disk.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Watch invalidates the cache whenever the data or model file is written,
// created, renamed or removed. The directories holding the files are
// watched so atomic replacements are seen. Each invalidation sends the
// changed path on the returned channel when a receiver is ready; the
// channel closes when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, scigoErrors.Wrap(err, "failed to create file watcher")
	}

	targets := make(map[string]bool, 2)
	dirs := make(map[string]bool, 2)
	for _, p := range []string{l.opts.DataPath, l.opts.ModelPath} {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, scigoErrors.Wrapf(err, "resolve %s", p)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, scigoErrors.Wrapf(err, "watch %s", dir)
		}
	}

	events := make(chan string, 1)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil || !targets[abs] {
					continue
				}
				l.Invalidate()
				l.logger.Debug("Dashboard cache invalidated", log.PathKey, abs, "event", event.Op.String())
				select {
				case events <- abs:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("File watcher error", err)
			}
		}
	}()
	return events, nil
}
