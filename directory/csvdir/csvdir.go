// Package csvdir bulk-loads registered users into a directory from CSV and
// optionally keeps a directory in sync with a CSV file on disk. The expected
// format is a header row of name,phone,location (any column order) followed
// by one user per row. Rows that are malformed or duplicate existing records
// are counted and skipped; they never abort the load or mutate existing
// records.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/kasalabs/ussd-server-go/directory"
)

// Summary reports the outcome of one load.
type Summary struct {
	Imported   int
	Duplicates int
	Malformed  int
}

// ErrMissingHeader indicates the CSV lacks the required column headers.
var ErrMissingHeader = errors.New("csvdir: header must contain name, phone and location columns")

// Load reads CSV rows from r and registers each user into dst.
func Load(ctx context.Context, r io.Reader, dst directory.Directory) (Summary, error) {
	var sum Summary

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return sum, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameIdx, okName := cols["name"]
	phoneIdx, okPhone := cols["phone"]
	locIdx, okLoc := cols["location"]
	if !okName || !okPhone || !okLoc {
		return sum, ErrMissingHeader
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			sum.Malformed++
			continue
		}
		if max(nameIdx, phoneIdx, locIdx) >= len(row) {
			sum.Malformed++
			continue
		}
		name := strings.TrimSpace(row[nameIdx])
		phone := strings.TrimSpace(row[phoneIdx])
		loc := strings.TrimSpace(row[locIdx])
		if name == "" || loc == "" || !strings.HasPrefix(phone, "+") {
			sum.Malformed++
			continue
		}

		_, err = dst.Register(ctx, phone, name, loc)
		switch {
		case errors.Is(err, directory.ErrDuplicateUser):
			sum.Duplicates++
		case err != nil:
			return sum, fmt.Errorf("register %s: %w", phone, err)
		default:
			sum.Imported++
		}
	}
}

// LoadFile is Load against a file on disk.
func LoadFile(ctx context.Context, path string, dst directory.Directory) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Load(ctx, f, dst)
}

// Watcher reloads a CSV file into a directory whenever it changes on disk.
type Watcher struct {
	path string
	dst  directory.Directory
	log  *slog.Logger
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch performs an initial load of path into dst and then re-loads on every
// write to the file. New rows register as usual; rows already present are
// skipped as duplicates, so a reload never rewrites history.
func Watch(ctx context.Context, path string, dst directory.Directory, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := LoadFile(ctx, path, dst); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w := &Watcher{path: path, dst: dst, log: log, fw: fw, done: make(chan struct{})}
	go w.run(ctx)
	return w, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error { return w.fw.Close() }

// Done is closed once the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			sum, err := LoadFile(ctx, w.path, w.dst)
			if err != nil {
				w.log.Warn("users csv reload failed", slog.String("path", w.path), slog.String("err", err.Error()))
				continue
			}
			w.log.Info("users csv reloaded",
				slog.String("path", w.path),
				slog.Int("imported", sum.Imported),
				slog.Int("duplicates", sum.Duplicates),
				slog.Int("malformed", sum.Malformed))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("users csv watch error", slog.String("err", err.Error()))
		}
	}
}
