package router

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ApprovalWatcher resolves suspended tasks from signal files. Dropping
// <task-id>.approve or <task-id>.reject into the approvals directory
// delivers the decision, so any external tool that can write a file can act
// as the approval UX.
type ApprovalWatcher struct {
	service *Service
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewApprovalWatcher creates a watcher over <projectRoot>/.foreman/approvals.
func NewApprovalWatcher(service *Service, projectRoot string) (*ApprovalWatcher, error) {
	dir := filepath.Join(projectRoot, ".foreman", "approvals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &ApprovalWatcher{
		service: service,
		dir:     dir,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	return w, nil
}

// Start begins watching. Signal files already present are processed first,
// covering decisions dropped while no watcher was running.
func (w *ApprovalWatcher) Start(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				w.handleFile(ctx, filepath.Join(w.dir, e.Name()))
			}
		}
	}
	go w.watch(ctx)
}

// Close stops the watcher.
func (w *ApprovalWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *ApprovalWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handleFile(ctx, event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching; the startup scan covers missed files on the
			// next run.
		}
	}
}

// handleFile maps a signal file name onto an approval decision.
func (w *ApprovalWatcher) handleFile(ctx context.Context, path string) {
	base := filepath.Base(path)
	var taskID string
	var approve bool
	switch {
	case strings.HasSuffix(base, ".approve"):
		taskID = strings.TrimSuffix(base, ".approve")
		approve = true
	case strings.HasSuffix(base, ".reject"):
		taskID = strings.TrimSuffix(base, ".reject")
	default:
		return
	}
	if taskID == "" {
		return
	}

	if err := w.service.ResumeApproval(ctx, taskID, approve); err != nil {
		log.Printf("[approvals] signal file %s: %v", base, err)
		return
	}
	// Consume the signal so a restart does not replay it.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[approvals] remove signal file %s: %v", base, err)
	}
}
