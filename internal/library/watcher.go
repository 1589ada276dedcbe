package library

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when matching audio files appear or change in the scanned
// directory. Bursts of events are collapsed into one signal after the
// debounce delay.
type Watcher struct {
	scanner *Scanner
	watcher *fsnotify.Watcher
	logger  *log.Logger

	changes chan struct{}

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher starts watching the scanner's directory.
func NewWatcher(scanner *Scanner, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	if err := watcher.Add(scanner.Root()); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		scanner:      scanner,
		watcher:      watcher,
		logger:       logger,
		changes:      make(chan struct{}, 1),
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Changes delivers one value per debounced batch of file events. Pending
// signals coalesce while the receiver is busy.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and cleans up resources.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)

		w.refreshMu.Lock()
		if w.refreshTimer != nil {
			w.refreshTimer.Stop()
			w.refreshTimer = nil
		}
		w.refreshMu.Unlock()

		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if !w.scanner.Matches(event.Name) {
		return
	}
	w.scheduleSignal()
}

func (w *Watcher) scheduleSignal() {
	select {
	case <-w.done:
		return
	default:
	}

	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	if w.refreshTimer != nil {
		w.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.refreshDelay, func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}

		w.refreshMu.Lock()
		if w.refreshTimer == timer {
			w.refreshTimer = nil
		}
		w.refreshMu.Unlock()
	})

	w.refreshTimer = timer
}
