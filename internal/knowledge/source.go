package knowledge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
)

// Source yields raw CSV knowledge data.
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// HTTPSource fetches the knowledge CSV from a published URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates an HTTP source with the given request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) String() string { return s.URL }

// Fetch performs the GET request. Redirects are followed (published
// spreadsheets redirect to an export host).
func (s *HTTPSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// FileSource reads the knowledge CSV from a local file.
type FileSource struct {
	Path string
}

func (s *FileSource) String() string { return s.Path }

func (s *FileSource) Fetch(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// Loader loads a Source into a Store and keeps it fresh.
type Loader struct {
	store *Store
	src   Source
}

// NewLoader creates a loader for the given store and source.
func NewLoader(store *Store, src Source) *Loader {
	return &Loader{store: store, src: src}
}

// Load fetches, parses, and atomically installs a new snapshot. On any
// failure the previous snapshot stays active and a *LoadError is returned.
func (l *Loader) Load(ctx context.Context) error {
	rc, err := l.src.Fetch(ctx)
	if err != nil {
		return &LoadError{Source: l.src.String(), Err: err}
	}
	defer rc.Close()

	entries, err := ParseCSV(rc)
	if err != nil {
		return &LoadError{Source: l.src.String(), Err: err}
	}

	l.store.Replace(entries, l.src.String())
	log.Printf("[KB] Loaded %d entries from %s", len(entries), l.src)
	return nil
}

// Run reloads the knowledge base periodically until ctx is cancelled.
// Failures back off exponentially and never disturb the active snapshot.
func (l *Loader) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Minute
	bo.MaxInterval = 15 * time.Minute
	bo.MaxElapsedTime = 0 // retry forever

	for {
		wait := interval
		if err := l.Load(ctx); err != nil {
			wait = bo.NextBackOff()
			log.Printf("[KB] Refresh failed, retrying in %s: %v", wait.Round(time.Second), err)
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Watch reloads on writes to a FileSource's path. It is a no-op for other
// source kinds. Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	fs, ok := l.src.(*FileSource)
	if !ok {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files on save.
	if err := w.Add(filepath.Dir(fs.Path)); err != nil {
		return err
	}

	target, _ := filepath.Abs(fs.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := l.Load(ctx); err != nil {
				log.Printf("[KB] Reload after file change failed: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[KB] Watcher error: %v", err)
		}
	}
}
