package tlsroots

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
)

// reloadDelay coalesces the burst of fsnotify events a certificate
// rotation produces, and gives the writer time to finish the key file.
const reloadDelay = 250 * time.Millisecond

// Watcher serves the server certificate and swaps in a fresh key pair
// whenever the files on disk are rewritten. GetCertificate plugs into
// tls.Config, so in-flight listeners pick up rotated certificates
// without a restart.
type Watcher struct {
	certFile string
	keyFile  string
	log      logger.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	done chan struct{}
}

// NewWatcher loads the initial key pair from certFile and keyFile.
// A nil log disables watcher logging.
func NewWatcher(certFile, keyFile string, log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		log:      log,
		done:     make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}
	return w, nil
}

// StartAsync begins watching the certificate files in the background.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.watch(); err != nil {
			w.log.Error("certificate watcher stopped", "error", err)
		}
	}()
}

// Stop ends the background watch.
func (w *Watcher) Stop() {
	close(w.done)
}

// GetCertificate returns the current key pair. It satisfies
// tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

func (w *Watcher) watch() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the parent directories rather than the files themselves.
	// Rotation tools typically replace via rename, which would
	// otherwise drop the watch.
	dirs := map[string]struct{}{
		filepath.Dir(w.certFile): {},
		filepath.Dir(w.keyFile):  {},
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	w.log.Info("watching certificate files",
		"cert_file", w.certFile, "key_file", w.keyFile)

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(reloadDelay)
				pendingC = pending.C
			} else {
				pending.Reset(reloadDelay)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			if err := w.reload(); err != nil {
				w.log.Error("certificate reload failed", "error", err)
				continue
			}
			w.log.Info("certificate reloaded", "cert_file", w.certFile)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("certificate watch error", "error", err)

		case <-w.done:
			return nil
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	return name == filepath.Base(w.certFile) || name == filepath.Base(w.keyFile)
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()
	return nil
}
