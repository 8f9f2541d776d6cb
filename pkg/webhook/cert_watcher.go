/*
Copyright 2025 The Pebble Webhook Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package webhook

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ctrl "sigs.k8s.io/controller-runtime"
)

// CertificateWatcher loads the serving certificate at startup and reloads it
// when the files change, so certificate rotation does not require a restart.
// The initial Load must succeed before serving; reload failures keep the
// last good pair.
type CertificateWatcher struct {
	certPath string
	keyPath  string

	mu      sync.RWMutex
	current *tls.Certificate

	watcher *fsnotify.Watcher
}

// NewCertificateWatcher creates a watcher for the given certificate pair.
func NewCertificateWatcher(certPath, keyPath string) *CertificateWatcher {
	return &CertificateWatcher{
		certPath: certPath,
		keyPath:  keyPath,
	}
}

// Load reads the certificate pair from disk. Both files must exist and be
// parseable; the caller is expected to treat a failure here as fatal.
func (cw *CertificateWatcher) Load() error {
	for _, path := range []string{cw.certPath, cw.keyPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("certificate material unavailable at %s: %w", path, err)
		}
	}

	cert, err := tls.LoadX509KeyPair(cw.certPath, cw.keyPath)
	if err != nil {
		return fmt.Errorf("failed to load certificate pair: %w", err)
	}

	cw.mu.Lock()
	cw.current = &cert
	cw.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate, returning the most
// recently loaded pair.
func (cw *CertificateWatcher) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	if cw.current == nil {
		return nil, fmt.Errorf("no certificate loaded")
	}
	return cw.current, nil
}

// Start watches the certificate directory until the context is cancelled.
func (cw *CertificateWatcher) Start(ctx context.Context) error {
	logger := ctrl.Log.WithName("cert-watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	cw.watcher = watcher

	// Watch the directory, not the files: Kubernetes secret mounts rotate
	// certs by swapping symlinked directories, which never fires a Write
	// event on the file path itself.
	certDir := filepath.Dir(cw.certPath)
	if err := watcher.Add(certDir); err != nil {
		return err
	}

	logger.Info("Started certificate watcher", "cert-path", cw.certPath, "key-path", cw.keyPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Info("Certificate directory changed, reloading", "file", event.Name)
				if err := cw.reload(); err != nil {
					logger.Error(err, "Failed to reload certificate, keeping previous pair")
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(err, "Certificate watcher error")

		case <-ctx.Done():
			return watcher.Close()
		}
	}
}

// reload re-reads the pair after a short settle delay so partially written
// files are not picked up.
func (cw *CertificateWatcher) reload() error {
	time.Sleep(100 * time.Millisecond)
	return cw.Load()
}
