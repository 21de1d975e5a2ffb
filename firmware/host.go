// Package firmware hosts an update image over HTTP for devices to pull.
//
// Devices receive a download URL in the update command and fetch the
// image themselves. The host serves exactly one path and nothing else:
// it exists for the duration of one push, on a trusted network.
package firmware

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/opengrid-io/fleetkit/log"
)

// ImagePath is the single path the host serves.
const ImagePath = "/firmware.bin"

// DefaultPort is the conventional firmware hosting port.
const DefaultPort = 8000

// Host serves one firmware image file.
type Host struct {
	path   string
	size   int64
	logger *log.Logger

	server   *http.Server
	listener net.Listener
	served   atomic.Int64
}

// NewHost prepares a host for the image at path. The file must exist;
// its size at this point is what devices are told to expect.
func NewHost(path string, logger *log.Logger) (*Host, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("firmware image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("firmware image %s is a directory", path)
	}
	return &Host{path: path, size: info.Size(), logger: logger}, nil
}

// Size returns the image size in bytes.
func (h *Host) Size() int64 {
	return h.size
}

// Served returns how many downloads completed.
func (h *Host) Served() int64 {
	return h.served.Load()
}

// Start listens on the given port (0 picks an ephemeral one) and
// serves in the background until Shutdown.
func (h *Host) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("firmware host listen: %w", err)
	}
	h.listener = ln
	h.server = &http.Server{Handler: h}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("firmware host stopped", map[string]any{"error": err.Error()})
		}
	}()

	h.logger.Info("firmware host started", map[string]any{
		"port": h.Port(),
		"file": filepath.Base(h.path),
		"size": h.size,
	})
	return nil
}

// Port returns the bound port once started.
func (h *Host) Port() int {
	if h.listener == nil {
		return 0
	}
	return h.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the download URL devices can reach, using the local
// address visible on the default route.
func (h *Host) URL() string {
	return fmt.Sprintf("http://%s:%d%s", LocalIP(), h.Port(), ImagePath)
}

// Shutdown stops the server, waiting for in-flight downloads.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// ServeHTTP serves the image for GET ImagePath and 404s everything
// else. The file is reopened per request; the announced length is the
// size recorded at construction.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != ImagePath {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(h.path)
	if err != nil {
		h.logger.Error("firmware open failed", map[string]any{"error": err.Error()})
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", h.size))
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("firmware download aborted", map[string]any{
			"client": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}

	h.served.Add(1)
	h.logger.Info("firmware served", map[string]any{"client": r.RemoteAddr})
}

// LocalIP finds the local address the default route would use, by
// opening a UDP socket toward a public address. No packet is sent.
// Falls back to the loopback address when the host is offline.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
