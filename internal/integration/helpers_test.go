package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/oshokin/agent-updater/internal/api/grpc/events"
	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/service/packager"
)

const (
	product   = "agent"
	apiKey    = "api-key"
	deviceKey = "device-key"
)

// eventLog collects events received by the fake control panel.
type eventLog struct {
	mu     sync.Mutex
	events []release.Event
}

func (l *eventLog) Accept(_ context.Context, event release.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)

	return nil
}

func (l *eventLog) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]string, 0, len(l.events))
	for _, event := range l.events {
		result = append(result, event.Info.Status+":"+event.Info.OldVersion+"->"+event.Info.NewVersion)
	}

	return result
}

// publishRelease builds the artifact of version for the running platform and
// packages it into root the way the release host lays files out.
func publishRelease(t *testing.T, root, version string) string {
	t.Helper()

	dir := filepath.Join(root, version)
	require.NoError(t, os.MkdirAll(dir, 0o750))

	name := release.NewDescriptor(product, version).Filename()
	archivePath := filepath.Join(dir, name)

	file, err := os.Create(archivePath)
	require.NoError(t, err)

	w := zip.NewWriter(file)
	staging := release.StagingName(product, version)

	for entry, body := range map[string]string{
		staging + "/bin/" + product: "#!/bin/sh\necho " + version + "\n",
		staging + "/bin/node":       "#!/bin/sh\n",
		staging + "/package.json":   `{"version":"` + version + `"}`,
	} {
		writer, createErr := w.Create(entry)
		require.NoError(t, createErr)

		_, err = writer.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, file.Close())

	_, err = packager.Run(context.Background(), &packager.Options{
		Dir:         dir,
		Product:     product,
		WriteLatest: true,
	})
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(dir, packager.LatestFilename), filepath.Join(root, packager.LatestFilename)))

	return archivePath
}

// startReleaseHost serves root plus a geo endpoint and an HTTP events endpoint.
func startReleaseHost(t *testing.T, root string, log *eventLog) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("/releases/", http.StripPrefix("/releases/", http.FileServer(http.Dir(root))))
	mux.HandleFunc("/geo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"198.51.100.4","country":"NZ"}`))
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var event release.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_ = log.Accept(r.Context(), event)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

// startEventService serves the gRPC event service on a loopback port.
func startEventService(t *testing.T, log *eventLog) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	events.Register(server, events.NewServer(log, events.WithAPIKey(apiKey)))

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	return listener.Addr().String()
}

// writeSettings saves a configuration rooted in a temporary directory.
func writeSettings(t *testing.T, releasesURL string, eventsCfg config.Events) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Product:     product,
		ReleasesURL: releasesURL,
		VersionsDir: filepath.Join(dir, "versions"),
		DownloadDir: filepath.Join(dir, "downloads"),
		StateFile:   filepath.Join(dir, config.DefaultStateFilename),
		Timeout:     5 * time.Second,
		Events:      eventsCfg,
	}

	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}
