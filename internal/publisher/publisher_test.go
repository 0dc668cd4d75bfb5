package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hoophq/plugin-secretsmanager/internal/config"
	"github.com/hoophq/plugin-secretsmanager/pkg/client"
	"github.com/hoophq/plugin-secretsmanager/pkg/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	testBinary  = []byte("fake-plugin-binary")
	testArchive = []byte("fake-tar-gz-archive")
)

type objectPut struct {
	path     string
	body     []byte
	metadata http.Header
}

type fakeObjectStore struct {
	puts        []objectPut
	failArchive bool
}

func (f *fakeObjectStore) handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusOK)
		return
	}
	if f.failArchive && strings.HasSuffix(r.URL.Path, ".tar.gz") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.puts = append(f.puts, objectPut{path: r.URL.Path, body: body, metadata: r.Header})
	w.WriteHeader(http.StatusOK)
}

func writeArtifacts(t *testing.T, cfg *config.Config) {
	require.NoError(t, os.Mkdir(cfg.BuildDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.BinaryPath(), testBinary, 0o755))
	require.NoError(t, os.WriteFile(cfg.ArchivePath(), testArchive, 0o644))
}

func newTestPublisher(t *testing.T, store *fakeObjectStore, manifestJSON string) (*Publisher, *config.Config) {
	t.Setenv("AWS_REGION", "us-east-1")
	tmp := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})

	manifestServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(manifestJSON))
	}))
	t.Cleanup(manifestServer.Close)

	storeServer := httptest.NewServer(http.HandlerFunc(store.handler))
	t.Cleanup(storeServer.Close)

	cfg := &config.Config{
		Version:             "1.2.3",
		OS:                  "Linux",
		Arch:                "amd64",
		Bucket:              "test",
		RegistryURL:         manifestServer.URL,
		BuildDir:            "builds",
		ScratchManifestPath: filepath.Join(tmp, "packages.json"),
		S3Endpoint:          storeServer.URL,
		S3AccessKeyID:       "test",
		S3SecretAccessKey:   "test",
	}
	storage, err := cfg.CreateS3Client(context.Background())
	require.NoError(t, err)

	p := New(logrusDiscard(), cfg, storage, client.New(cfg.RegistryURL))
	p.now = func() time.Time {
		return time.Date(2023, 4, 2, 12, 30, 0, 0, time.UTC)
	}
	return p, cfg
}

func logrusDiscard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestPublish(t *testing.T) {
	store := &fakeObjectStore{}
	existing := `{"hoop/secretsmanager":{"versions":[{"name":"secretsmanager","version":"1.2.2"}]}}`
	p, cfg := newTestPublisher(t, store, existing)
	writeArtifacts(t, cfg)

	pv, err := p.Publish(context.Background())
	require.NoError(t, err)

	require.Equal(t, "secretsmanager", pv.Name)
	require.Equal(t, "1.2.3", pv.Version)
	require.EqualValues(t, len(testBinary), pv.Size)
	require.Equal(t, "sha256:"+sha256Hex(testBinary), pv.Digest)
	require.Equal(t, cfg.RegistryURL+"/hoop/secretsmanager/1.2.3/secretsmanager-1.2.3-linux-amd64.tar.gz", pv.URL)
	require.Equal(t, time.Date(2023, 4, 2, 12, 30, 0, 0, time.UTC), pv.CreatedAt)
	require.Equal(t, registry.Platform{Architecture: "amd64", OS: "Linux"}, pv.Platform)

	// archive must be uploaded before the manifest
	require.Len(t, store.puts, 2)
	require.Equal(t, "/test/hoop/secretsmanager/1.2.3/secretsmanager-1.2.3-linux-amd64.tar.gz", store.puts[0].path)
	require.Equal(t, testArchive, store.puts[0].body)
	require.Equal(t, sha256Hex(testArchive), store.puts[0].metadata.Get("X-Amz-Meta-Checksum"))
	require.Equal(t, "/test/packages.json", store.puts[1].path)

	var uploaded registry.Manifest
	require.NoError(t, json.Unmarshal(store.puts[1].body, &uploaded))
	versions := uploaded["hoop/secretsmanager"].Versions
	require.Len(t, versions, 2)
	require.Equal(t, "1.2.3", versions[0].Version)
	require.Equal(t, "1.2.2", versions[1].Version)

	// scratch manifest matches what was uploaded
	scratch, err := os.ReadFile(cfg.ScratchManifestPath)
	require.NoError(t, err)
	require.JSONEq(t, string(store.puts[1].body), string(scratch))
}

func TestPublishCreatesPackageEntry(t *testing.T) {
	store := &fakeObjectStore{}
	p, cfg := newTestPublisher(t, store, `{"hoop/runbooks":{"versions":[]}}`)
	writeArtifacts(t, cfg)

	_, err := p.Publish(context.Background())
	require.NoError(t, err)

	var uploaded registry.Manifest
	require.NoError(t, json.Unmarshal(store.puts[1].body, &uploaded))
	require.Len(t, uploaded, 2)
	require.Len(t, uploaded["hoop/secretsmanager"].Versions, 1)
}

func TestPublishFailedArchiveUploadSkipsManifest(t *testing.T) {
	store := &fakeObjectStore{failArchive: true}
	p, cfg := newTestPublisher(t, store, `{}`)
	writeArtifacts(t, cfg)

	_, err := p.Publish(context.Background())
	require.ErrorContains(t, err, "failed to upload package")
	// the previous remote manifest must remain untouched
	require.Empty(t, store.puts)
}

func TestPublishMissingBinary(t *testing.T) {
	store := &fakeObjectStore{}
	p, _ := newTestPublisher(t, store, `{}`)

	_, err := p.Publish(context.Background())
	require.ErrorContains(t, err, "failed to stat binary")
	require.Empty(t, store.puts)
}

func TestPublishMalformedManifest(t *testing.T) {
	store := &fakeObjectStore{}
	p, cfg := newTestPublisher(t, store, `{"hoop/secretsmanager":`)
	writeArtifacts(t, cfg)

	_, err := p.Publish(context.Background())
	require.ErrorContains(t, err, "failed to decode manifest")
	require.Empty(t, store.puts)
}
