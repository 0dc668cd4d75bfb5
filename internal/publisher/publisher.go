// Package publisher uploads a built release archive to the plugin
// registry's object store and records the new version in the central
// packages.json manifest.
//
// The manifest update is a whole-document read-modify-write without
// conditional writes: concurrent publishers racing on the manifest key
// can lose updates. The archive is uploaded before the manifest, so a
// failed manifest write leaves an unreferenced archive object but never a
// manifest entry pointing at a missing artifact.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hoophq/plugin-secretsmanager/internal/config"
	"github.com/hoophq/plugin-secretsmanager/pkg/client"
	"github.com/hoophq/plugin-secretsmanager/pkg/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const manifestKey = "packages.json"

type Publisher struct {
	log      *logrus.Logger
	cfg      *config.Config
	storage  *s3.Client
	registry *client.Client
	now      func() time.Time
}

func New(log *logrus.Logger, cfg *config.Config, storage *s3.Client, registryClient *client.Client) *Publisher {
	return &Publisher{
		log:      log,
		cfg:      cfg,
		storage:  storage,
		registry: registryClient,
		now:      time.Now,
	}
}

// Publish locates the artifacts produced by the builder at their fixed
// paths, prepends a new version record to the remote manifest and uploads
// archive then manifest. Completed steps are not rolled back on failure.
//
// The recorded size and digest describe the raw binary while the uploaded
// artifact is the archive; the archive's own checksum is kept as object
// metadata on the upload.
func (p *Publisher) Publish(ctx context.Context) (*registry.PluginVersion, error) {
	binaryInfo, err := os.Stat(p.cfg.BinaryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to stat binary: %w", err)
	}

	var archiveSum, binarySum string
	g := new(errgroup.Group)
	g.Go(func() (dErr error) {
		archiveSum, dErr = fileDigest(p.cfg.ArchivePath())
		return dErr
	})
	g.Go(func() (dErr error) {
		binarySum, dErr = fileDigest(p.cfg.BinaryPath())
		return dErr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.log.Info("downloading packages.json manifest")
	manifest, err := p.registry.GetManifest(ctx)
	if err != nil {
		return nil, err
	}

	pv := &registry.PluginVersion{
		Name:      config.PluginName,
		Version:   p.cfg.Version,
		Size:      binaryInfo.Size(),
		Digest:    registry.NewDigest(binarySum),
		URL:       p.cfg.DownloadURL(registry.DefaultNamespace),
		CreatedAt: p.now().UTC(),
		Platform: registry.Platform{
			Architecture: p.cfg.Arch,
			OS:           p.cfg.OS,
		},
	}
	manifest.AddRelease(p.cfg.PackageKey(registry.DefaultNamespace), pv)

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := os.WriteFile(p.cfg.ScratchManifestPath, manifestJSON, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write scratch manifest: %w", err)
	}

	p.log.Infof("uploading package %s", p.cfg.ArchivePath())
	if err := p.uploadArchive(ctx, archiveSum); err != nil {
		return nil, fmt.Errorf("failed to upload package: %w", err)
	}

	p.log.Info("uploading packages.json manifest")
	if err := p.uploadManifest(ctx); err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}

	p.log.Info("published")
	return pv, nil
}

func (p *Publisher) uploadArchive(ctx context.Context, checksum string) error {
	archive, err := os.Open(p.cfg.ArchivePath())
	if err != nil {
		return err
	}
	defer archive.Close()
	objectKey := p.cfg.ObjectKey(registry.DefaultNamespace)
	_, err = p.storage.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      p.cfg.GetBucket(),
		Key:         &objectKey,
		Body:        archive,
		ContentType: aws.String("application/gzip"),
		Metadata: map[string]string{
			"checksum": checksum,
		},
	})
	return err
}

func (p *Publisher) uploadManifest(ctx context.Context) error {
	manifest, err := os.Open(p.cfg.ScratchManifestPath)
	if err != nil {
		return err
	}
	defer manifest.Close()
	_, err = p.storage.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      p.cfg.GetBucket(),
		Key:         aws.String(manifestKey),
		Body:        manifest,
		ContentType: aws.String("application/json; charset=utf-8"),
	})
	return err
}

// fileDigest returns the hex-encoded SHA-256 sum of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
