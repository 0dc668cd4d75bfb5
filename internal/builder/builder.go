// Package builder compiles the plugin for a target platform and packages
// the binary into a versioned tar.gz archive under the build directory.
package builder

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/hoophq/plugin-secretsmanager/internal/config"
	"github.com/hoophq/plugin-secretsmanager/internal/executor"
	"github.com/sirupsen/logrus"
)

type Builder struct {
	log  *logrus.Logger
	cfg  *config.Config
	exec executor.Executor
}

func New(log *logrus.Logger, cfg *config.Config, exec executor.Executor) *Builder {
	return &Builder{log: log, cfg: cfg, exec: exec}
}

// Run compiles the plugin and packages it. The build directory must not
// exist yet; a leftover directory from a previous run is an error, there
// is no cleanup or retry.
func (b *Builder) Run(ctx context.Context) error {
	if err := os.Mkdir(b.cfg.BuildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	b.log.Infof("compiling %s %s/%s", config.PluginName, b.cfg.GOOS(), b.cfg.Arch)
	err := b.exec.Run(ctx, "go",
		[]string{"build", "-o", b.cfg.BinaryPath(), b.cfg.SourceDir},
		[]string{
			"GOOS=" + b.cfg.GOOS(),
			"GOARCH=" + b.cfg.Arch,
			"CGO_ENABLED=0",
		})
	if err != nil {
		return err
	}

	archiveName := b.cfg.ArchiveName()
	checksum, err := createArchive(archiveName, b.cfg.BinaryPath())
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := os.Rename(archiveName, b.cfg.ArchivePath()); err != nil {
		return fmt.Errorf("failed to move archive into build directory: %w", err)
	}
	b.log.Infof("created %s (sha256:%s)", b.cfg.ArchivePath(), checksum)
	return nil
}

// createArchive writes a gzip-compressed tar archive containing the
// binary as its single entry and returns the hex-encoded SHA-256 sum of
// the archive.
func createArchive(archivePath, binaryPath string) (string, error) {
	binary, err := os.Open(binaryPath)
	if err != nil {
		return "", err
	}
	defer binary.Close()
	binaryInfo, err := binary.Stat()
	if err != nil {
		return "", err
	}

	archive, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer archive.Close()

	archiveHash := sha256.New()
	gzipWriter := gzip.NewWriter(io.MultiWriter(archive, archiveHash))
	tarWriter := tar.NewWriter(gzipWriter)
	err = tarWriter.WriteHeader(&tar.Header{
		Name: config.PluginName,
		Mode: 0o755,
		Size: binaryInfo.Size(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := io.Copy(tarWriter, binary); err != nil {
		return "", fmt.Errorf("failed to write tar file: %w", err)
	}
	if err := tarWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return hex.EncodeToString(archiveHash.Sum(nil)), nil
}
