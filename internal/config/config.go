// Package config builds the process configuration once at startup from
// environment variables. Both release commands construct a Config before
// performing any side effect and pass it down explicitly.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
)

// PluginName is the only plugin this tooling builds and publishes.
const PluginName = "secretsmanager"

// ErrVersionMissing is returned when PLUGIN_VERSION is not set. Commands
// translate it into the fixed operator diagnostic and exit code 1.
var ErrVersionMissing = errors.New("missing environment variables: PLUGIN_VERSION")

type Config struct {
	Version             string `envconfig:"PLUGIN_VERSION"`
	OS                  string `envconfig:"GOOS" default:"Linux"`
	Arch                string `envconfig:"GOARCH" default:"amd64"`
	Bucket              string `envconfig:"PLUGIN_REGISTRY_BUCKET" default:"pluginregistry"`
	RegistryURL         string `envconfig:"PLUGIN_REGISTRY_URL"`
	BuildDir            string `envconfig:"PLUGIN_BUILD_DIR" default:"builds"`
	SourceDir           string `envconfig:"PLUGIN_SOURCE_DIR" default:"."`
	ScratchManifestPath string `envconfig:"PLUGIN_SCRATCH_MANIFEST" default:"/tmp/packages.json"`

	// optional overrides for S3-compatible stores and tests
	S3Endpoint        string `envconfig:"PLUGIN_S3_ENDPOINT"`
	S3AccessKeyID     string `envconfig:"PLUGIN_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"PLUGIN_S3_SECRET_ACCESS_KEY"`
}

// FromEnv processes the environment into a Config and validates it. No
// side effects are performed; callers must not touch disk or network
// before this succeeds.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		return nil, ErrVersionMissing
	}
	if _, err := semver.NewVersion(cfg.Version); err != nil {
		return nil, fmt.Errorf("PLUGIN_VERSION %q is not a valid semver version: %w", cfg.Version, err)
	}
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
	return &cfg, nil
}

// GOOS is the target OS as passed to the Go toolchain and used in archive
// filenames. The configured OS keeps its original casing for the manifest
// platform record.
func (c *Config) GOOS() string {
	return strings.ToLower(c.OS)
}

// ArchiveName returns "<plugin>-<version>-<os>-<arch>.tar.gz".
func (c *Config) ArchiveName() string {
	return fmt.Sprintf("%s-%s-%s-%s.tar.gz", PluginName, c.Version, c.GOOS(), c.Arch)
}

func (c *Config) BinaryPath() string {
	return filepath.Join(c.BuildDir, PluginName)
}

func (c *Config) ArchivePath() string {
	return filepath.Join(c.BuildDir, c.ArchiveName())
}

// PackageKey returns the manifest key, e.g. "hoop/secretsmanager".
func (c *Config) PackageKey(namespace string) string {
	return fmt.Sprintf("%s/%s", namespace, PluginName)
}

// ObjectKey returns the object store key of the release archive,
// "<namespace>/<plugin>/<version>/<archive-filename>".
func (c *Config) ObjectKey(namespace string) string {
	return fmt.Sprintf("%s/%s/%s", c.PackageKey(namespace), c.Version, c.ArchiveName())
}

// DownloadURL returns the public HTTPS URL of the release archive.
func (c *Config) DownloadURL(namespace string) string {
	u, err := url.JoinPath(c.RegistryURL, c.ObjectKey(namespace))
	if err != nil {
		panic(err)
	}
	return u
}

func (c *Config) GetBucket() *string {
	return &c.Bucket
}

func (c *Config) s3EndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL:               c.S3Endpoint,
		HostnameImmutable: true,
	}, nil
}

// CreateS3Client builds the object store client. With no overrides the
// SDK default credential chain and endpoints are used; S3-compatible
// stores can be targeted via the PLUGIN_S3_* variables.
func (c *Config) CreateS3Client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{}
	if c.S3Endpoint != "" {
		opts = append(opts, awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(c.s3EndpointResolver)))
	}
	if c.S3AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.S3AccessKeyID, c.S3SecretAccessKey, ""),
		))
	}
	s3Cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}
