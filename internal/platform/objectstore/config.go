package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saadabdullah098/networksecurity/internal/platform/env"
)

type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	BucketArtifacts string
	BucketModels    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("NETSEC_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:        env.String("NETSEC_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:       env.String("NETSEC_MINIO_ACCESS_KEY", "netsec"),
		SecretKey:       env.String("NETSEC_MINIO_SECRET_KEY", "netsecminio"),
		Region:          env.String("NETSEC_MINIO_REGION", "us-east-1"),
		UseSSL:          useSSL,
		BucketArtifacts: env.String("NETSEC_MINIO_BUCKET_ARTIFACTS", "netsec-artifacts"),
		BucketModels:    env.String("NETSEC_MINIO_BUCKET_MODELS", "netsec-models"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketArtifacts) == "" {
		return errors.New("artifacts bucket is required")
	}
	if strings.TrimSpace(c.BucketModels) == "" {
		return errors.New("models bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
