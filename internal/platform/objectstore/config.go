package objectstore

import (
	"fmt"
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
)

type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	BucketDatasets  string
	BucketArtifacts string
	BucketReports   string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("MODELBAY_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:        env.String("MODELBAY_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:       env.String("MODELBAY_MINIO_ACCESS_KEY", "modelbay"),
		SecretKey:       env.String("MODELBAY_MINIO_SECRET_KEY", "modelbayminio"),
		Region:          env.String("MODELBAY_MINIO_REGION", "us-east-1"),
		UseSSL:          useSSL,
		BucketDatasets:  env.String("MODELBAY_MINIO_BUCKET_DATASETS", "datasets"),
		BucketArtifacts: env.String("MODELBAY_MINIO_BUCKET_ARTIFACTS", "artifacts"),
		BucketReports:   env.String("MODELBAY_MINIO_BUCKET_REPORTS", "reports"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"endpoint", c.Endpoint},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
		{"region", c.Region},
		{"datasets bucket", c.BucketDatasets},
		{"artifacts bucket", c.BucketArtifacts},
		{"reports bucket", c.BucketReports},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
