package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		Endpoint:        "localhost:9000",
		AccessKey:       "ak",
		SecretKey:       "sk",
		Region:          "us-east-1",
		BucketDatasets:  "datasets",
		BucketArtifacts: "artifacts",
		BucketReports:   "reports",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	bad := cfg
	bad.Endpoint = "http://localhost:9000"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for endpoint with scheme")
	}

	bad = cfg
	bad.BucketReports = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for empty reports bucket")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.BucketArtifacts != "artifacts" {
		t.Fatalf("BucketArtifacts=%q, want artifacts", cfg.BucketArtifacts)
	}
}
