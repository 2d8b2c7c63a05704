package publishers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistryEnabledFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	raw := `
publishers:
  - id: http1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: http2
    type: http
    enabled: true
    http:
      url: https://example.com/2
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "http2" {
		t.Fatalf("expected only http2 enabled, got %#v", enabled)
	}
}

func TestValidatePublisherConfigRejectsMissingHTTP(t *testing.T) {
	err := validatePublisherConfig(PublisherConfig{
		ID:   "h1",
		Type: TypeHTTP,
	})
	if err == nil {
		t.Fatalf("expected validation error for missing http block")
	}
}

func TestValidatePublisherConfigQueueSinks(t *testing.T) {
	cases := []PublisherConfig{
		{ID: "s1", Type: TypeSNS, SNS: &SNSPublisherConfig{Region: "ap-south-1"}},
		{ID: "s2", Type: TypeSNS, SNS: &SNSPublisherConfig{TopicARN: "arn:aws:sns:::t"}},
		{ID: "g1", Type: TypeGCPPubSub},
		{ID: "g2", Type: TypeGCPPubSub, GCP: &GCPQueueConfig{ProjectID: "p"}},
		{ID: "q1", Type: TypeSQS, SQS: &SQSPublisherConfig{QueueURL: "https://sqs/q"}},
	}
	for _, cfg := range cases {
		if err := validatePublisherConfig(sanitizePublisherConfig(cfg)); err == nil {
			t.Fatalf("expected validation error for %s", cfg.ID)
		}
	}
}

func TestLoadRegistryReadsInlineAWSCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publishers.yaml")
	raw := `
publishers:
  - id: topic
    type: sns
    sns:
      topic_arn: " arn:aws:sns:ap-south-1:1:reader "
      region: ap-south-1
      access_key_id: AKIA
      secret_access_key: secret
      endpoint: http://localhost:4566
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	cfg, ok := reg.ByID("topic")
	if !ok {
		t.Fatalf("expected topic publisher")
	}
	if cfg.SNS.TopicARN != "arn:aws:sns:ap-south-1:1:reader" {
		t.Fatalf("TopicARN not trimmed: %q", cfg.SNS.TopicARN)
	}
	if cfg.SNS.AccessKeyID != "AKIA" || cfg.SNS.Endpoint != "http://localhost:4566" {
		t.Fatalf("inline credentials not decoded: %#v", cfg.SNS.AWSCredentials)
	}
}

func TestFanoutFromFileMissingFileIsEmpty(t *testing.T) {
	fanout, err := FanoutFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("FanoutFromFile: %v", err)
	}
	if fanout.Size() != 0 {
		t.Fatalf("expected empty fanout, got %d", fanout.Size())
	}
	if n, err := fanout.Publish(context.Background(), NewEvent(EventOfflineDownloadCompleted, "latest", 1, 1)); n != 0 || err != nil {
		t.Fatalf("empty fanout publish = %d, %v", n, err)
	}
}
