package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Supported publisher types.
	TypeSQS       = "sqs"
	TypeSNS       = "sns"
	TypeGCPPubSub = "gcp_pubsub"
	TypeHTTP      = "http"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// configFile is the top level of a publishers file.
type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig represents a single publisher entry declared in config files.
type PublisherConfig struct {
	ID      string               `json:"id" yaml:"id"`
	Type    string               `json:"type" yaml:"type"`
	Enabled *bool                `json:"enabled" yaml:"enabled"`
	SQS     *SQSPublisherConfig  `json:"sqs" yaml:"sqs"`
	SNS     *SNSPublisherConfig  `json:"sns" yaml:"sns"`
	GCP     *GCPQueueConfig      `json:"gcp_pubsub" yaml:"gcp_pubsub"`
	HTTP    *HTTPPublisherConfig `json:"http" yaml:"http"`
}

// AWSCredentials optionally pins static credentials and a custom endpoint.
// When keys are empty the default AWS credential chain is used.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// SQSPublisherConfig holds AWS SQS specific settings.
type SQSPublisherConfig struct {
	QueueURL string `json:"uri" yaml:"uri"`
	Region   string `json:"region" yaml:"region"`

	AWSCredentials `yaml:",inline"`
}

// SNSPublisherConfig holds AWS SNS specific settings.
type SNSPublisherConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	Region   string `json:"region" yaml:"region"`

	AWSCredentials `yaml:",inline"`
}

// GCPQueueConfig holds Google Cloud Pub/Sub settings.
type GCPQueueConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// HTTPPublisherConfig holds generic HTTP sink settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ConfigRegistry holds the validated entries of one publishers file.
// It is not modified after LoadRegistry returns.
type ConfigRegistry struct {
	entries []PublisherConfig
	byID    map[string]int
}

// LoadRegistry reads a YAML or JSON publishers file. The extension picks the
// decoder; an unknown extension tries YAML and then JSON.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var file configFile
	if err := decodePublishersFile(raw, filepath.Ext(path), &file); err != nil {
		return nil, err
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{byID: make(map[string]int, len(file.Publishers))}
	for i, entry := range file.Publishers {
		cfg := sanitizePublisherConfig(entry)
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := reg.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.byID[cfg.ID] = len(reg.entries)
		reg.entries = append(reg.entries, cfg)
	}
	return reg, nil
}

func decodePublishersFile(data []byte, ext string, out *configFile) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode yaml publishers: %w", err)
		}
		return nil
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode json publishers: %w", err)
		}
		return nil
	}
	if yaml.Unmarshal(data, out) == nil {
		return nil
	}
	*out = configFile{}
	if json.Unmarshal(data, out) == nil {
		return nil
	}
	return errors.New("publishers file format not recognized (expected YAML or JSON)")
}

// sanitizePublisherConfig trims every string field and fills HTTP defaults.
func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		on := true
		cfg.Enabled = &on
	}

	if cfg.SQS != nil {
		c := *cfg.SQS
		c.QueueURL, c.Region = strings.TrimSpace(c.QueueURL), strings.TrimSpace(c.Region)
		c.AWSCredentials = c.AWSCredentials.trimmed()
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.TopicARN, c.Region = strings.TrimSpace(c.TopicARN), strings.TrimSpace(c.Region)
		c.AWSCredentials = c.AWSCredentials.trimmed()
		cfg.SNS = &c
	}
	if cfg.GCP != nil {
		c := *cfg.GCP
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		cfg.GCP = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		if c.Method = strings.ToUpper(strings.TrimSpace(c.Method)); c.Method == "" {
			c.Method = httpDefaultMethod
		}
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		c.Headers = trimHeaders(c.Headers)
		cfg.HTTP = &c
	}
	return cfg
}

func (c AWSCredentials) trimmed() AWSCredentials {
	return AWSCredentials{
		AccessKeyID:     strings.TrimSpace(c.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(c.SecretAccessKey),
		Endpoint:        strings.TrimSpace(c.Endpoint),
	}
}

// trimHeaders drops headers whose name or value is blank.
func trimHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// field is one required setting of a sink block, named as it appears in the file.
type field struct {
	name  string
	value string
}

// requiredFields returns the sink block name, whether it is present and the
// settings it must carry for the publisher's type.
func requiredFields(cfg PublisherConfig) (block string, present bool, fields []field) {
	switch cfg.Type {
	case TypeSQS:
		if cfg.SQS == nil {
			return "sqs", false, nil
		}
		return "sqs", true, []field{{"sqs.uri", cfg.SQS.QueueURL}, {"sqs.region", cfg.SQS.Region}}
	case TypeSNS:
		if cfg.SNS == nil {
			return "sns", false, nil
		}
		return "sns", true, []field{{"sns.topic_arn", cfg.SNS.TopicARN}, {"sns.region", cfg.SNS.Region}}
	case TypeGCPPubSub:
		if cfg.GCP == nil {
			return "gcp_pubsub", false, nil
		}
		return "gcp_pubsub", true, []field{{"gcp_pubsub.project_id", cfg.GCP.ProjectID}, {"gcp_pubsub.topic", cfg.GCP.Topic}}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return "http", false, nil
		}
		return "http", true, []field{{"http.url", cfg.HTTP.URL}}
	}
	return "", true, nil
}

// validatePublisherConfig checks the id, the type and the settings the type needs.
// Unknown types pass here and fail when the registry has no builder for them.
func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	}
	block, present, fields := requiredFields(cfg)
	if !present {
		return fmt.Errorf("%s config required for publisher %q", block, cfg.ID)
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%s is required for publisher %q", f.name, cfg.ID)
		}
	}
	return nil
}

// ByID looks up one entry.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	i, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return PublisherConfig{}, false
	}
	return r.entries[i], true
}

// Enabled returns the entries that are switched on, in file order.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	if r == nil {
		return nil
	}
	var out []PublisherConfig
	for _, cfg := range r.entries {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue reports the enabled flag; an entry without one is enabled.
func (cfg PublisherConfig) EnabledValue() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}
