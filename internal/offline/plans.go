package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultPlanPages = 3
	maxPlanPages     = 50
)

// Plan names a category to keep available offline.
type Plan struct {
	Category string `json:"category" yaml:"category"`
	Pages    int    `json:"pages" yaml:"pages"`
	Enabled  *bool  `json:"enabled" yaml:"enabled"`
}

// EnabledValue returns the enabled flag, defaulting to true.
func (p Plan) EnabledValue() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

type planFile struct {
	Plans []Plan `json:"plans" yaml:"plans"`
}

// LoadPlans reads download plans from a YAML or JSON file.
func LoadPlans(path string) ([]Plan, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("offline plans file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open offline plans file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read offline plans file: %w", err)
	}

	pf, err := parsePlans(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(pf.Plans) == 0 {
		return nil, errors.New("offline plans file contains no plans entries")
	}

	seen := make(map[string]struct{}, len(pf.Plans))
	for i := range pf.Plans {
		p := sanitizePlan(pf.Plans[i])
		if err := validatePlan(p); err != nil {
			return nil, fmt.Errorf("plans[%d]: %w", i, err)
		}
		if _, exists := seen[p.Category]; exists {
			return nil, fmt.Errorf("duplicate plan category %q", p.Category)
		}
		seen[p.Category] = struct{}{}
		pf.Plans[i] = p
	}
	return pf.Plans, nil
}

// EnabledPlans filters out disabled plans.
func EnabledPlans(plans []Plan) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.EnabledValue() {
			out = append(out, p)
		}
	}
	return out
}

func parsePlans(data []byte, ext string) (planFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var pf planFile
		if err := d.fn(data, &pf); err == nil {
			return pf, nil
		}
	}
	return planFile{}, errors.New("offline plans file format not recognized (expected YAML or JSON)")
}

func sanitizePlan(p Plan) Plan {
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	if p.Pages == 0 {
		p.Pages = defaultPlanPages
	}
	if p.Enabled == nil {
		def := true
		p.Enabled = &def
	}
	return p
}

func validatePlan(p Plan) error {
	if p.Category == "" {
		return errors.New("category is required")
	}
	if p.Pages < 1 || p.Pages > maxPlanPages {
		return fmt.Errorf("pages must be between 1 and %d for category %q", maxPlanPages, p.Category)
	}
	return nil
}
