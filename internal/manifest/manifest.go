// Package manifest loads product candidates from YAML manifest files.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reel-importer/internal/model"
)

// Defaults applied to candidates that leave the field unset.
const (
	DefaultMinSales = 300
	DefaultTopN     = 3
	DefaultCategory = "Home & Garden"
)

type document struct {
	Products []model.Candidate `yaml:"products"`
}

// Load reads every *.yml and *.yaml file in dir, in name order. A missing dir
// yields no candidates. Files that fail to parse are logged and skipped.
func Load(dir string) ([]model.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		zap.L().Info("manifest: directory not found", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []model.Candidate
	for _, name := range names {
		cands, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			zap.L().Warn("manifest: skipping file", zap.String("file", name), zap.Error(err))
			continue
		}
		zap.L().Info("manifest: loaded", zap.String("file", name), zap.Int("products", len(cands)))
		out = append(out, cands...)
	}
	return out, nil
}

// LoadFile reads one manifest file and applies defaults.
func LoadFile(path string) ([]model.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}
	for i := range doc.Products {
		ApplyDefaults(&doc.Products[i])
	}
	return doc.Products, nil
}

// ApplyDefaults fills unset numeric limits and the category.
func ApplyDefaults(c *model.Candidate) {
	if c.MinSales <= 0 {
		c.MinSales = DefaultMinSales
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if strings.TrimSpace(c.Category) == "" {
		c.Category = DefaultCategory
	}
}

// Validate returns the reason a candidate cannot be processed, or "" when it
// can. requireMedia is false for pricing-only runs.
func Validate(c model.Candidate, requireMedia bool) string {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return "missing name"
	case c.AmazonURL == "" && c.RetailPrice == nil:
		return "missing amazon_url"
	case len(c.AliExpressCandidates) == 0 && len(c.SearchTerms) == 0 && c.SupplierPrice == nil:
		return "missing aliexpress_candidates"
	case requireMedia && c.ReelURL == "" && c.AssetsDir == "":
		return "missing reel_url"
	}
	return ""
}
