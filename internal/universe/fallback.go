package universe

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sp100.yaml
var sp100YAML []byte

// Fallback is a pinned ticker list used when the live index lookup fails.
type Fallback struct {
	Index   string   `yaml:"index"`
	AsOf    string   `yaml:"as_of"`
	Symbols []string `yaml:"symbols"`
}

// ParseFallback decodes a fallback table. An empty symbol list or a blank
// symbol is rejected so a resolver can never fall back to nothing.
func ParseFallback(data []byte) (Fallback, error) {
	var fb Fallback
	if err := yaml.Unmarshal(data, &fb); err != nil {
		return Fallback{}, fmt.Errorf("failed to parse fallback table: %w", err)
	}
	if len(fb.Symbols) == 0 {
		return Fallback{}, fmt.Errorf("fallback table for %q has no symbols", fb.Index)
	}
	for i, s := range fb.Symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			return Fallback{}, fmt.Errorf("fallback table for %q has a blank symbol at position %d", fb.Index, i)
		}
		fb.Symbols[i] = s
	}
	fb.Symbols = dedupe(fb.Symbols)
	return fb, nil
}

// LoadFallback reads a fallback table from path.
func LoadFallback(path string) (Fallback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fallback{}, fmt.Errorf("failed to read fallback table: %w", err)
	}
	return ParseFallback(data)
}

// SP100 returns the compiled-in S&P 100 roster.
func SP100() Fallback {
	fb, err := ParseFallback(sp100YAML)
	if err != nil {
		// the embedded file is part of the binary; failing here is a build defect
		panic(err)
	}
	return fb
}
