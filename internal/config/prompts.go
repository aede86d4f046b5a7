package config

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts maps a template version to its system prompt text.
type Prompts map[string]string

// LoadPrompts parses the embedded templates.
func LoadPrompts() (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(promptsYAML, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	return p, nil
}

// Template returns the template for version.
func (p Prompts) Template(version string) (string, error) {
	tpl, ok := p[version]
	if !ok || tpl == "" {
		return "", fmt.Errorf("%w: unknown prompt version %q (have %v)", framework.ErrConfiguration, version, p.Versions())
	}
	return tpl, nil
}

// Versions lists the available versions in sorted order.
func (p Prompts) Versions() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
