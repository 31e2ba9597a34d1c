package plugin

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Manifest is the declarative half of a plugin spec: metadata and config,
// as embedders typically declare them in YAML. The behavior and state
// field are always wired in code.
//
//	metadata:
//	  name: word-count
//	  version: 1.2.0
//	  dependencies: [document-index]
//	config:
//	  enabled: true
//	  priority: 10
type Manifest struct {
	Metadata Metadata `json:"metadata" yaml:"metadata" mapstructure:"metadata"`
	Config   Config   `json:"config" yaml:"config" mapstructure:"config"`
}

// Spec builds a registrable spec from the manifest plus code-side hooks.
func (m *Manifest) Spec(state StateField, behavior Behavior) *Spec {
	return &Spec{
		Metadata: m.Metadata,
		Config:   m.Config,
		State:    state,
		Behavior: behavior,
	}
}

// ParseManifest decodes a YAML plugin manifest. A manifest that omits
// config.enabled defaults to enabled.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}

	manifest := &Manifest{Config: DefaultConfig()}
	if err := mapstructure.Decode(raw, manifest); err != nil {
		return nil, fmt.Errorf("decode plugin manifest: %w", err)
	}
	if manifest.Metadata.Name == "" {
		return nil, errors.New("plugin manifest: metadata.name is required")
	}
	return manifest, nil
}
