package poe

import (
	"fmt"
	"os"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BotManifestEntry declares one bot a poeserver process hosts (C9 expansion:
// SPEC_FULL.md's bots.yaml).
type BotManifestEntry struct {
	Name      string            `yaml:"name"`
	Path      string            `yaml:"path"`
	AccessKey string            `yaml:"access_key"`
	Settings  map[string]any    `yaml:"settings,omitempty"`
}

// BotManifest is the top-level shape of bots.yaml.
type BotManifest struct {
	Bots []BotManifestEntry `yaml:"bots"`
}

// LoadManifest parses a multi-bot manifest file from path.
func LoadManifest(path string) (BotManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BotManifest{}, perrors.NewInvalidParameter("failed to read manifest: " + err.Error())
	}
	var m BotManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return BotManifest{}, perrors.NewInvalidParameter("failed to parse manifest: " + err.Error())
	}
	for i := range m.Bots {
		key, err := resolveAccessKey(m.Bots[i].AccessKey, "")
		if err != nil {
			// No access key resolves from any source: this bot is hosted
			// unauthenticated (host.go skips auth when AccessKey is empty).
			continue
		}
		if len(key) != AccessKeyLength {
			return BotManifest{}, perrors.NewInvalidParameter(fmt.Sprintf(
				"bot %q has an invalid access key length: must be %d characters, got %d",
				m.Bots[i].Name, AccessKeyLength, len(key)))
		}
		m.Bots[i].AccessKey = key
	}
	return m, nil
}

// Diff reports which bot names in other have different Settings than in m,
// by name. Bots present in one manifest but not the other are reported as
// changed (added/removed).
func (m BotManifest) Diff(other BotManifest) []string {
	byName := make(map[string]BotManifestEntry, len(m.Bots))
	for _, b := range m.Bots {
		byName[b.Name] = b
	}
	otherByName := make(map[string]BotManifestEntry, len(other.Bots))
	for _, b := range other.Bots {
		otherByName[b.Name] = b
	}

	var changed []string
	for name, b := range otherByName {
		prev, ok := byName[name]
		if !ok || !settingsEqual(prev.Settings, b.Settings) {
			changed = append(changed, name)
		}
	}
	for name := range byName {
		if _, ok := otherByName[name]; !ok {
			changed = append(changed, name)
		}
	}
	return changed
}

func settingsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
