// Package config loads the flat stage-settings document (spec §4.L)
// and watches it for changes, pushing every (stage, name, value) triple
// into an internal/settings.Store and republishing a single Changed
// event per edit once the new store has fully replaced the old one.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"logcore/internal/settings"
	"logcore/pkg/errors"
)

// Document is the on-disk shape: one map of raw string settings per
// stage name. The loader has no notion of a setting's type — only the
// stage that later calls Store.Register on the same (stage, name) does
// — so every value round-trips as a string until a converter claims it.
type Document struct {
	Stages map[string]map[string]string `yaml:"stages"`
}

// Parse decodes raw YAML bytes into a Document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.ConfigError("parsing configuration document").WithCause(err)
	}
	return doc, nil
}

// Load reads path and parses it into a Document.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, errors.ConfigError("reading configuration file").WithIdentifier(path).WithCause(err)
	}
	return Parse(data)
}

// ApplyTo pushes every (stage, name, value) triple in the document into
// store via Store.Set. The first error aborts the remaining applies;
// entries applied before it stay applied, so callers that need
// all-or-nothing application should apply to a fresh store and only
// retarget on success.
func (d Document) ApplyTo(store *settings.Store) error {
	for stage, entries := range d.Stages {
		for name, raw := range entries {
			if err := store.Set(stage, name, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewStore builds a fresh settings.Store populated from the document.
func (d Document) NewStore() (*settings.Store, error) {
	store := settings.NewStore()
	if err := d.ApplyTo(store); err != nil {
		return nil, err
	}
	return store, nil
}
