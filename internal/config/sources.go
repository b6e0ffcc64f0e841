package config

import (
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// SourcesSection is the INI section holding source label switches
const SourcesSection = "sources"

// LoadSourceFilter reads a source label filter from an INI file:
//
//	[sources]
//	pcap  = true
//	nmap  = false
//
// Labels are case-insensitive and stored lower case.
func LoadSourceFilter(path string) (map[string]bool, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read source filter: %w", err)
	}

	filter := make(map[string]bool)
	for _, key := range cfg.Section(SourcesSection).Keys() {
		enabled, err := key.Bool()
		if err != nil {
			return nil, fmt.Errorf("source filter %s: %q is not a boolean", key.Name(), key.String())
		}
		filter[key.Name()] = enabled
	}
	return filter, nil
}

// SaveSourceFilter writes the current label filter, labels in sorted order
func SaveSourceFilter(path string, filter map[string]bool) error {
	labels := make([]string, 0, len(filter))
	for l := range filter {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	cfg := ini.Empty()
	section, err := cfg.NewSection(SourcesSection)
	if err != nil {
		return err
	}
	for _, l := range labels {
		if _, err := section.NewKey(l, fmt.Sprintf("%t", filter[l])); err != nil {
			return fmt.Errorf("source filter %s: %w", l, err)
		}
	}

	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return cfg.SaveTo(path)
}
