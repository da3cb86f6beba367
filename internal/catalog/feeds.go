package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed feeds.yaml
var embeddedFeeds []byte

// OSFilterAll selects one feed per known system.
const OSFilterAll = "all"

// System describes one macOS release line in the feed definitions.
type System struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version Scalar `yaml:"version"`
	Index   Scalar `yaml:"index"`
}

// Scalar accepts YAML values written either as strings or bare numbers.
type Scalar string

func (s *Scalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar, got yaml kind %d", value.Kind)
	}
	*s = Scalar(value.Value)
	return nil
}

// FeedSet holds the parsed feed definitions and builds catalog URLs from a
// seed program and OS filter selection.
type FeedSet struct {
	Base       string            `yaml:"base"`
	Seeds      map[string]string `yaml:"seeds"`
	Systems    []System          `yaml:"systems"`
	LegacyTail []Scalar          `yaml:"legacy_tail"`
}

// LoadFeedSet parses the embedded feed definitions.
func LoadFeedSet() (*FeedSet, error) {
	return ParseFeedSet(embeddedFeeds)
}

// ParseFeedSet parses feed definitions from YAML.
func ParseFeedSet(data []byte) (*FeedSet, error) {
	fs := &FeedSet{}
	if err := yaml.Unmarshal(data, fs); err != nil {
		return nil, fmt.Errorf("failed to parse feed definitions: %w", err)
	}
	if fs.Base == "" {
		return nil, fmt.Errorf("feed definitions missing base URL")
	}
	if len(fs.Systems) == 0 {
		return nil, fmt.Errorf("feed definitions list no systems")
	}
	return fs, nil
}

// ValidOSFilter reports whether filter names a known system or "all".
func (fs *FeedSet) ValidOSFilter(filter string) bool {
	if filter == OSFilterAll {
		return true
	}
	for _, sys := range fs.Systems {
		if sys.ID == filter {
			return true
		}
	}
	return false
}

// URLs returns the catalog feed URLs for the given seed program and OS
// filter. With filter "all" there is one feed per system; otherwise a
// single feed for the selected system.
func (fs *FeedSet) URLs(seedProgram, osFilter string) ([]string, error) {
	suffix, ok := fs.Seeds[seedProgram]
	if !ok {
		return nil, fmt.Errorf("unknown seed program %q", seedProgram)
	}
	if !fs.ValidOSFilter(osFilter) {
		return nil, fmt.Errorf("unknown OS filter %q", osFilter)
	}

	var urls []string
	for i, sys := range fs.Systems {
		if osFilter != OSFilterAll && sys.ID != osFilter {
			continue
		}
		urls = append(urls, fs.feedURL(i, suffix))
	}
	return urls, nil
}

// feedURL builds the catalog URL for the system at position i. The index
// chain covers the system itself, every older system, and the legacy tail;
// a non-empty seed suffix prepends a seeded index component.
func (fs *FeedSet) feedURL(i int, suffix string) string {
	var parts []string
	if suffix != "" {
		parts = append(parts, string(fs.Systems[i].Index)+suffix)
	}
	for _, sys := range fs.Systems[i:] {
		parts = append(parts, string(sys.Index))
	}
	for _, tail := range fs.LegacyTail {
		parts = append(parts, string(tail))
	}
	return fmt.Sprintf("%s/index-%s.merged-1.sucatalog", fs.Base, strings.Join(parts, "-"))
}

// OSNameForVersion maps a product version like "15.5" to the matching
// system display name, or "" when the major version is unknown.
func (fs *FeedSet) OSNameForVersion(productVersion string) string {
	major, _, _ := strings.Cut(productVersion, ".")
	for _, sys := range fs.Systems {
		if string(sys.Version) == major {
			return sys.Name
		}
	}
	return ""
}
