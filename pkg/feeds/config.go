// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package feeds

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// KeyValue is one query or header parameter. Exactly one of Value and
// ValueSecret should normally be set; ValueSecret names an environment
// variable whose value is substituted at fetch time and never written to
// storage keys or payloads.
type KeyValue struct {
	Key         string `yaml:"key" json:"key"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	ValueSecret string `yaml:"valueSecret,omitempty" json:"valueSecret,omitempty"`
}

// Validate checks the value/valueSecret invariant.
func (kv KeyValue) Validate() error {
	if kv.Key == "" {
		return fmt.Errorf("key/value pair missing key")
	}
	if kv.Value == "" && kv.ValueSecret == "" {
		return fmt.Errorf("parameter %q needs a value or valueSecret", kv.Key)
	}
	return nil
}

// Secret reports whether the parameter's value comes from a secret.
func (kv KeyValue) Secret() bool { return kv.Value == "" && kv.ValueSecret != "" }

// Resolve returns the concrete value for the request, consulting lookup for
// secrets. A nil lookup falls back to os.Getenv.
func (kv KeyValue) Resolve(lookup func(string) string) string {
	if kv.Value != "" {
		return kv.Value
	}
	if lookup == nil {
		lookup = os.Getenv
	}
	return lookup(kv.ValueSecret)
}

// KeyValues declares a paginated parameter expansion: one fetch per value.
type KeyValues struct {
	Key    string   `yaml:"key" json:"key"`
	Values []string `yaml:"values" json:"values"`
}

// FeedConfig describes one HTTP feed to archive.
type FeedConfig struct {
	Name        string      `yaml:"name" json:"name"`
	URL         string      `yaml:"url" json:"url"`
	FeedType    FeedType    `yaml:"feed_type" json:"feed_type"`
	Agency      string      `yaml:"agency,omitempty" json:"agency,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	ScheduleURL string      `yaml:"schedule_url,omitempty" json:"schedule_url,omitempty"`
	Query       []KeyValue  `yaml:"query,omitempty" json:"query,omitempty"`
	Headers     []KeyValue  `yaml:"headers,omitempty" json:"headers,omitempty"`
	Pages       []KeyValues `yaml:"pages,omitempty" json:"pages,omitempty"`
}

// Validate checks the config against the model invariants.
func (c FeedConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("feed config missing name")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("feed %q: invalid url: %w", c.Name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed %q: url must be absolute http(s), got %q", c.Name, c.URL)
	}
	if _, err := ParseFeedType(string(c.FeedType)); err != nil {
		return fmt.Errorf("feed %q: %w", c.Name, err)
	}
	for _, kv := range append(append([]KeyValue{}, c.Query...), c.Headers...) {
		if err := kv.Validate(); err != nil {
			return fmt.Errorf("feed %q: %w", c.Name, err)
		}
	}
	for _, p := range c.Pages {
		if p.Key == "" || len(p.Values) == 0 {
			return fmt.Errorf("feed %q: pages entry needs a key and at least one value", c.Name)
		}
	}
	return nil
}

// Labels returns the metric label values shared by all fetch metrics.
func (c FeedConfig) Labels() map[string]string {
	return map[string]string{
		"name":      c.Name,
		"url":       c.URL,
		"feed_type": string(c.FeedType),
	}
}

// LoadConfigs reads and validates the feeds.yaml sequence at path. Unknown
// fields are rejected.
func LoadConfigs(path string) ([]FeedConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var configs []FeedConfig
	if err := dec.Decode(&configs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return configs, nil
}

// Fetch is one unit of work for the fetch worker: a config plus the page
// parameters for this request (nil when the feed is unpaginated).
type Fetch struct {
	Config FeedConfig
	Page   []KeyValue
}

// Expand produces the fetches for a config. Feeds without pages yield a
// single fetch. Exactly one paginated dimension is supported; a
// cross-product over several page keys is out of contract.
func Expand(c FeedConfig) ([]Fetch, error) {
	if len(c.Pages) == 0 {
		return []Fetch{{Config: c}}, nil
	}
	if len(c.Pages) != 1 {
		return nil, fmt.Errorf("feed %q: %d paginated keys, exactly one supported", c.Name, len(c.Pages))
	}
	page := c.Pages[0]
	fetches := make([]Fetch, 0, len(page.Values))
	for _, v := range page.Values {
		fetches = append(fetches, Fetch{
			Config: c,
			Page:   []KeyValue{{Key: page.Key, Value: v}},
		})
	}
	return fetches, nil
}

// FeedTypeSet collects the distinct feed types present in configs,
// preserving first-seen order.
func FeedTypeSet(configs []FeedConfig) []FeedType {
	seen := make(map[FeedType]bool)
	var out []FeedType
	for _, c := range configs {
		if !seen[c.FeedType] {
			seen[c.FeedType] = true
			out = append(out, c.FeedType)
		}
	}
	return out
}
