// Package watchlist holds the durable monitoring configuration: which
// channels are watched and which keywords trigger or suppress alerts.
package watchlist

import "strings"

// Config is the persisted watch list. Keyword lists keep insertion order for
// display; tokens are stored uppercase and duplicate-free.
type Config struct {
	MonitoredChannels []int64  `json:"monitored_channels"`
	Keywords          []string `json:"keywords"`
	Excluded          []string `json:"excluded_keywords"`
}

// Default returns the empty watch list used when nothing is on disk.
func Default() *Config {
	return &Config{
		MonitoredChannels: []int64{},
		Keywords:          []string{},
		Excluded:          []string{},
	}
}

func (c *Config) Clone() *Config {
	cp := &Config{
		MonitoredChannels: append([]int64{}, c.MonitoredChannels...),
		Keywords:          append([]string{}, c.Keywords...),
		Excluded:          append([]string{}, c.Excluded...),
	}
	return cp
}

// Normalize uppercases a token for list membership checks.
func Normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func contains(list []string, token string) bool {
	for _, v := range list {
		if strings.EqualFold(v, token) {
			return true
		}
	}
	return false
}

func remove(list []string, token string) ([]string, bool) {
	for i, v := range list {
		if strings.EqualFold(v, token) {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}

// AddKeyword appends token to the keyword list if absent.
// Reports whether the list changed.
func (c *Config) AddKeyword(token string) bool {
	token = Normalize(token)
	if token == "" || contains(c.Keywords, token) {
		return false
	}
	c.Keywords = append(c.Keywords, token)
	return true
}

// RemoveKeyword removes token from the keyword list if present.
func (c *Config) RemoveKeyword(token string) bool {
	var ok bool
	c.Keywords, ok = remove(c.Keywords, Normalize(token))
	return ok
}

// AddExcluded appends token to the exclusion list if absent.
func (c *Config) AddExcluded(token string) bool {
	token = Normalize(token)
	if token == "" || contains(c.Excluded, token) {
		return false
	}
	c.Excluded = append(c.Excluded, token)
	return true
}

// RemoveExcluded removes token from the exclusion list if present.
func (c *Config) RemoveExcluded(token string) bool {
	var ok bool
	c.Excluded, ok = remove(c.Excluded, Normalize(token))
	return ok
}

// HasKeyword reports whether token is already on the keyword list.
func (c *Config) HasKeyword(token string) bool {
	return contains(c.Keywords, Normalize(token))
}

// HasExcluded reports whether token is already on the exclusion list.
func (c *Config) HasExcluded(token string) bool {
	return contains(c.Excluded, Normalize(token))
}
