package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ScrapePolicyConfig lists hosts the scraper must never render. An Allow entry
// re-admits a subdomain of a disallowed host.
type ScrapePolicyConfig struct {
	Allow    []string `mapstructure:"allow"`
	Disallow []string `mapstructure:"disallow"`
}

// Normalize lowercases hosts, strips schemes and www prefixes and removes duplicates.
func (c ScrapePolicyConfig) Normalize() ScrapePolicyConfig {
	return ScrapePolicyConfig{
		Allow:    sanitizeHostList(c.Allow),
		Disallow: sanitizeHostList(c.Disallow),
	}
}

// Validate rejects a host present in both lists.
func (c ScrapePolicyConfig) Validate() error {
	norm := c.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("scrape policy conflict: host %q present in both allow and disallow lists", host)
		}
	}
	return nil
}

// Blocks reports whether rawURL falls under a disallowed host. Matching is by
// suffix so disallowing example.com also covers news.example.com. The longest
// matching entry wins.
func (c ScrapePolicyConfig) Blocks(rawURL string) bool {
	host := NormalizeHost(rawURL)
	if host == "" {
		return false
	}
	deny := longestMatch(host, c.Disallow)
	if deny == 0 {
		return false
	}
	return longestMatch(host, c.Allow) <= deny
}

func longestMatch(host string, entries []string) int {
	best := 0
	for _, raw := range entries {
		entry := NormalizeHost(raw)
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			if len(entry) > best {
				best = len(entry)
			}
		}
	}
	return best
}

func sanitizeHostList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := NormalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

// NormalizeHost returns the lowercased host of value without port or www prefix.
// value may be a bare host or an absolute URL.
func NormalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return ""
		}
		value = u.Hostname()
	}
	return strings.TrimPrefix(value, "www.")
}
