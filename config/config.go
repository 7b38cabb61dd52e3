// Package config loads the bridge's YAML configuration: which repositories
// are served, how SVN-visible ref names map onto Git refs, default
// properties synthesized from path patterns, and server-wide timeouts.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"
)

const DefaultListenAddr = ":3690"
const DefaultTrackedRef = "refs/heads/main"

// RefMapping maps an SVN-visible top-level path (conventionally
// branches/<name> or tags/<name>) onto a Git ref prefix, so a single Git
// repository's branches/tags are exposed as SVN's trunk/branches/tags
// layout convention.
type RefMapping struct {
	Name   string `yaml:"name"`   // regex matched against the SVN path below the repository root
	Prefix string `yaml:"prefix"` // git ref name prefix substituted in, e.g. "refs/heads/"
}

// AutoProp assigns default SVN properties to newly-added paths matching a
// pattern, the way svn:auto-props does for paths that have no applicable
// .gitattributes rule.
type AutoProp struct {
	Pattern string            `yaml:"pattern"` // glob, "..." wildcards as in .gitattributes
	Props   map[string]string `yaml:"props"`
}

// RegexpAutoProp is an AutoProp with its pattern compiled.
type RegexpAutoProp struct {
	Props map[string]string
	Re    *regexp.Regexp
}

// RepositoryConfig describes one Git repository served as one SVN repository.
type RepositoryConfig struct {
	Name        string       `yaml:"name"`
	GitDir      string       `yaml:"git_dir"`
	TrackedRef  string       `yaml:"tracked_ref"`
	DatabaseDir string       `yaml:"database_dir"`
	RefMappings []RefMapping `yaml:"ref_mappings"`
}

// User is one CRAM-MD5 credential, checked against the digest a client
// presents during AuthChallenge.
type User struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

// ACLRule is one access grant, matched in declaration order; "*" for User
// or an empty PathPrefix widens the match.
type ACLRule struct {
	User       string `yaml:"user"`
	Repo       string `yaml:"repo"`
	PathPrefix string `yaml:"path_prefix"`
	Write      bool   `yaml:"write"`
}

// Config is the top-level server configuration.
type Config struct {
	ListenAddr                  string             `yaml:"listen_addr"`
	Realm                       string             `yaml:"realm"`
	Repositories                []RepositoryConfig `yaml:"repositories"`
	IdleTimeoutSeconds          int                `yaml:"idle_timeout_seconds"`
	EditorSessionTimeoutSeconds int                `yaml:"editor_session_timeout_seconds"`
	AnonymousRead               bool               `yaml:"anonymous_read"`
	AutoProps                   []AutoProp         `yaml:"auto_props"`
	ReAutoProps                 []RegexpAutoProp
	Users                       []User    `yaml:"users"`
	ACLRules                    []ACLRule `yaml:"acl_rules"`
}

// Unmarshal parses YAML bytes into a Config, applying defaults and validating.
func Unmarshal(config []byte) (*Config, error) {
	cfg := &Config{
		ListenAddr:                  DefaultListenAddr,
		IdleTimeoutSeconds:          60,
		EditorSessionTimeoutSeconds: 600,
		ReAutoProps:                 make([]RegexpAutoProp, 0),
	}
	if err := yaml.Unmarshal(config, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and validates a config file from disk.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString loads and validates config from an in-memory byte slice.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	if len(c.Repositories) == 0 {
		return fmt.Errorf("at least one repository must be configured")
	}
	seen := make(map[string]bool, len(c.Repositories))
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.Name == "" {
			return fmt.Errorf("repository at index %d missing 'name'", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate repository name %q", r.Name)
		}
		seen[r.Name] = true
		if r.GitDir == "" {
			return fmt.Errorf("repository %q missing 'git_dir'", r.Name)
		}
		if r.TrackedRef == "" {
			r.TrackedRef = DefaultTrackedRef
		}
		for _, m := range r.RefMappings {
			if _, err := regexp.Compile(m.Name); err != nil {
				return fmt.Errorf("repository %q: failed to parse ref mapping %q as a regex", r.Name, m.Name)
			}
		}
	}
	if len(c.AutoProps) > 0 {
		for _, ap := range c.AutoProps {
			if len(ap.Props) == 0 {
				return fmt.Errorf("auto_props entry %q has no properties", ap.Pattern)
			}
			reStr := globToRegexp(ap.Pattern)
			rePath, err := regexp.Compile(reStr)
			if err != nil {
				return fmt.Errorf("failed to parse '%s' as a regex", reStr)
			}
			c.ReAutoProps = append(c.ReAutoProps, RegexpAutoProp{Props: ap.Props, Re: rePath})
		}
	}
	return nil
}

// globToRegexp translates .gitattributes-style "..." and "*" wildcards
// into a regexp.
func globToRegexp(pattern string) string {
	const anyDepth = "\x00ANYDEPTH\x00"
	reStr := strings.ReplaceAll(pattern, "...", anyDepth)
	reStr = strings.ReplaceAll(reStr, ".", `\.`)
	reStr = strings.ReplaceAll(reStr, "*", "[^/]*")
	reStr = strings.ReplaceAll(reStr, anyDepth, ".*")
	return reStr + "$"
}
