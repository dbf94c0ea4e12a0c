package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Keying selects how a request is mapped to a counter key.
type Keying string

const (
	// KeyByIP buckets requests by client IP.
	KeyByIP Keying = "ip"
	// KeyByIPEmail buckets requests by (client IP, submitted email), used by
	// the authentication policies so one IP cannot burn another user's quota.
	KeyByIPEmail Keying = "ip_email"
)

// Well-known policy names.
const (
	PolicyAPI           = "api"
	PolicyAuth          = "auth"
	PolicyPasswordReset = "password-reset"
	PolicyOTP           = "otp"
)

// Policy is one named rate-limit configuration.
type Policy struct {
	Name   string        `yaml:"name"`
	Limit  int64         `yaml:"limit"`
	Window time.Duration `yaml:"window"`
	Keying Keying        `yaml:"keying"`
	// SkipSuccessful stops successful requests from counting against the
	// limit: the handler confirms success and the counter is rolled back.
	SkipSuccessful bool `yaml:"skip_successful"`
}

// UnmarshalYAML accepts Go duration strings ("15m", "1h") for the window.
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name           string `yaml:"name"`
		Limit          int64  `yaml:"limit"`
		Window         string `yaml:"window"`
		Keying         Keying `yaml:"keying"`
		SkipSuccessful bool   `yaml:"skip_successful"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.Name = raw.Name
	p.Limit = raw.Limit
	p.Keying = raw.Keying
	p.SkipSuccessful = raw.SkipSuccessful
	if raw.Window != "" {
		d, err := time.ParseDuration(raw.Window)
		if err != nil {
			return fmt.Errorf("ratelimit: policy %q: bad window %q: %w", raw.Name, raw.Window, err)
		}
		p.Window = d
	}
	return nil
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("ratelimit: policy name is required")
	}
	if p.Limit <= 0 {
		return fmt.Errorf("ratelimit: policy %q: limit must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("ratelimit: policy %q: window must be positive", p.Name)
	}
	switch p.Keying {
	case KeyByIP, KeyByIPEmail:
	default:
		return fmt.Errorf("ratelimit: policy %q: unknown keying %q", p.Name, p.Keying)
	}
	return nil
}

// DefaultPolicies returns the built-in policy set.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyAPI: {
			Name:   PolicyAPI,
			Limit:  100,
			Window: 15 * time.Minute,
			Keying: KeyByIP,
		},
		PolicyAuth: {
			Name:           PolicyAuth,
			Limit:          5,
			Window:         15 * time.Minute,
			Keying:         KeyByIPEmail,
			SkipSuccessful: true,
		},
		PolicyPasswordReset: {
			Name:   PolicyPasswordReset,
			Limit:  3,
			Window: time.Hour,
			Keying: KeyByIPEmail,
		},
		PolicyOTP: {
			Name:   PolicyOTP,
			Limit:  5,
			Window: 10 * time.Minute,
			Keying: KeyByIP,
		},
	}
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadPolicies reads policy overrides from a YAML file and merges them over
// the defaults. Policies absent from the file keep their default settings.
func LoadPolicies(path string) (map[string]Policy, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: read policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ratelimit: parse policy file: %w", err)
	}

	for _, p := range file.Policies {
		if p.Keying == "" {
			if existing, ok := policies[p.Name]; ok {
				p.Keying = existing.Keying
			} else {
				p.Keying = KeyByIP
			}
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		policies[p.Name] = p
	}
	return policies, nil
}
