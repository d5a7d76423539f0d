// Copyright 2025 Tetrate
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/run"
	"gopkg.in/yaml.v3"
)

var (
	_ run.Config = (*LocalConfigFile)(nil)

	ErrInvalidPath          = errors.New("invalid path")
	ErrInvalidUpstream      = errors.New("invalid upstream")
	ErrInvalidTarget        = errors.New("invalid authorization service target")
	ErrInvalidRoutePrefix   = errors.New("invalid route prefix")
	ErrDuplicateRoutePrefix = errors.New("duplicate route prefix")
)

// Config is the application configuration.
type Config struct {
	// Upstream is the URL requests are forwarded to when allowed.
	Upstream string `yaml:"upstream"`
	// ExtAuthz configures the external authorization filter.
	ExtAuthz ExtAuthzConfig `yaml:"ext_authz"`
	// VirtualHost is the overlay applied to every route.
	VirtualHost *OverlayConfig `yaml:"virtual_host"`
	// Routes are prefix-matched in order; the first match wins.
	Routes []RouteConfig `yaml:"routes"`
}

// ExtAuthzConfig are the filter settings and the authorization service
// connection parameters.
type ExtAuthzConfig struct {
	// Cluster names the authorization service in stats. Defaults to the
	// target when empty.
	Cluster string `yaml:"cluster"`
	// Target is the gRPC address of the authorization service.
	Target string `yaml:"target"`
	// Timeout for a single check call.
	Timeout time.Duration `yaml:"timeout"`
	// TrustedCertificateAuthorityFile holds the CA bundle used to verify
	// the service certificate. Empty means plaintext.
	TrustedCertificateAuthorityFile string `yaml:"trusted_certificate_authority_file"`

	FailureModeAllow            bool              `yaml:"failure_mode_allow"`
	AllowedRequestHeaders       []string          `yaml:"allowed_request_headers"`
	AllowedAuthorizationHeaders []string          `yaml:"allowed_authorization_headers"`
	ContextExtensions           map[string]string `yaml:"context_extensions"`
}

// OverlayConfig is a per-scope filter overlay.
type OverlayConfig struct {
	Disabled          *bool             `yaml:"disabled"`
	ContextExtensions map[string]string `yaml:"context_extensions"`
}

// RouteConfig is a prefix-matched route with an optional filter overlay.
type RouteConfig struct {
	Prefix        string `yaml:"prefix"`
	OverlayConfig `yaml:",inline"`
}

// LocalConfigFile is a run.Config that loads the configuration file.
type LocalConfigFile struct {
	path string
	// Config is the loaded configuration.
	Config Config
}

// Name returns the name of the unit in the run.Group.
func (l *LocalConfigFile) Name() string { return "Local configuration file" }

// FlagSet returns the flags used to customize the config file location.
func (l *LocalConfigFile) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("Local Config File flags")
	flags.StringVar(&l.path, "config-path", "/etc/authfilter/config.yaml", "configuration file path")
	return flags
}

// Validate and load the configuration file.
func (l *LocalConfigFile) Validate() error {
	if l.path == "" {
		return ErrInvalidPath
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}

	if err = yaml.Unmarshal(content, &l.Config); err != nil {
		return err
	}

	return l.Config.Validate()
}

// Validate the configuration values and apply defaults.
func (c *Config) Validate() error {
	if c.Upstream == "" {
		return fmt.Errorf("%w: upstream must be set", ErrInvalidUpstream)
	}
	if u, err := url.Parse(c.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidUpstream, c.Upstream)
	}

	if c.ExtAuthz.Target == "" {
		return fmt.Errorf("%w: target must be set", ErrInvalidTarget)
	}
	if c.ExtAuthz.Cluster == "" {
		c.ExtAuthz.Cluster = c.ExtAuthz.Target
	}

	seen := make(map[string]bool, len(c.Routes))
	for _, r := range c.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("%w: %q must start with /", ErrInvalidRoutePrefix, r.Prefix)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("%w: %q", ErrDuplicateRoutePrefix, r.Prefix)
		}
		seen[r.Prefix] = true
	}

	return nil
}
