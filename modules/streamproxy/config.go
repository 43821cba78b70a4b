package streamproxy

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultAllowedDomain = "archive.org"

	// Timeouts apply to connection establishment and response headers only.
	// The body must be allowed to stream for as long as playback runs, so
	// the client itself carries no overall timeout.
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
)

type Config struct {
	AllowedDomain         string        `yaml:"allowed-domain,omitempty"` // upstream host (and subdomains) the proxy may fetch from
	DialTimeout           time.Duration `yaml:"dial-timeout,omitempty"`
	ResponseHeaderTimeout time.Duration `yaml:"response-header-timeout,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.AllowedDomain, util.PrefixConfig(prefix, "allowed-domain"), defaultAllowedDomain, "The only domain (including subdomains) the proxy will fetch from.")
	f.DurationVar(&cfg.DialTimeout, util.PrefixConfig(prefix, "dial-timeout"), defaultDialTimeout, "Timeout for establishing the upstream connection.")
	f.DurationVar(&cfg.ResponseHeaderTimeout, util.PrefixConfig(prefix, "response-header-timeout"), defaultResponseHeaderTimeout, "Timeout for receiving upstream response headers.")
}
