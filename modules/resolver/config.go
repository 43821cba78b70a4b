package resolver

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/archivestream/pkg/archive"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4

	// defaultLimit applies when the caller omits the limit parameter or
	// sends something unusable; maxLimit caps what a caller may request.
	defaultLimit = 10
	maxLimit     = 25

	// maxRows caps speculative over-fetch from the search index. Not every
	// candidate yields a playable file, so we ask for 2x the limit up to
	// this ceiling.
	maxRows = 50
)

type Config struct {
	ArchiveURL  string        `yaml:"archive-url,omitempty"`
	UserAgent   string        `yaml:"user-agent,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`     // per-request deadline for all upstream calls
	Concurrency int           `yaml:"concurrency,omitempty"` // parallel metadata fetches per search
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ArchiveURL, util.PrefixConfig(prefix, "archive-url"), archive.DefaultBaseURL, "Base URL of the archive API.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), "archivestream", "User-Agent sent on upstream requests.")
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultTimeout, "Deadline for a search request, covering the index call and all metadata fetches.")
	f.IntVar(&cfg.Concurrency, util.PrefixConfig(prefix, "concurrency"), defaultConcurrency, "Number of per-item metadata fetches to run in parallel.")
}
