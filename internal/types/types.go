package types

import (
	"fmt"
	"time"
)

// Target is a database alias resolved through the external credential store.
type Target string

// Status is the classification of a single probe.
type Status string

const (
	StatusExpired       Status = "expired"
	StatusExpiringSoon  Status = "expiring_soon"
	StatusNominal       Status = "nominal"
	StatusIndeterminate Status = "indeterminate"
	StatusFailed        Status = "failed"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusExpired, StatusExpiringSoon, StatusNominal, StatusIndeterminate, StatusFailed}

// ExpiryRow is what the connect/execute/fetch step produced for one target.
type ExpiryRow struct {
	Present bool
	Valid   bool
	Days    float64
}

// Outcome is the result of probing one target.
type Outcome struct {
	Target  Target
	Status  Status
	Days    int
	Reason  string
	Err     error
	Elapsed time.Duration
}

// Summary holds per-status counts for a batch.
type Summary map[Status]int

// Total returns the number of probes counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

func (s Summary) String() string {
	return fmt.Sprintf("expired=%d expiring_soon=%d nominal=%d indeterminate=%d failed=%d",
		s[StatusExpired], s[StatusExpiringSoon], s[StatusNominal], s[StatusIndeterminate], s[StatusFailed])
}

// Settings represents the runtime configuration, loaded from YAML and flags.
type Settings struct {
	DBList       string  `yaml:"dblist"`
	SQLFile      string  `yaml:"sql"`
	Workers      int     `yaml:"workers"`
	LogLevel     string  `yaml:"log_level"`
	LogFormat    string  `yaml:"log_format"`
	Driver       string  `yaml:"driver"`
	LibDir       string  `yaml:"lib_dir,omitempty"`
	ConfigDir    string  `yaml:"config_dir,omitempty"`
	Timeout      int     `yaml:"timeout,omitempty"`
	ConnectRate  float64 `yaml:"connect_rate,omitempty"`
	ConnectBurst int64   `yaml:"connect_burst,omitempty"`
	MetricsFile  string  `yaml:"metrics_file,omitempty"`
	Watch        bool    `yaml:"watch,omitempty"`
}
