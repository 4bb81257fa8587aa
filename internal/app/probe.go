package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/sirupsen/logrus"
)

// Thresholds in days. Anything below ExpiredBelow is expired, anything below
// ExpiringSoonBelow is expiring soon, the rest is nominal.
const (
	ExpiredBelow      = 0
	ExpiringSoonBelow = 5
)

const (
	ReasonNoRows    = "no rows"
	ReasonNullValue = "null value"
	ReasonNaN       = "not a number"
)

// Fetcher runs query against target and reports the first column of the
// first row. *db.DBClient implements it.
type Fetcher interface {
	FetchFirst(ctx context.Context, target, query string) (types.ExpiryRow, error)
}

// Classify maps days until expiry onto a status. It works on the raw value:
// floor(d) < n iff d < n for integer n, and huge or infinite values must not
// wrap when converted to int.
func Classify(days float64) types.Status {
	switch {
	case days < ExpiredBelow:
		return types.StatusExpired
	case days < ExpiringSoonBelow:
		return types.StatusExpiringSoon
	default:
		return types.StatusNominal
	}
}

// Evaluate turns a fetched row into an outcome for target.
func Evaluate(target types.Target, row types.ExpiryRow) types.Outcome {
	out := types.Outcome{Target: target}
	switch {
	case !row.Present:
		out.Status = types.StatusIndeterminate
		out.Reason = ReasonNoRows
	case !row.Valid:
		out.Status = types.StatusIndeterminate
		out.Reason = ReasonNullValue
	case math.IsNaN(row.Days):
		out.Status = types.StatusIndeterminate
		out.Reason = ReasonNaN
	default:
		out.Status = Classify(row.Days)
		out.Days = clampDays(row.Days)
	}
	return out
}

func clampDays(d float64) int {
	d = math.Floor(d)
	switch {
	case d >= float64(math.MaxInt):
		return math.MaxInt
	case d <= float64(math.MinInt):
		return math.MinInt
	default:
		return int(d)
	}
}

// Prober checks a single target. Probe never panics and never returns an
// error: every failure becomes a StatusFailed outcome and a log line.
type Prober struct {
	client  Fetcher
	logger  logrus.FieldLogger
	timeout time.Duration
}

func NewProber(client Fetcher, logger logrus.FieldLogger, timeout time.Duration) *Prober {
	return &Prober{client: client, logger: logger, timeout: timeout}
}

func (p *Prober) Probe(ctx context.Context, target types.Target, query string) (out types.Outcome) {
	logger := p.logger.WithField("db", string(target))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = types.Outcome{
				Target: target,
				Status: types.StatusFailed,
				Err:    fmt.Errorf("unexpected error: %v", r),
			}
			logger.WithField("status", out.Status).Errorf("%s: An unexpected error occurred: %v", target, r)
		}
		out.Elapsed = time.Since(start)
	}()

	logger.Debugf("Checking database: %s...", target)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	row, err := p.client.FetchFirst(ctx, string(target), query)
	if err != nil {
		out = types.Outcome{Target: target, Status: types.StatusFailed, Err: err}
		logger.WithField("status", out.Status).Errorf("Failed to connect or query %s: %v", target, err)
		return out
	}

	out = Evaluate(target, row)
	logger = logger.WithField("status", out.Status)
	switch out.Status {
	case types.StatusIndeterminate:
		switch out.Reason {
		case ReasonNullValue:
			logger.Warnf("%s: Could not determine expiry days (NULL returned).", target)
		case ReasonNaN:
			logger.Warnf("%s: Could not determine expiry days (NaN returned).", target)
		default:
			logger.Infof("%s: No rows returned from query.", target)
		}
	case types.StatusExpired:
		logger.WithField("expiry_days", out.Days).Errorf("%s: User is EXPIRED! (Expiry days: %d)", target, out.Days)
	case types.StatusExpiringSoon:
		logger.WithField("expiry_days", out.Days).Warnf("%s: User is expiring soon! (Expiry days: %d)", target, out.Days)
	default:
		logger.WithField("expiry_days", out.Days).Infof("%s: Account status nominal. (Expiry days: %d)", target, out.Days)
	}
	return out
}
