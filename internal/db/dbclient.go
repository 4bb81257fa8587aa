package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/godror/godror"
	_ "github.com/ibmdb/go_ibm_db"
	"github.com/juju/ratelimit"
)

const (
	DriverOracle = "oracle"
	DriverDB2    = "db2"
)

// Options configures the database client library.
type Options struct {
	Driver       string
	LibDir       string
	ConfigDir    string
	ConnectRate  float64
	ConnectBurst int64
}

// DBClient opens one standalone connection per target and reads the first
// row of a query. Credentials are never handled here: Oracle targets use
// external authentication through the wallet in ConfigDir (or TNS_ADMIN), DB2
// targets resolve through the client catalog.
type DBClient struct {
	driverName string
	dsn        func(target string) string
	bucket     *ratelimit.Bucket
}

// NewDBClient initializes the client library for opts.Driver.
func NewDBClient(opts Options) (*DBClient, error) {
	var client *DBClient
	switch strings.ToLower(opts.Driver) {
	case "", DriverOracle:
		for _, dir := range []string{opts.LibDir, opts.ConfigDir} {
			if dir == "" {
				continue
			}
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("oracle client directory: %v", err)
			}
		}
		client = newDBClient("godror", func(target string) string {
			return oracleDSN(target, opts.LibDir, opts.ConfigDir)
		})
		// Catches malformed lib/config dir parameters before any target is tried.
		if _, err := godror.ParseConnString(client.dsn("init")); err != nil {
			return nil, fmt.Errorf("parsing oracle connect string: %v", err)
		}
	case DriverDB2:
		client = newDBClient("go_ibm_db", db2DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	if !driverRegistered(client.driverName) {
		return nil, fmt.Errorf("database driver %s is not registered", client.driverName)
	}
	if opts.ConnectRate > 0 {
		burst := opts.ConnectBurst
		if burst < 1 {
			burst = 1
		}
		client.bucket = ratelimit.NewBucketWithRate(opts.ConnectRate, burst)
	}
	return client, nil
}

func newDBClient(driverName string, dsn func(string) string) *DBClient {
	return &DBClient{driverName: driverName, dsn: dsn}
}

// FetchFirst connects to target, runs query and reads the first column of
// the first row. The connection and the result set are always released.
func (c *DBClient) FetchFirst(ctx context.Context, target, query string) (types.ExpiryRow, error) {
	var row types.ExpiryRow

	if c.bucket != nil {
		c.bucket.Wait(1)
	}

	conn, err := sql.Open(c.driverName, c.dsn(target))
	if err != nil {
		return row, fmt.Errorf("opening connection: %v", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		return row, fmt.Errorf("connecting: %v", err)
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return row, fmt.Errorf("executing query: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return row, fmt.Errorf("fetching row: %v", err)
		}
		return row, nil
	}

	columns, err := rows.Columns()
	if err != nil {
		return row, fmt.Errorf("reading columns: %v", err)
	}
	first, values, err := scanDestinations(len(columns))
	if err != nil {
		return row, err
	}
	if err := rows.Scan(values...); err != nil {
		return row, fmt.Errorf("scanning row: %v", err)
	}

	row.Present = true
	row.Valid = first.Valid
	row.Days = first.Float64
	return row, nil
}

// scanDestinations returns Scan targets for a row of n columns: the first one
// into a nullable float, the rest discarded.
func scanDestinations(n int) (*sql.NullFloat64, []interface{}, error) {
	if n == 0 {
		return nil, nil, fmt.Errorf("query returned no columns")
	}
	first := new(sql.NullFloat64)
	values := make([]interface{}, n)
	values[0] = first
	for i := 1; i < n; i++ {
		values[i] = new(interface{})
	}
	return first, values, nil
}

func oracleDSN(target, libDir, configDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "connectString=%q externalAuth=1 standaloneConnection=1", target)
	if libDir != "" {
		fmt.Fprintf(&b, " libDir=%q", libDir)
	}
	if configDir != "" {
		fmt.Fprintf(&b, " configDir=%q", configDir)
	}
	return b.String()
}

func db2DSN(target string) string {
	return "DSN=" + target + ";"
}

func driverRegistered(name string) bool {
	for _, d := range sql.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}
