package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/barryq93/dbexpiry/internal/db"
	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const expiryQuery = "SELECT TRUNC(expiry_date - SYSDATE) FROM user_users"

func newTestApplication(t *testing.T, dblist, sql string, client Fetcher) (*Application, *logtest.Hook) {
	t.Helper()
	dir := t.TempDir()
	settings := DefaultSettings(dir)
	if dblist != "" {
		writeFile(t, dir, DefaultDBList, dblist)
	}
	if sql != "" {
		writeFile(t, dir, DefaultSQLFile, sql)
	}

	logger, hook := logtest.NewNullLogger()
	application := NewApplication(settings, logger)
	application.newClient = func(db.Options) (Fetcher, error) { return client, nil }
	return application, hook
}

func TestRun(t *testing.T) {
	client := new(MockDBClient)
	client.On("FetchFirst", mock.Anything, "ORCL1", expiryQuery).Return(days(-2), nil).Once()
	client.On("FetchFirst", mock.Anything, "ORCL2", expiryQuery).Return(days(3), nil).Once()
	client.On("FetchFirst", mock.Anything, "ORCL3", expiryQuery).Return(days(90), nil).Once()
	client.On("FetchFirst", mock.Anything, "ORCL4", expiryQuery).Return(types.ExpiryRow{Present: true}, nil).Once()
	client.On("FetchFirst", mock.Anything, "ORCL5", expiryQuery).Return(types.ExpiryRow{}, errors.New("ORA-12541: TNS:no listener")).Once()

	application, hook := newTestApplication(t, "# fleet\nORCL1\nORCL2\n\nORCL3\nORCL4\nORCL5\n", expiryQuery, client)

	summary, err := application.Run(context.Background())
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.Equal(t, 5, summary.Total())
	assert.Equal(t, 1, summary[types.StatusExpired])
	assert.Equal(t, 1, summary[types.StatusExpiringSoon])
	assert.Equal(t, 1, summary[types.StatusNominal])
	assert.Equal(t, 1, summary[types.StatusIndeterminate])
	assert.Equal(t, 1, summary[types.StatusFailed])

	entries := hook.AllEntries()
	require.Len(t, entries, 7)
	assert.Equal(t, "Starting expiry check for 5 databases with 5 workers...", entries[0].Message)
	last := hook.LastEntry()
	assert.Equal(t, "Expiry check completed.", last.Message)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, 5, last.Data["total"])
	assert.Equal(t, 1, last.Data["failed"])
}

func TestRunSetupErrors(t *testing.T) {
	tests := []struct {
		name   string
		dblist string
		sql    string
		want   error
	}{
		{"MissingDBList", "", expiryQuery, ErrTargetList},
		{"EmptyDBList", "\n\n", expiryQuery, ErrNoTargets},
		{"AllComments", "# ORCL1\n  # ORCL2\n", expiryQuery, ErrNoTargets},
		{"MissingSQL", "ORCL1\n", "", ErrQueryFile},
		{"BlankSQL", "ORCL1\n", "  \n\t\n", ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockDBClient)
			application, hook := newTestApplication(t, tt.dblist, tt.sql, client)

			_, err := application.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			client.AssertNotCalled(t, "FetchFirst", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, hook.AllEntries())
		})
	}
}

func TestRunClientInitFailure(t *testing.T) {
	client := new(MockDBClient)
	application, _ := newTestApplication(t, "ORCL1\n", expiryQuery, client)
	application.newClient = func(db.Options) (Fetcher, error) {
		return nil, errors.New("DPI-1047: Cannot locate a 64-bit Oracle Client library")
	}

	_, err := application.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientInit)
	assert.Contains(t, err.Error(), "DPI-1047")
	client.AssertNotCalled(t, "FetchFirst", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunPassesClientOptions(t *testing.T) {
	client := new(MockDBClient)
	client.On("FetchFirst", mock.Anything, "DB2A", expiryQuery).Return(days(40), nil)
	application, _ := newTestApplication(t, "DB2A\n", expiryQuery, client)
	application.settings.Driver = "DB2"
	application.settings.ConnectRate = 4
	application.settings.ConnectBurst = 2

	var got db.Options
	application.newClient = func(opts db.Options) (Fetcher, error) {
		got = opts
		return client, nil
	}

	_, err := application.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.Options{Driver: db.DriverDB2, ConnectRate: 4, ConnectBurst: 2}, got)
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	client := new(MockDBClient)
	application, _ := newTestApplication(t, "ORCL1\n", expiryQuery, client)
	application.settings.Workers = 0

	_, err := application.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be positive")
}

func TestRunWritesMetricsFile(t *testing.T) {
	client := new(MockDBClient)
	client.On("FetchFirst", mock.Anything, "ORCL1", expiryQuery).Return(days(2), nil)
	application, _ := newTestApplication(t, "ORCL1\n", expiryQuery, client)
	application.settings.MetricsFile = filepath.Join(t.TempDir(), "dbexpiry.prom")

	_, err := application.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(application.settings.MetricsFile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `db_expiry_days{db="ORCL1"} 2`)
	assert.Contains(t, text, `db_expiry_probes_total{status="expiring_soon"} 1`)
	assert.True(t, strings.Contains(text, "db_expiry_last_run_timestamp_seconds"))
}

func TestRunForgetsRemovedDatabases(t *testing.T) {
	client := new(MockDBClient)
	client.On("FetchFirst", mock.Anything, "ORCL1", expiryQuery).Return(days(30), nil)
	client.On("FetchFirst", mock.Anything, "ORCL2", expiryQuery).Return(days(-1), nil)
	application, _ := newTestApplication(t, "ORCL1\nORCL2\n", expiryQuery, client)
	application.settings.MetricsFile = filepath.Join(t.TempDir(), "dbexpiry.prom")

	_, err := application.Run(context.Background())
	require.NoError(t, err)
	data, err := os.ReadFile(application.settings.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `db_expiry_days{db="ORCL2"} -1`)

	require.NoError(t, os.WriteFile(application.settings.DBList, []byte("ORCL1\n"), 0644))
	_, err = application.Run(context.Background())
	require.NoError(t, err)

	data, err = os.ReadFile(application.settings.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `db_expiry_days{db="ORCL1"} 30`)
	assert.NotContains(t, string(data), `db="ORCL2"`)
}
