package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/qerrors"
)

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("SEMLAYER_TEST_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "semlayer.yaml")
	content := `datasets_dir: data
connections:
  warehouse:
    host: db.local
    port: 5432
    user: analyst
    password: ${SEMLAYER_TEST_PASSWORD}
    database: dwh
audit:
  enabled: true
  level: full
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "data", config.DatasetsDir)
	require.Equal(t, "exports/charts", config.ChartsDir, "defaults must survive a partial file")
	require.Equal(t, "s3cret", config.Connections["warehouse"].Password)
	require.Equal(t, 5432, config.Connections["warehouse"].Port)
	require.Equal(t, "full", config.Audit.Level)
}

func TestSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semlayer.yaml")
	require.NoError(t, SaveConfig(path, CreateSampleConfig("mysql")))

	t.Setenv("MYSQL_PASSWORD", "pw")
	config, err := LoadConfig(path)
	require.NoError(t, err)

	conn, ok := config.Connections["main"]
	require.True(t, ok)
	require.Equal(t, 3306, conn.Port)
	require.Equal(t, "pw", conn.Password)
	require.True(t, config.Audit.Enabled)

	require.Empty(t, CreateSampleConfig("unknown").Connections)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 3, exitCode(qerrors.Malicious("", "DROP TABLE x")))
	require.Equal(t, 2, exitCode(qerrors.Validation("page", "0", "bad page")))
	require.Equal(t, 2, exitCode(qerrors.Constructionf("no source")))
	require.Equal(t, 2, exitCode(&qerrors.SQLNotUsedError{}))
	require.Equal(t, 1, exitCode(qerrors.Execution(errors.New("timeout"))))
}

func TestPrintTable(t *testing.T) {
	table := &adapters.Table{
		Columns: []string{"id", "note"},
		Rows: [][]any{
			{int64(1), "short"},
			{int64(2), strings.Repeat("x", 60)},
			{int64(3), nil},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, table))

	out := buf.String()
	require.Contains(t, out, "id  note")
	require.Contains(t, out, strings.Repeat("x", 37)+"...")
	require.NotContains(t, out, strings.Repeat("x", 41))
	require.True(t, strings.HasSuffix(out, "(3 row(s))\n"))
}

func TestNewAppAudit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	config := DefaultConfig()
	config.DatasetsDir = dir
	config.Audit = AuditConfig{
		Enabled:  true,
		Level:    "full",
		File:     filepath.Join(dir, "logs", "audit.log"),
		Database: filepath.Join(dir, "logs", "audit.db"),
		Metrics:  MetricsConfig{Enabled: true},
	}

	a, err := NewApp(ctx, config, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)

	span := audit.Start(a.Audit, audit.OpExport)
	span.Entry().WithDataset("acme/orders").WithRows(3)
	require.NoError(t, span.Finish(ctx, nil))
	require.NoError(t, a.Audit.Flush())

	entries, err := a.AuditTable().Query(ctx, audit.QueryFilter{Dataset: "acme/orders"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.OpExport, entries[0].Operation)

	require.NoError(t, a.Close(ctx))

	info, err := os.Stat(config.Audit.File)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
