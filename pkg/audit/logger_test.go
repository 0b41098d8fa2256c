package audit

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/semlayer/pkg/qerrors"
)

const testQuery = "SELECT * FROM users WHERE id = %s"

func TestEntry_Builder(t *testing.T) {
	entry := NewEntry(OpQuery, StatusSuccess).
		WithUser("analyst").
		WithDataset("acme/users").
		WithSource("postgres").
		WithQuery(testQuery).
		WithRows(42).
		WithDuration(500*time.Millisecond).
		WithMetadata("page", 2)

	if entry.ID == "" {
		t.Error("Expected generated ID")
	}
	if entry.Dataset != "acme/users" {
		t.Errorf("Expected dataset 'acme/users', got '%s'", entry.Dataset)
	}
	if entry.Rows != 42 {
		t.Errorf("Expected 42 rows, got %d", entry.Rows)
	}
	if entry.Fingerprint != Fingerprint(testQuery) {
		t.Errorf("Expected fingerprint of query, got '%s'", entry.Fingerprint)
	}
	if entry.Metadata["page"] != 2 {
		t.Error("Expected metadata page to be 2")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(testQuery)
	if len(a) != 16 {
		t.Errorf("Expected 16 hex chars, got %d (%s)", len(a), a)
	}
	if a != Fingerprint(testQuery) {
		t.Error("Expected stable fingerprint")
	}
	if a == Fingerprint(testQuery+" LIMIT 1") {
		t.Error("Expected different queries to differ")
	}
}

func TestEntry_WithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus Status
		wantKind   qerrors.Kind
	}{
		{"nil", nil, StatusSuccess, ""},
		{"malicious", qerrors.Malicious("", "DROP TABLE users"), StatusRejected, qerrors.KindMalicious},
		{"execution", qerrors.Execution(errors.New("no such table: users")), StatusFailure, qerrors.KindExecution},
		{"plain", errors.New("boom"), StatusFailure, qerrors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(OpQuery, StatusSuccess).WithError(tt.err)
			if entry.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, entry.Status)
			}
			if entry.ErrorKind != tt.wantKind {
				t.Errorf("Expected kind %q, got %q", tt.wantKind, entry.ErrorKind)
			}
		})
	}
}

func TestEntry_FilterByLevel(t *testing.T) {
	entry := NewEntry(OpQuery, StatusSuccess).
		WithUser("analyst").
		WithDataset("acme/users").
		WithQuery(testQuery).
		WithRows(10).
		WithMetadata("page", 1)

	minimal := entry.FilterByLevel(LevelMinimal)
	if minimal.Query != "" || minimal.Fingerprint != "" || minimal.Metadata != nil {
		t.Error("Minimal level should not include query, fingerprint or metadata")
	}
	if minimal.Dataset == "" || minimal.User == "" {
		t.Error("Minimal level should include dataset and user")
	}

	standard := entry.FilterByLevel(LevelStandard)
	if standard.Query != "" {
		t.Error("Standard level should not include query text")
	}
	if standard.Fingerprint == "" || standard.Rows != 10 {
		t.Error("Standard level should include fingerprint and rows")
	}

	full := entry.FilterByLevel(LevelFull)
	if full.Query != testQuery || full.Metadata == nil {
		t.Error("Full level should include query and metadata")
	}

	if entry.Query == "" {
		t.Error("FilterByLevel must not modify the original entry")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"", LevelStandard},
		{"minimal", LevelMinimal},
		{"standard", LevelStandard},
		{"full", LevelFull},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v (%v)", tt.in, tt.want, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestFileAppender_Write(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "audit.log")

	appender, err := NewFileAppender(FileAppenderConfig{
		FilePath:   filePath,
		MaxSize:    1,
		MaxBackups: 3,
		Level:      LevelStandard,
		FormatJSON: true,
	})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}

	entry := NewEntry(OpQuery, StatusSuccess).WithDataset("acme/users").WithQuery(testQuery)
	if err := appender.Append(context.Background(), entry); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if appender.CurrentSize() == 0 {
		t.Error("Expected non-zero file size")
	}
	appender.Close()

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read audit file: %v", err)
	}
	var got Entry
	if err := json.Unmarshal(bytes.TrimSpace(data), &got); err != nil {
		t.Fatalf("Expected JSON line, got %q: %v", data, err)
	}
	if got.Dataset != "acme/users" || got.Query != "" {
		t.Errorf("Expected standard-level entry, got %+v", got)
	}
}

func TestFileAppender_Rotation(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "audit.log")

	appender, err := NewFileAppender(FileAppenderConfig{
		FilePath:   filePath,
		MaxBytes:   512,
		MaxBackups: 2,
		Level:      LevelFull,
		FormatJSON: true,
	})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}
	defer appender.Close()

	for i := 0; i < 50; i++ {
		entry := NewEntry(OpQuery, StatusSuccess).
			WithDataset("acme/users").
			WithQuery(testQuery).
			WithRows(int64(i))
		if err := appender.Append(context.Background(), entry); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	if _, err := os.Stat(filePath + ".1"); err != nil {
		t.Error("Expected first backup file after rotation")
	}
	if _, err := os.Stat(filePath + ".2"); err != nil {
		t.Error("Expected second backup file after rotation")
	}
	if _, err := os.Stat(filePath + ".3"); err == nil {
		t.Error("Expected no more than MaxBackups backup files")
	}
	if appender.CurrentSize() > 512 {
		t.Errorf("Expected current file under limit, got %d bytes", appender.CurrentSize())
	}
}

func TestConsoleAppender(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	appender := NewConsoleAppender(logger, LevelStandard)

	rejected := NewEntry(OpQuery, StatusSuccess).
		WithDataset("acme/users").
		WithError(qerrors.Malicious("", "DROP TABLE users"))
	if err := appender.Append(context.Background(), rejected); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("Expected rejected query at WARN, got %q", out)
	}
	if !strings.Contains(out, "kind=malicious_query") {
		t.Errorf("Expected error kind attribute, got %q", out)
	}
	if err := appender.Close(); err != nil {
		t.Errorf("Unexpected error on close: %v", err)
	}
}

func TestMultiAppender(t *testing.T) {
	tmpDir := t.TempDir()
	filePath1 := filepath.Join(tmpDir, "audit1.log")
	filePath2 := filepath.Join(tmpDir, "audit2.log")

	appender1, _ := NewFileAppender(FileAppenderConfig{FilePath: filePath1, Level: LevelStandard})
	defer appender1.Close()
	appender2, _ := NewFileAppender(FileAppenderConfig{FilePath: filePath2, Level: LevelFull, FormatJSON: true})
	defer appender2.Close()

	multiAppender := NewMultiAppender(appender1, appender2)
	if err := multiAppender.Append(context.Background(), NewEntry(OpBuild, StatusSuccess)); err != nil {
		t.Fatalf("Failed to append to multi appender: %v", err)
	}
	if err := multiAppender.Flush(); err != nil {
		t.Fatalf("Failed to flush multi appender: %v", err)
	}

	for _, p := range []string{filePath1, filePath2} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty file %s", p)
		}
	}
}

// failingAppender всегда возвращает ошибку
type failingAppender struct{ err error }

func (f failingAppender) Append(ctx context.Context, entry *Entry) error { return f.err }

func (f failingAppender) Close() error { return nil }

func TestMultiAppender_ContinuesAfterFailure(t *testing.T) {
	down := errors.New("redis: connection refused")
	rec := &recordingAppender{}
	var reported error

	config := SyncConfig()
	config.OnError = func(err error) { reported = err }
	logger := NewLogger(config, failingAppender{err: down}, rec)
	defer logger.Close()

	err := logger.Log(context.Background(), NewEntry(OpConnect, StatusSuccess))
	if !errors.Is(err, down) {
		t.Errorf("Expected joined appender error, got %v", err)
	}
	if !errors.Is(reported, down) {
		t.Errorf("Expected OnError to receive the failure, got %v", reported)
	}
	if len(rec.entries) != 1 {
		t.Errorf("Expected second appender to receive the entry, got %d", len(rec.entries))
	}
}

// recordingAppender запоминает записанные entries
type recordingAppender struct {
	entries []*Entry
}

func (r *recordingAppender) Append(ctx context.Context, entry *Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAppender) Close() error { return nil }

func TestAuditLogger_Sync(t *testing.T) {
	rec := &recordingAppender{}
	config := SyncConfig()
	config.DefaultUser = "analyst"
	logger := NewLogger(config, rec)
	defer logger.Close()

	entry := &Entry{Operation: OpPaginate, Status: StatusSuccess}
	if err := logger.Log(context.Background(), entry); err != nil {
		t.Fatalf("Failed to log entry: %v", err)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(rec.entries))
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Error("Expected ID and timestamp to be filled")
	}
	if entry.User != "analyst" {
		t.Errorf("Expected default user 'analyst', got '%s'", entry.User)
	}
}

func TestAuditLogger_Async(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "audit.log")
	appender, _ := NewFileAppender(FileAppenderConfig{FilePath: filePath, Level: LevelStandard, FormatJSON: true})

	config := DefaultConfig()
	config.BufferSize = 100
	logger := NewLogger(config, appender)

	for i := 0; i < 10; i++ {
		entry := NewEntry(OpQuery, StatusSuccess).WithRows(int64(i))
		if err := logger.Log(context.Background(), entry); err != nil {
			t.Fatalf("Failed to log entry: %v", err)
		}
	}

	// Close дожидается обработки буфера
	if err := logger.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open audit file: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 10 {
		t.Errorf("Expected 10 lines, got %d", lines)
	}
}

func TestAuditLogger_Close(t *testing.T) {
	logger := NewLogger(DefaultConfig(), NewNullAppender())
	if err := logger.Close(); err != nil {
		t.Errorf("Failed to close logger: %v", err)
	}

	err := logger.Log(context.Background(), NewEntry(OpQuery, StatusSuccess))
	if err == nil {
		t.Error("Expected error when logging after close")
	}
}

func TestSpan(t *testing.T) {
	rec := &recordingAppender{}
	logger := NewLogger(SyncConfig(), rec)
	defer logger.Close()

	span := Start(logger, OpQuery)
	span.Entry().WithDataset("acme/users").WithQuery(testQuery)
	execErr := qerrors.Execution(errors.New("connection refused"))

	if err := span.Finish(context.Background(), execErr); err != execErr {
		t.Errorf("Expected original error back, got %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(rec.entries))
	}
	got := rec.entries[0]
	if got.Status != StatusFailure || got.ErrorKind != qerrors.KindExecution {
		t.Errorf("Expected execution failure, got %s/%s", got.Status, got.ErrorKind)
	}

	// nil logger допустим
	if err := Start(nil, OpBuild).Finish(context.Background(), nil); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()

	if err := logger.Log(context.Background(), NewEntry(OpExport, StatusSuccess)); err != nil {
		t.Errorf("NullLogger should never return error, got: %v", err)
	}
	if err := logger.Flush(); err != nil {
		t.Errorf("NullLogger.Flush should not error, got: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not error, got: %v", err)
	}
}

func openAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLAppender(t *testing.T) {
	ctx := context.Background()
	db := openAuditDB(t)

	appender, err := NewSQLAppender(ctx, SQLAppenderConfig{DB: db, AutoCreateTable: true, Level: LevelFull})
	if err != nil {
		t.Fatalf("Failed to create SQL appender: %v", err)
	}
	defer appender.Close()

	ok := NewEntry(OpQuery, StatusSuccess).
		WithDataset("acme/users").
		WithQuery(testQuery).
		WithRows(3).
		WithDuration(1500 * time.Millisecond).
		WithMetadata("page", 1)
	ok.Timestamp = time.Now().UTC().Add(-time.Minute)
	bad := NewEntry(OpQuery, StatusSuccess).
		WithDataset("acme/orders").
		WithError(qerrors.Malicious("", "DELETE FROM orders"))

	for _, e := range []*Entry{ok, bad} {
		if err := appender.Append(ctx, e); err != nil {
			t.Fatalf("Failed to append entry: %v", err)
		}
	}

	all, err := appender.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(all))
	}
	if all[0].ID != bad.ID {
		t.Error("Expected newest entry first")
	}

	rejected, err := appender.Query(ctx, QueryFilter{Status: StatusRejected})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ErrorKind != qerrors.KindMalicious {
		t.Errorf("Expected one rejected entry, got %+v", rejected)
	}

	users, err := appender.Query(ctx, QueryFilter{Dataset: "acme/users", Limit: 5})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("Expected 1 entry for acme/users, got %d", len(users))
	}
	got := users[0]
	if got.Query != testQuery || got.Fingerprint != ok.Fingerprint || got.Rows != 3 {
		t.Errorf("Expected query details to round-trip, got %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s duration, got %v", got.Duration)
	}
	if got.Metadata["page"] != float64(1) {
		t.Errorf("Expected metadata page 1, got %v", got.Metadata["page"])
	}
}

func TestSQLAppender_Batch(t *testing.T) {
	ctx := context.Background()
	db := openAuditDB(t)

	appender, err := NewSQLAppender(ctx, SQLAppenderConfig{DB: db, AutoCreateTable: true, BatchSize: 3})
	if err != nil {
		t.Fatalf("Failed to create SQL appender: %v", err)
	}

	count := func() int {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM "audit_log"`).Scan(&n); err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		return n
	}

	for i := 0; i < 2; i++ {
		appender.Append(ctx, NewEntry(OpBuild, StatusSuccess))
	}
	if n := count(); n != 0 {
		t.Errorf("Expected batch to be pending, got %d rows", n)
	}

	appender.Append(ctx, NewEntry(OpBuild, StatusSuccess))
	if n := count(); n != 3 {
		t.Errorf("Expected 3 rows after full batch, got %d", n)
	}

	appender.Append(ctx, NewEntry(OpBuild, StatusSuccess))
	if err := appender.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if n := count(); n != 4 {
		t.Errorf("Expected 4 rows after close, got %d", n)
	}
}

func TestMetricsAppender(t *testing.T) {
	reg := prometheus.NewRegistry()
	appender, err := NewMetricsAppender(reg)
	if err != nil {
		t.Fatalf("Failed to create metrics appender: %v", err)
	}

	ctx := context.Background()
	appender.Append(ctx, NewEntry(OpQuery, StatusSuccess).WithRows(5).WithDuration(time.Second))
	appender.Append(ctx, NewEntry(OpQuery, StatusSuccess).WithError(qerrors.Malicious("", "DROP TABLE x")))
	appender.Append(ctx, NewEntry(OpQuery, StatusSuccess).WithError(qerrors.Execution(errors.New("timeout"))))

	ops := appender.Operations()
	if v := testutil.ToFloat64(ops.WithLabelValues("query", "rejected", "malicious_query")); v != 1 {
		t.Errorf("Expected 1 rejected query, got %v", v)
	}
	if v := testutil.ToFloat64(ops.WithLabelValues("query", "failure", "execution")); v != 1 {
		t.Errorf("Expected 1 execution failure, got %v", v)
	}
	if v := testutil.ToFloat64(ops.WithLabelValues("query", "success", "")); v != 1 {
		t.Errorf("Expected 1 success, got %v", v)
	}

	if _, err := NewMetricsAppender(reg); err == nil {
		t.Error("Expected duplicate registration error")
	}
}

func TestRedisAppender(t *testing.T) {
	addr := os.Getenv("SEMLAYER_TEST_REDIS")
	if addr == "" {
		t.Skip("SEMLAYER_TEST_REDIS not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	appender := NewRedisAppenderWithClient(client, RedisAppenderConfig{Prefix: "semlayer:test", TTL: time.Minute})
	defer appender.Close()

	sub := client.Subscribe(ctx, appender.Channel(OpQuery))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	entry := NewEntry(OpQuery, StatusSuccess).WithDataset("acme/users")
	if err := appender.Append(ctx, entry); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	state, err := client.Get(ctx, appender.StateKey("acme/users")).Result()
	if err != nil {
		t.Fatalf("Failed to read state: %v", err)
	}
	if !strings.Contains(state, entry.ID) {
		t.Errorf("Expected state to contain entry id, got %s", state)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	if !strings.Contains(msg.Payload, entry.ID) {
		t.Errorf("Expected published entry, got %s", msg.Payload)
	}
}

func TestRedisAppender_Keys(t *testing.T) {
	appender := NewRedisAppenderWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), RedisAppenderConfig{})
	defer appender.Close()

	if got := appender.StateKey("acme/users"); got != "semlayer:audit:acme/users:state" {
		t.Errorf("Expected default state key, got %s", got)
	}
	if got := appender.StateKey(""); got != "semlayer:audit:_:state" {
		t.Errorf("Expected placeholder state key, got %s", got)
	}
	if got := appender.Channel(OpPaginate); got != "semlayer:audit:paginate" {
		t.Errorf("Expected channel name, got %s", got)
	}
}
