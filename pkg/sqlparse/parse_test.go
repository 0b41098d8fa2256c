package sqlparse

import (
	"reflect"
	"strings"
	"testing"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		dialect string
		want    string
	}{
		{"percent", "SELECT * FROM t WHERE a = %s", "postgres", "SELECT * FROM t WHERE a = " + Placeholder},
		{"question", "SELECT * FROM t WHERE a = ? AND b = '?'", "duckdb", "SELECT * FROM t WHERE a = " + Placeholder + " AND b = '?'"},
		{"dollar", "SELECT * FROM t WHERE a = $1", "postgres", "SELECT * FROM t WHERE a = " + Placeholder},
		{"backticks", "SELECT `a` FROM `t`", "mysql", `SELECT "a" FROM "t"`},
		{"brackets", "SELECT [a] FROM [t] WHERE x = @p1", "mssql", `SELECT "a" FROM "t" WHERE x = ` + Placeholder},
		{"escaped brackets", `SELECT [a]]b] FROM [t"x] WHERE y LIKE '[0-9]'`, "mssql", `SELECT "a]b" FROM "t""x" WHERE y LIKE '[0-9]'`},
		{"escaped backticks", "SELECT `a``b` FROM t", "mysql", `SELECT "a` + "`" + `b" FROM t`},
		{"quote in identifier", `SELECT "O'Brien" FROM t WHERE a = ? AND b = %s`, "duckdb",
			`SELECT "O'Brien" FROM t WHERE a = ` + Placeholder + " AND b = " + Placeholder},
		{"quote in backticks", "SELECT `O'Brien` FROM t WHERE a = ?", "mysql",
			`SELECT "O'Brien" FROM t WHERE a = ` + Placeholder},
		{"quote in brackets", "SELECT [O'Brien] FROM [t] WHERE a = %s", "mssql",
			`SELECT "O'Brien" FROM "t" WHERE a = ` + Placeholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prepare(tt.query, tt.dialect); got != tt.want {
				t.Errorf("Expected:\n%s\nGot:\n%s", tt.want, got)
			}
		})
	}
}

func TestIsSelect(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"SELECT * FROM users WHERE id = %s", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"DELETE FROM users", false},
		{"SELECT 1; SELECT 2", false},
		{"INSERT INTO t VALUES (1)", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			stmt, err := Parse(tt.query, "postgres")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := stmt.IsSelect(); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	if err := Validate("SELEC * FORM users", "postgres"); err == nil {
		t.Error("Expected parse error")
	}
}

func TestSubqueries(t *testing.T) {
	stmt, err := Parse("SELECT * FROM (SELECT id FROM users) AS u WHERE id IN (SELECT user_id FROM orders)", "postgres")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	subs, err := stmt.Subqueries()
	if err != nil {
		t.Fatalf("Subqueries failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Expected 2 subqueries, got %d: %v", len(subs), subs)
	}
	for _, s := range subs {
		if !strings.HasPrefix(strings.ToUpper(s), "SELECT") {
			t.Errorf("Expected rendered SELECT, got %q", s)
		}
	}
}

func TestExtractTableNames(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"simple", "SELECT * FROM my_table", []string{"my_table"}},
		{"case preserved", "SELECT * FROM Users u JOIN Orders o ON u.id = o.user_id", []string{"Users", "Orders"}},
		{"quoted", `SELECT * FROM "Heart Data"`, []string{"Heart Data"}},
		{"schema qualified", "SELECT * FROM public.users", []string{"public.users"}},
		{"catalog qualified", `SELECT * FROM other_catalog.main."Users"`, []string{"other_catalog.main.Users"}},
		{"cte excluded", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", []string{"orders"}},
		{"subquery", "SELECT * FROM a WHERE id IN (SELECT a_id FROM b)", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTableNames(tt.query, "postgres")
			if err != nil {
				t.Fatalf("ExtractTableNames failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
