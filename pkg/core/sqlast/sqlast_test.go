package sqlast

import (
	"testing"
)

func TestDialectQuote(t *testing.T) {
	tests := []struct {
		dialect Dialect
		name    string
		want    string
	}{
		{DuckDB, "email", `"email"`},
		{DuckDB, "Email", `"email"`},
		{DuckDB, `users"; SELECT 1; --`, `"users""; SELECT 1; --"`},
		{DuckDB, "users --", `"users"`},
		{DuckDB, "heart data", `"heart data"`},
		{MySQL, "email", "`email`"},
		{MySQL, "a`b", "`a``b`"},
		{MSSQL, "email", "[email]"},
		{MSSQL, "a]b", "[a]]b]"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name+"/"+tt.name, func(t *testing.T) {
			if got := tt.dialect.Identifier(tt.name); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDialectByName(t *testing.T) {
	for _, name := range []string{"duckdb", "postgres", "PostgreSQL", "mysql", "sqlite", "mssql", "sqlserver"} {
		if _, err := DialectByName(name); err != nil {
			t.Errorf("DialectByName(%q) failed: %v", name, err)
		}
	}
	if _, err := DialectByName("oracle"); err == nil {
		t.Error("Expected error for unsupported dialect")
	}
}

func TestBindParams(t *testing.T) {
	sql := "SELECT * FROM t WHERE a = %s AND b = '%s' LIMIT %s OFFSET %s"

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DuckDB, "SELECT * FROM t WHERE a = ? AND b = '%s' LIMIT ? OFFSET ?"},
		{Postgres, "SELECT * FROM t WHERE a = $1 AND b = '%s' LIMIT $2 OFFSET $3"},
		{MSSQL, "SELECT * FROM t WHERE a = @p1 AND b = '%s' LIMIT @p2 OFFSET @p3"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			if got := tt.dialect.BindParams(sql); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if n := CountParams(sql); n != 3 {
		t.Errorf("Expected 3 params, got %d", n)
	}
}

func TestBindParamsQuotedIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		sql     string
		want    string
	}{
		{"double quotes", DuckDB, `SELECT "O'Brien" FROM t WHERE "O'Brien" = %s LIMIT %s`,
			`SELECT "O'Brien" FROM t WHERE "O'Brien" = ? LIMIT ?`},
		{"marker in name", Postgres, `SELECT "a%s" FROM t WHERE x = %s`,
			`SELECT "a%s" FROM t WHERE x = $1`},
		{"backticks", MySQL, "SELECT `O'Brien` FROM t LIMIT %s OFFSET %s",
			"SELECT `O'Brien` FROM t LIMIT ? OFFSET ?"},
		{"brackets", MSSQL, "SELECT [O'Brien] FROM t WHERE [x]]'] = %s",
			"SELECT [O'Brien] FROM t WHERE [x]]'] = @p1"},
		{"escaped quote in literal", DuckDB, "SELECT * FROM t WHERE a = 'it''s' AND b = %s",
			"SELECT * FROM t WHERE a = 'it''s' AND b = ?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.BindParams(tt.sql); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if n := CountParams(`SELECT "O'Brien" FROM t LIMIT %s OFFSET %s`); n != 2 {
		t.Errorf("Expected 2 params, got %d", n)
	}
	if n := CountParams("SELECT [O'Brien] FROM t WHERE `a'` = %s"); n != 1 {
		t.Errorf("Expected 1 param, got %d", n)
	}
}

func TestRenderBaseSelect(t *testing.T) {
	q := &Select{
		Items: []SelectItem{{Expr: Col("email")}, {Expr: Col("first_name")}, {Expr: Col("timestamp")}},
		From:  &FuncTable{Name: "READ_CSV", Args: []Expr{String("/mocked/path")}},
		OrderBy: []OrderItem{
			{Expr: Col("created_at"), Direction: "DESC"},
		},
		Limit: Int(100),
	}

	want := "SELECT\n" +
		"  \"email\",\n" +
		"  \"first_name\",\n" +
		"  \"timestamp\"\n" +
		"FROM READ_CSV('/mocked/path')\n" +
		"ORDER BY\n" +
		"  \"created_at\" DESC\n" +
		"LIMIT 100"

	if got := Render(q, DuckDB, true); got != want {
		t.Errorf("Pretty render mismatch:\nExpected:\n%s\nGot:\n%s", want, got)
	}

	compact := `SELECT "email", "first_name", "timestamp" FROM READ_CSV('/mocked/path') ORDER BY "created_at" DESC LIMIT 100`
	if got := Render(q, DuckDB, false); got != compact {
		t.Errorf("Compact render mismatch:\nExpected: %s\nGot:      %s", compact, got)
	}
}

func TestRenderNestedJoin(t *testing.T) {
	parents := &Subquery{Query: &RawQuery{SQL: "SELECT\n  *\nFROM \"parents\""}, Alias: "parents"}
	children := &Subquery{Query: &RawQuery{SQL: "SELECT\n  *\nFROM \"children\""}, Alias: "children"}

	inner := &Select{
		Items: []SelectItem{
			{Expr: Qualified("parents", "id"), Alias: "parents_id"},
			{Expr: Qualified("children", "name"), Alias: "children_name"},
		},
		From: parents,
		Joins: []Join{{
			Table: children,
			On:    &Binary{Left: Qualified("parents", "id"), Op: "=", Right: Qualified("children", "id")},
		}},
	}
	outer := &Select{
		Items: []SelectItem{{Expr: Col("parents_id")}, {Expr: Col("children_name")}},
		From:  &Subquery{Query: inner, Alias: "v"},
	}

	want := "SELECT\n" +
		"  \"parents_id\",\n" +
		"  \"children_name\"\n" +
		"FROM (\n" +
		"  SELECT\n" +
		"    \"parents\".\"id\" AS \"parents_id\",\n" +
		"    \"children\".\"name\" AS \"children_name\"\n" +
		"  FROM (\n" +
		"    SELECT\n" +
		"      *\n" +
		"    FROM \"parents\"\n" +
		"  ) AS \"parents\"\n" +
		"  JOIN (\n" +
		"    SELECT\n" +
		"      *\n" +
		"    FROM \"children\"\n" +
		"  ) AS \"children\"\n" +
		"    ON \"parents\".\"id\" = \"children\".\"id\"\n" +
		") AS \"v\""

	if got := Render(outer, DuckDB, true); got != want {
		t.Errorf("Nested render mismatch:\nExpected:\n%s\nGot:\n%s", want, got)
	}
}

func TestRenderWhere(t *testing.T) {
	q := &Select{
		Items: []SelectItem{{Expr: &Star{}}},
		From:  &Subquery{Query: &RawQuery{SQL: "SELECT * FROM users"}, Alias: "filtered_data", BareAlias: true},
		Where: And(
			Or(
				&Like{Expr: Col("email"), Pattern: &Param{}, CaseInsensitive: true},
				&Binary{Left: Col("age"), Op: "=", Right: &Param{}},
			),
			&In{Expr: Col("country"), Items: []Expr{&Param{}, &Param{}}},
		),
		Limit:  &Param{},
		Offset: &Param{},
	}

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DuckDB, `SELECT * FROM (SELECT * FROM users) AS filtered_data WHERE ("email" ILIKE %s OR "age" = %s) AND "country" IN (%s, %s) LIMIT %s OFFSET %s`},
		{MySQL, "SELECT * FROM (SELECT * FROM users) AS filtered_data WHERE (LOWER(`email`) LIKE LOWER(%s) OR `age` = %s) AND `country` IN (%s, %s) LIMIT %s OFFSET %s"},
		{MSSQL, "SELECT * FROM (SELECT * FROM users) AS filtered_data WHERE (LOWER([email]) LIKE LOWER(%s) OR [age] = %s) AND [country] IN (%s, %s) ORDER BY (SELECT NULL) OFFSET %s ROWS FETCH NEXT %s ROWS ONLY"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			if got := Render(q, tt.dialect, false); got != tt.want {
				t.Errorf("Expected:\n%s\nGot:\n%s", tt.want, got)
			}
		})
	}
}

func TestRenderDistinctGroupBy(t *testing.T) {
	q := &Select{
		Distinct: true,
		Items:    []SelectItem{{Expr: Col("parents")}, {Expr: &Raw{SQL: `COUNT("id")`}, Alias: "total"}},
		From:     TableNamed("family"),
		GroupBy:  []Expr{Col("parents")},
		Limit:    Int(5),
	}

	want := "SELECT DISTINCT\n" +
		"  \"parents\",\n" +
		"  COUNT(\"id\") AS \"total\"\n" +
		"FROM \"family\"\n" +
		"GROUP BY\n" +
		"  \"parents\"\n" +
		"LIMIT 5"

	if got := Render(q, DuckDB, true); got != want {
		t.Errorf("Expected:\n%s\nGot:\n%s", want, got)
	}
}

func TestParseOrderBy(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"column", `"column"`},
		{"created_at DESC", `"created_at" DESC`},
		{"email asc", `"email" ASC`},
		{"Created_At", `"created_at"`},
		{`"Heart Rate" DESC`, `"Heart Rate" DESC`},
		{"parents.id", `"parents"."id"`},
		{"score DESC NULLS LAST", `"score" DESC NULLS LAST`},
		{`"a""b"`, `"a""b"`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			item, err := ParseOrderBy(tt.input)
			if err != nil {
				t.Fatalf("ParseOrderBy failed: %v", err)
			}
			r := &renderer{d: DuckDB}
			if got := r.orderItem(item); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseOrderByInjection(t *testing.T) {
	payloads := []string{
		"users; DROP TABLE users;",
		"users UNION SELECT 1,2,3;",
		`users"; SELECT * FROM sensitive_data; --`,
		"users; TRUNCATE users; SELECT * FROM users WHERE 't'='t",
		"users' AND (SELECT * FROM (SELECT(SLEEP(5)))test); --",
		"",
		"email DESC DESC",
		"email NULLS",
		"(SELECT 1)",
		`"unterminated`,
	}

	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			if _, err := ParseOrderBy(p); err == nil {
				t.Errorf("Expected error for %q", p)
			}
		})
	}
}
