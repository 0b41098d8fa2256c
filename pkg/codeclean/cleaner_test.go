package codeclean

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/ruslano69/semlayer/pkg/audit"
	"github.com/ruslano69/semlayer/pkg/qerrors"
)

type recorder struct {
	entries []*audit.Entry
}

func (r *recorder) Append(ctx context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func TestCleanSQL(t *testing.T) {
	c := New([]string{"my_table", "Sales"})

	tests := []struct {
		name      string
		query     string
		expected  string
		malicious bool
	}{
		{"trailing semicolon", "SELECT * FROM my_table;", "SELECT * FROM my_table", false},
		{"several semicolons", "SELECT * FROM my_table;;", "SELECT * FROM my_table", false},
		{"join", "SELECT * FROM my_table JOIN Sales ON my_table.id = Sales.id", "SELECT * FROM my_table JOIN Sales ON my_table.id = Sales.id", false},
		{"quoted name", `SELECT * FROM "Sales"`, `SELECT * FROM "Sales"`, false},
		{"unknown table", "SELECT * FROM other_table", "", true},
		{"case mismatch", "SELECT * FROM sales", "", true},
		{"schema prefix", "SELECT * FROM secret_db.my_table", "", true},
		{"catalog prefix", "SELECT * FROM other_catalog.main.my_table", "", true},
		{"quoted schema prefix", `SELECT * FROM "secret_db"."Sales"`, "", true},
		{"qualified join", "SELECT * FROM my_table JOIN secret_db.Sales ON my_table.id = Sales.id", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CleanSQL(tt.query)
			if tt.malicious {
				if !qerrors.IsMalicious(err) {
					t.Fatalf("Expected malicious query error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanSQL failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCleanSQLUnparsable(t *testing.T) {
	c := New([]string{"my_table"})

	_, err := c.CleanSQL("SELECT FROM WHERE")
	if !qerrors.IsConstruction(err) {
		t.Fatalf("Expected construction error, got %v", err)
	}
	if qerrors.IsMalicious(err) {
		t.Errorf("Parse failure must not be reported as malicious: %v", err)
	}
}

func TestReplaceTableNames(t *testing.T) {
	allowed := map[string]string{"my_table": "my_table"}

	got, err := ReplaceTableNames("SELECT * FROM my_table;", []string{"my_table"}, allowed)
	if err != nil {
		t.Fatalf("ReplaceTableNames failed: %v", err)
	}
	if got != "SELECT * FROM my_table;" {
		t.Errorf("Unexpected result: %q", got)
	}

	_, err = ReplaceTableNames("SELECT * FROM my_table;", []string{"my_table"}, map[string]string{})
	if !qerrors.IsMalicious(err) {
		t.Fatalf("Expected malicious query error, got %v", err)
	}
	if err.Error() != "Query uses unauthorized table: my_table." {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	// граница слова: my_table_2 не задевается заменой my_table
	got, err = ReplaceTableNames("SELECT * FROM my_table, my_table_2", []string{"my_table", "my_table_2"},
		map[string]string{"my_table": "My_Table", "my_table_2": "my_table_2"})
	if err != nil {
		t.Fatalf("ReplaceTableNames failed: %v", err)
	}
	if got != "SELECT * FROM My_Table, my_table_2" {
		t.Errorf("Unexpected result: %q", got)
	}
}

func TestClean(t *testing.T) {
	code := `import pandas as pd
import matplotlib.pyplot as plt

def execute_sql_query(sql_query: str) -> pd.DataFrame:
    return pd.read_sql(sql_query)

sql_query = "SELECT country, gdp FROM countries;"
df = execute_sql_query(sql_query)
df.plot()
plt.savefig("chart.png")
plt.show()
result = {"type": "plot", "value": "chart.png"}
`
	c := New([]string{"countries"})
	got, err := c.Clean(context.Background(), code)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	if strings.Contains(got, "def execute_sql_query") {
		t.Errorf("Function redefinition was not removed:\n%s", got)
	}
	if !strings.Contains(got, `sql_query = "SELECT country, gdp FROM countries"`) {
		t.Errorf("SQL literal was not cleaned:\n%s", got)
	}
	if !strings.Contains(got, "df = execute_sql_query(sql_query)") {
		t.Errorf("Call was changed:\n%s", got)
	}
	if strings.Contains(got, "plt.show()") {
		t.Errorf("plt.show() was not removed:\n%s", got)
	}

	chart := regexp.MustCompile(`"exports/charts/temp_chart_[0-9a-f-]{36}\.png"`)
	paths := chart.FindAllString(got, -1)
	if len(paths) != 2 {
		t.Fatalf("Expected 2 chart paths, got %d:\n%s", len(paths), got)
	}
	if paths[0] != paths[1] {
		t.Errorf("Expected one chart path per run, got %s and %s", paths[0], paths[1])
	}
}

func TestCleanDirectCall(t *testing.T) {
	c := New([]string{"countries"})

	got, err := c.Clean(context.Background(), `df = execute_sql_query('SELECT * FROM countries;')`)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if got != `df = execute_sql_query('SELECT * FROM countries')` {
		t.Errorf("Unexpected result: %s", got)
	}

	_, err = c.Clean(context.Background(), `df = execute_sql_query("SELECT * FROM secrets")`)
	if !qerrors.IsMalicious(err) {
		t.Fatalf("Expected malicious query error, got %v", err)
	}

	for _, code := range []string{
		`df = execute_sql_query("SELECT * FROM secret_db.countries")`,
		`df = execute_sql_query("SELECT * FROM other_catalog.main.countries")`,
	} {
		got, err := c.Clean(context.Background(), code)
		if !qerrors.IsMalicious(err) {
			t.Errorf("Expected malicious query error for %s, got %v (output %q)", code, err, got)
		}
	}
}

func TestCleanProseQuery(t *testing.T) {
	c := New([]string{"countries"})

	_, err := c.Clean(context.Background(), `query = "What is the GDP of each country?"`)
	if err == nil {
		t.Fatal("Expected error for text that is not SQL")
	}
	if !qerrors.IsConstruction(err) || qerrors.IsMalicious(err) {
		t.Errorf("Expected construction error, got %v", err)
	}
}

func TestCleanNestedAndConcatenated(t *testing.T) {
	c := New([]string{"countries"})

	code := `def analyze():
    query = ("SELECT * "
             "FROM countries;")
    return execute_sql_query(query)
`
	got, err := c.Clean(context.Background(), code)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if !strings.Contains(got, `"FROM countries")`) {
		t.Errorf("Concatenated literal was not cleaned:\n%s", got)
	}

	_, err = c.Clean(context.Background(), "if True:\n    sql_query = 'SELECT * FROM users'\n")
	if !qerrors.IsMalicious(err) {
		t.Fatalf("Expected malicious query error in nested block, got %v", err)
	}
}

func TestCleanEscapes(t *testing.T) {
	c := New([]string{"countries"})

	got, err := c.Clean(context.Background(), `query = "SELECT *\nFROM countries;"`)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if got != `query = "SELECT *\nFROM countries"` {
		t.Errorf("Unexpected result: %s", got)
	}

	got, err = c.Clean(context.Background(), "query = \"\"\"\nSELECT *\nFROM countries\n\"\"\"")
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if !strings.Contains(got, "FROM countries") {
		t.Errorf("Unexpected result: %s", got)
	}
}

func TestCleanIgnoresOtherStrings(t *testing.T) {
	c := New(nil)

	code := `title = "SELECT * FROM anything"
query = f"SELECT * FROM {name}"
`
	got, err := c.Clean(context.Background(), code)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if got != strings.TrimSpace(code) {
		t.Errorf("Unexpected change:\n%s", got)
	}
}

func TestCleanDecoratedDefinition(t *testing.T) {
	c := New(nil)

	code := "@cache\ndef execute_sql_query(q):\n    return q\n\nx = 1\n"
	got, err := c.Clean(context.Background(), code)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if got != "x = 1" {
		t.Errorf("Unexpected result: %q", got)
	}
}

func TestCleanSyntaxError(t *testing.T) {
	c := New(nil)

	_, err := c.Clean(context.Background(), "def broken(:\n    pass\n")
	if err == nil {
		t.Fatal("Expected syntax error")
	}
	if qerrors.IsMalicious(err) {
		t.Errorf("Syntax error must not be reported as malicious: %v", err)
	}
	if !strings.Contains(err.Error(), "syntax error at line") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestReplaceOutputFilenames(t *testing.T) {
	c := New(nil)

	if got := c.ReplaceOutputFilenames(""); got != "" {
		t.Errorf("Expected empty code, got %q", got)
	}
	if got := c.ReplaceOutputFilenames("some text without png"); got != "some text without png" {
		t.Errorf("Unexpected change: %q", got)
	}

	got := c.ReplaceOutputFilenames(`some text 'hello.png' more text`)
	if !regexp.MustCompile(`^some text 'exports/charts/temp_chart_.+\.png' more text$`).MatchString(got) {
		t.Errorf("Unexpected result: %s", got)
	}

	c.ChartsDir = `C:\temp\nested`
	got = c.ReplaceOutputFilenames(`plt.savefig("original.png")`)
	if !strings.Contains(got, `C:\\temp\\nested`) {
		t.Errorf("Backslashes must be escaped: %s", got)
	}
}

func TestRemovePlotShow(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"plt.plot(x)\nplt.show()\nprint(1)\n", "plt.plot(x)\nprint(1)\n"},
		{"    plt.show()  # display\nx = 1", "x = 1"},
		{"a = 1; plt.show()", "a = 1; None"},
		{"print(1)", "print(1)"},
	}

	for _, tt := range tests {
		if got := RemovePlotShow(tt.code); got != tt.expected {
			t.Errorf("RemovePlotShow(%q) = %q, expected %q", tt.code, got, tt.expected)
		}
	}
}

func TestCleanAudit(t *testing.T) {
	rec := &recorder{}
	logger := audit.NewLogger(audit.SyncConfig(), rec)
	c := New([]string{"countries"})
	c.Audit = logger

	if _, err := c.Clean(context.Background(), "query = 'SELECT * FROM countries'"); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if _, err := c.Clean(context.Background(), "query = 'SELECT * FROM users'"); err == nil {
		t.Fatal("Expected malicious query error")
	}

	if len(rec.entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(rec.entries))
	}
	if rec.entries[0].Operation != audit.OpClean || rec.entries[0].Status != audit.StatusSuccess {
		t.Errorf("Unexpected first entry: %s", rec.entries[0])
	}
	rejected := rec.entries[1]
	if rejected.Status != audit.StatusRejected {
		t.Errorf("Expected rejected status, got %s", rejected.Status)
	}
	if rejected.Query != "SELECT * FROM users" {
		t.Errorf("Expected offending query in entry, got %q", rejected.Query)
	}
}

func TestRequireSQLCall(t *testing.T) {
	tests := []struct {
		name string
		code string
		ok   bool
	}{
		{"no call", "result = 5 + 5", false},
		{"direct call", "execute_sql_query('SELECT * FROM table')", true},
		{"among other calls", "def some_function():\n    pass\nsome_function()\nexecute_sql_query('SELECT * FROM table')\n", true},
		{"nested call", "def run():\n    return len(execute_sql_query(q))\n", true},
		{"method only", "db.execute_sql_query('SELECT 1')", false},
		{"definition only", "def execute_sql_query(q):\n    return q\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireSQLCall(context.Background(), tt.code)
			if tt.ok {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !qerrors.IsSQLNotUsed(err) {
				t.Fatalf("Expected SQLNotUsedError, got %v", err)
			}
			if err.Error() != qerrors.SQLNotUsedMessage {
				t.Errorf("Unexpected message: %s", err.Error())
			}
		})
	}
}

func TestFunctionCalls(t *testing.T) {
	calls, err := FunctionCalls(context.Background(), "df = execute_sql_query(q)\ndf.plot()\nplt.savefig(path)\nprint(len(df))\n")
	if err != nil {
		t.Fatalf("FunctionCalls failed: %v", err)
	}
	want := []string{"execute_sql_query", "df.plot", "plt.savefig", "print", "len"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, calls)
	}
}

func TestValidateAndClean(t *testing.T) {
	rec := &recorder{}
	c := New([]string{"countries"})
	c.Audit = audit.NewLogger(audit.SyncConfig(), rec)

	got, err := c.ValidateAndClean(context.Background(), "df = execute_sql_query('SELECT * FROM countries;')")
	if err != nil {
		t.Fatalf("ValidateAndClean failed: %v", err)
	}
	if got != "df = execute_sql_query('SELECT * FROM countries')" {
		t.Errorf("Unexpected result: %s", got)
	}

	_, err = c.ValidateAndClean(context.Background(), "import pandas as pd\ndf = pd.read_csv('countries.csv')\n")
	if !qerrors.IsSQLNotUsed(err) {
		t.Fatalf("Expected SQLNotUsedError, got %v", err)
	}
	if len(rec.entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(rec.entries))
	}
	if rec.entries[1].ErrorKind != qerrors.KindSQLNotUsed {
		t.Errorf("Expected error kind %s, got %s", qerrors.KindSQLNotUsed, rec.entries[1].ErrorKind)
	}
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
		body string
	}{
		{`"abc"`, true, "abc"},
		{`'abc'`, true, "abc"},
		{`r"a\b"`, true, `a\b`},
		{`"""x"""`, true, "x"},
		{`f"x{y}"`, false, ""},
		{`b"x"`, false, ""},
		{`x`, false, ""},
	}

	for _, tt := range tests {
		lit, ok := parseLiteral(tt.text)
		if ok != tt.ok {
			t.Errorf("parseLiteral(%s) ok = %v, expected %v", tt.text, ok, tt.ok)
			continue
		}
		if ok && lit.body != tt.body {
			t.Errorf("parseLiteral(%s) body = %q, expected %q", tt.text, lit.body, tt.body)
		}
		if ok && lit.with(lit.body) != tt.text {
			t.Errorf("parseLiteral(%s) does not rebuild the literal", tt.text)
		}
	}
}
