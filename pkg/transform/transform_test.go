package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/semantic"
	"github.com/ruslano69/semlayer/pkg/sqlparse"
)

func tr(kind string, p semantic.Params) semantic.Transformation {
	return semantic.Transformation{Type: kind, Params: p}
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name string
		expr string
		t    semantic.Transformation
		want string
	}{
		{"anonymize", "user_email", tr("anonymize", semantic.Params{}), "MD5(user_email)"},
		{"fill_na numeric", "salary", tr("fill_na", semantic.Params{Value: semantic.ScalarOf(0)}), "COALESCE(salary, 0)"},
		{"fill_na string", "city", tr("fill_na", semantic.Params{Value: semantic.ScalarOf("O'Hare")}), "COALESCE(city, 'O''Hare')"},
		{"map_values", "status", tr("map_values", semantic.Params{Mapping: semantic.Mapping{{Key: "A", Value: "Active"}, {Key: "I", Value: "Inactive"}}}),
			"CASE WHEN status = 'A' THEN 'Active' WHEN status = 'I' THEN 'Inactive' ELSE status END"},
		{"map_values empty", "status", tr("map_values", semantic.Params{}), "status"},
		{"to_lowercase", "username", tr("to_lowercase", semantic.Params{}), "LOWER(username)"},
		{"to_uppercase", "username", tr("to_uppercase", semantic.Params{}), "UPPER(username)"},
		{"round_numbers", "price", tr("round_numbers", semantic.Params{Decimals: semantic.ScalarOf(2)}), "ROUND(price, 2)"},
		{"round_numbers default", "price", tr("round_numbers", semantic.Params{}), "ROUND(price, 0)"},
		{"format_date", "created_at", tr("format_date", semantic.Params{Format: "%Y-%m-%d"}), "DATE_FORMAT(created_at, '%Y-%m-%d')"},
		{"truncate", "description", tr("truncate", semantic.Params{Length: semantic.ScalarOf(100)}), "LEFT(description, 100)"},
		{"truncate default", "description", tr("truncate", semantic.Params{}), "LEFT(description, 10)"},
		{"scale", "temperature", tr("scale", semantic.Params{Factor: semantic.ScalarOf(1.8)}), "(temperature * 1.8)"},
		{"scale default", "temperature", tr("scale", semantic.Params{}), "(temperature * 1)"},
		{"normalize", "score", tr("normalize", semantic.Params{}), "((score - MIN(score)) / (MAX(score) - MIN(score)))"},
		{"standardize", "score", tr("standardize", semantic.Params{}), "((score - AVG(score)) / STDDEV(score))"},
		{"convert_timezone", "event_time", tr("convert_timezone", semantic.Params{FromTZ: "UTC", ToTZ: "America/New_York"}),
			"CONVERT_TZ(event_time, 'UTC', 'America/New_York')"},
		{"convert_timezone default", "event_time", tr("convert_timezone", semantic.Params{}), "CONVERT_TZ(event_time, 'UTC', 'UTC')"},
		{"strip", "text_field", tr("strip", semantic.Params{}), "TRIM(text_field)"},
		{"to_numeric", "string_number", tr("to_numeric", semantic.Params{}), "CAST(string_number AS DECIMAL)"},
		{"to_datetime", "date_string", tr("to_datetime", semantic.Params{Format: "%Y-%m-%d %H:%i:%s"}), "STR_TO_DATE(date_string, '%Y-%m-%d %H:%i:%s')"},
		{"replace", "text", tr("replace", semantic.Params{OldValue: "old", NewValue: "new"}), "REPLACE(text, 'old', 'new')"},
		{"extract", "text", tr("extract", semantic.Params{Pattern: "[0-9]+"}), "REGEXP_SUBSTR(text, '[0-9]+')"},
		{"pad left", "code", tr("pad", semantic.Params{Width: semantic.ScalarOf(5), Side: "left", PadChar: "0"}), "LPAD(code, 5, '0')"},
		{"pad right", "code", tr("pad", semantic.Params{Width: semantic.ScalarOf(5), Side: "right", PadChar: " "}), "RPAD(code, 5, ' ')"},
		{"clip", "temperature", tr("clip", semantic.Params{Lower: semantic.ScalarOf(0), Upper: semantic.ScalarOf(100)}), "LEAST(GREATEST(temperature, 0), 100)"},
		{"bin", "age", tr("bin", semantic.Params{Bins: []any{0, 18, 35, 50, 100}, Labels: []string{"child", "young", "adult", "senior"}}),
			"CASE WHEN age >= 0 AND age < 18 THEN 'child' " +
				"WHEN age >= 18 AND age < 35 THEN 'young' " +
				"WHEN age >= 35 AND age < 50 THEN 'adult' " +
				"WHEN age >= 50 AND age < 100 THEN 'senior' " +
				"ELSE age END"},
		{"validate_date_range", "event_date", tr("validate_date_range", semantic.Params{StartDate: "2023-01-01", EndDate: "2023-12-31"}),
			"CASE WHEN event_date BETWEEN '2023-01-01' AND '2023-12-31' THEN event_date ELSE NULL END"},
		{"normalize_phone", "phone", tr("normalize_phone", semantic.Params{CountryCode: "+44"}), "CONCAT('+44', REGEXP_REPLACE(phone, '[^0-9]', ''))"},
		{"normalize_phone default", "phone", tr("normalize_phone", semantic.Params{}), "CONCAT('+1', REGEXP_REPLACE(phone, '[^0-9]', ''))"},
		{"remove_duplicates", "value", tr("remove_duplicates", semantic.Params{}), "value"},
		{"validate_foreign_key", "user_id", tr("validate_foreign_key", semantic.Params{RefTable: "users", RefColumn: "id"}),
			"CASE WHEN user_id IN (SELECT id FROM users) THEN user_id ELSE NULL END"},
		{"ensure_positive", "quantity", tr("ensure_positive", semantic.Params{}), "CASE WHEN quantity > 0 THEN quantity ELSE NULL END"},
		{"standardize_categories", "category", tr("standardize_categories", semantic.Params{Mapping: semantic.Mapping{{Key: "cat", Value: "Category"}, {Key: "prod", Value: "Product"}}}),
			"CASE WHEN LOWER(category) = LOWER('cat') THEN 'Category' WHEN LOWER(category) = LOWER('prod') THEN 'Product' ELSE category END"},
		{"rename", "old_name", tr("rename", semantic.Params{NewName: "new_name"}), "old_name AS 'new_name'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.expr, []semantic.Transformation{tt.t})
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestRulesProduceValidSQL каждое выражение разбирается как часть SELECT
func TestRulesProduceValidSQL(t *testing.T) {
	transformations := []semantic.Transformation{
		tr("anonymize", semantic.Params{}),
		tr("map_values", semantic.Params{Mapping: semantic.Mapping{{Key: "A", Value: "Active"}}}),
		tr("normalize", semantic.Params{}),
		tr("bin", semantic.Params{Bins: []any{0, 10}, Labels: []string{"low"}}),
		tr("validate_email", semantic.Params{}),
		tr("normalize_phone", semantic.Params{}),
		tr("validate_foreign_key", semantic.Params{RefTable: "users", RefColumn: "id"}),
	}

	for _, tf := range transformations {
		t.Run(tf.Type, func(t *testing.T) {
			expr, err := Apply(`"col"`, []semantic.Transformation{tf})
			require.NoError(t, err)
			_, err = sqlparse.Parse("SELECT "+expr+" FROM t", "duckdb")
			require.NoError(t, err, "expression %s must parse", expr)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	got, err := Apply("email", []semantic.Transformation{tr("validate_email", semantic.Params{})})
	require.NoError(t, err)
	if !strings.Contains(got, "REGEXP") || !strings.Contains(got, "email") {
		t.Errorf("Expected REGEXP check over email, got %s", got)
	}
	if !strings.HasSuffix(got, "THEN email ELSE NULL END") {
		t.Errorf("Expected NULL on failure, got %s", got)
	}
}

func TestApplyChain(t *testing.T) {
	got, err := Apply("user_data", []semantic.Transformation{
		tr("to_lowercase", semantic.Params{}),
		tr("truncate", semantic.Params{Length: semantic.ScalarOf(5)}),
	})
	require.NoError(t, err)
	require.Equal(t, "LEFT(LOWER(user_data), 5)", got)

	got, err = Apply("column_name", nil)
	require.NoError(t, err)
	require.Equal(t, "column_name", got)
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		t       semantic.Transformation
		message string
	}{
		{"unknown type", tr("non_existent", semantic.Params{}), "Unsupported transformation type"},
		{"bins mismatch", tr("bin", semantic.Params{Bins: []any{0, 18}, Labels: []string{"a", "b"}}), "Bins and labels lengths do not match"},
		{"bins empty", tr("bin", semantic.Params{Labels: []string{"a"}}), "Bins and labels lengths do not match"},
		{"bins not numeric", tr("bin", semantic.Params{Bins: []any{0, "ten"}, Labels: []string{"a"}}), "Parameter bins[1] must be numeric"},
		{"fill_na not numeric", tr("fill_na", semantic.Params{Value: semantic.ScalarOf([]any{1})}), "Parameter value must be numeric"},
		{"clip missing bound", tr("clip", semantic.Params{Lower: semantic.ScalarOf(0)}), "Parameter upper must be numeric"},
		{"round not numeric", tr("round_numbers", semantic.Params{Decimals: semantic.ScalarOf("two")}), "Parameter decimals must be numeric"},
		{"foreign key injection", tr("validate_foreign_key", semantic.Params{RefTable: "users; DROP TABLE x", RefColumn: "id"}), "invalid ref_table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply("x", []semantic.Transformation{tt.t})
			require.Error(t, err)
			require.True(t, qerrors.IsConstruction(err), "expected construction error, got %T", err)
			require.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestStringParamsEscaped(t *testing.T) {
	got, err := Apply("x", []semantic.Transformation{
		tr("replace", semantic.Params{OldValue: "'; DROP TABLE users; --", NewValue: "y"}),
	})
	require.NoError(t, err)
	require.Equal(t, "REPLACE(x, '''; DROP TABLE users; --', 'y')", got)
}

func TestForColumn(t *testing.T) {
	all := []semantic.Transformation{
		tr("anonymize", semantic.Params{Column: "Email"}),
		tr("to_lowercase", semantic.Params{Column: "name"}),
		tr("strip", semantic.Params{Column: "email"}),
		tr("remove_duplicates", semantic.Params{}),
	}

	got := ForColumn("email", all)
	require.Len(t, got, 2)
	require.Equal(t, "anonymize", got[0].Type)
	require.Equal(t, "strip", got[1].Type)

	expr, err := ApplyColumn(`"email"`, "email", all)
	require.NoError(t, err)
	require.Equal(t, `TRIM(MD5("email"))`, expr)

	require.True(t, HasDistinct(all))
	require.False(t, HasDistinct(all[:3]))
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("reverse", func(expr string, _ semantic.Params) (string, error) {
		return "REVERSE(" + expr + ")", nil
	})

	got, err := r.Apply("name", []semantic.Transformation{tr("reverse", semantic.Params{})})
	require.NoError(t, err)
	require.Equal(t, "REVERSE(name)", got)

	// реестр по умолчанию не изменился
	_, err = Apply("name", []semantic.Transformation{tr("reverse", semantic.Params{})})
	require.Error(t, err)

	require.NoError(t, r.Validate([]semantic.Transformation{tr("reverse", semantic.Params{}), tr("strip", semantic.Params{})}))
}
