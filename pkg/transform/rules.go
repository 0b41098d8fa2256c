package transform

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// emailPattern базовая проверка адреса электронной почты
const emailPattern = `^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`

// ErrBinsLabels bins должно быть ровно на одно больше, чем labels
var ErrBinsLabels = errors.New("Bins and labels lengths do not match the expected configuration.")

// refName имя таблицы или колонки для validate_foreign_key
var refName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var builtinRules = map[string]RuleFunc{
	"anonymize": func(expr string, _ semantic.Params) (string, error) {
		return "MD5(" + expr + ")", nil
	},
	"fill_na":                fillNA,
	"map_values":             mapValues,
	"to_lowercase":           wrap("LOWER"),
	"to_uppercase":           wrap("UPPER"),
	"round_numbers":          roundNumbers,
	"format_date":            formatDate,
	"truncate":               truncate,
	"scale":                  scale,
	"normalize":              normalize,
	"standardize":            standardize,
	"convert_timezone":       convertTimezone,
	"strip":                  wrap("TRIM"),
	"to_numeric":             toNumeric,
	"to_datetime":            toDatetime,
	"replace":                replace,
	"extract":                extract,
	"pad":                    pad,
	"clip":                   clip,
	"bin":                    bin,
	"validate_email":         validateEmail,
	"validate_date_range":    validateDateRange,
	"normalize_phone":        normalizePhone,
	"remove_duplicates":      removeDuplicates,
	"validate_foreign_key":   validateForeignKey,
	"ensure_positive":        ensurePositive,
	"standardize_categories": standardizeCategories,
	"rename":                 rename,
}

func wrap(fn string) RuleFunc {
	return func(expr string, _ semantic.Params) (string, error) {
		return fn + "(" + expr + ")", nil
	}
}

func quote(s string) string {
	return sqlast.QuoteLiteral(s)
}

// numeric проверяет, что значение числовое, и возвращает его SQL запись
func numeric(v any, name string) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("Parameter %s must be numeric, got %v", name, n)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case float32:
		return numeric(float64(n), name)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("Parameter %s must be numeric, got %q", name, n)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("Parameter %s must be numeric, got %T", name, v)
}

// integer числовой параметр, усеченный до целого; def используется для отсутствующего или нулевого значения
func integer(s semantic.Scalar, def int, name string) (int, error) {
	if !s.IsSet() || s.Value() == nil {
		return def, nil
	}
	text, err := numeric(s.Value(), name)
	if err != nil {
		return 0, err
	}
	f, _ := strconv.ParseFloat(text, 64)
	if f == 0 {
		return def, nil
	}
	return int(f), nil
}

func fillNA(expr string, p semantic.Params) (string, error) {
	var value string
	if s, ok := p.Value.Value().(string); ok {
		value = quote(s)
	} else {
		n, err := numeric(p.Value.Value(), "value")
		if err != nil {
			return "", err
		}
		value = n
	}
	return "COALESCE(" + expr + ", " + value + ")", nil
}

func mapValues(expr string, p semantic.Params) (string, error) {
	if len(p.Mapping) == 0 {
		return expr, nil
	}
	whens := make([]string, 0, len(p.Mapping))
	for _, e := range p.Mapping {
		whens = append(whens, "WHEN "+expr+" = "+quote(e.Key)+" THEN "+quote(e.Value))
	}
	return "CASE " + strings.Join(whens, " ") + " ELSE " + expr + " END", nil
}

func roundNumbers(expr string, p semantic.Params) (string, error) {
	decimals, err := integer(p.Decimals, 0, "decimals")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ROUND(%s, %d)", expr, decimals), nil
}

func formatDate(expr string, p semantic.Params) (string, error) {
	format := p.Format
	if format == "" {
		format = "%Y-%m-%d"
	}
	return "DATE_FORMAT(" + expr + ", " + quote(format) + ")", nil
}

func truncate(expr string, p semantic.Params) (string, error) {
	length, err := integer(p.Length, 10, "length")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LEFT(%s, %d)", expr, length), nil
}

func scale(expr string, p semantic.Params) (string, error) {
	factor := "1"
	if p.Factor.IsSet() && p.Factor.Value() != nil {
		n, err := numeric(p.Factor.Value(), "factor")
		if err != nil {
			return "", err
		}
		if n != "0" {
			factor = n
		}
	}
	return "(" + expr + " * " + factor + ")", nil
}

func normalize(expr string, _ semantic.Params) (string, error) {
	return fmt.Sprintf("((%[1]s - MIN(%[1]s)) / (MAX(%[1]s) - MIN(%[1]s)))", expr), nil
}

func standardize(expr string, _ semantic.Params) (string, error) {
	return fmt.Sprintf("((%[1]s - AVG(%[1]s)) / STDDEV(%[1]s))", expr), nil
}

func convertTimezone(expr string, p semantic.Params) (string, error) {
	from, to := p.FromTZ, p.ToTZ
	if from == "" {
		from = "UTC"
	}
	if to == "" {
		to = "UTC"
	}
	return "CONVERT_TZ(" + expr + ", " + quote(from) + ", " + quote(to) + ")", nil
}

func toNumeric(expr string, _ semantic.Params) (string, error) {
	return "CAST(" + expr + " AS DECIMAL)", nil
}

func toDatetime(expr string, p semantic.Params) (string, error) {
	format := p.Format
	if format == "" {
		format = "%Y-%m-%d"
	}
	return "STR_TO_DATE(" + expr + ", " + quote(format) + ")", nil
}

func replace(expr string, p semantic.Params) (string, error) {
	return "REPLACE(" + expr + ", " + quote(p.OldValue) + ", " + quote(p.NewValue) + ")", nil
}

func extract(expr string, p semantic.Params) (string, error) {
	return "REGEXP_SUBSTR(" + expr + ", " + quote(p.Pattern) + ")", nil
}

func pad(expr string, p semantic.Params) (string, error) {
	width, err := integer(p.Width, 10, "width")
	if err != nil {
		return "", err
	}
	padChar := p.PadChar
	if padChar == "" {
		padChar = " "
	}
	fn := "LPAD"
	if p.Side != "" && !strings.EqualFold(p.Side, "left") {
		fn = "RPAD"
	}
	return fmt.Sprintf("%s(%s, %d, %s)", fn, expr, width, quote(padChar)), nil
}

func clip(expr string, p semantic.Params) (string, error) {
	lower, err := numeric(p.Lower.Value(), "lower")
	if err != nil {
		return "", err
	}
	upper, err := numeric(p.Upper.Value(), "upper")
	if err != nil {
		return "", err
	}
	return "LEAST(GREATEST(" + expr + ", " + lower + "), " + upper + ")", nil
}

func bin(expr string, p semantic.Params) (string, error) {
	if len(p.Bins) == 0 || len(p.Labels) == 0 || len(p.Bins) != len(p.Labels)+1 {
		return "", ErrBinsLabels
	}
	bins := make([]string, len(p.Bins))
	for i, b := range p.Bins {
		n, err := numeric(b, fmt.Sprintf("bins[%d]", i))
		if err != nil {
			return "", err
		}
		bins[i] = n
	}
	var b strings.Builder
	b.WriteString("CASE ")
	for i, label := range p.Labels {
		fmt.Fprintf(&b, "WHEN %s >= %s AND %s < %s THEN %s ", expr, bins[i], expr, bins[i+1], quote(label))
	}
	b.WriteString("ELSE " + expr + " END")
	return b.String(), nil
}

func validateEmail(expr string, _ semantic.Params) (string, error) {
	return "CASE WHEN REGEXP_MATCHES(" + expr + ", " + quote(emailPattern) + ") THEN " + expr + " ELSE NULL END", nil
}

func validateDateRange(expr string, p semantic.Params) (string, error) {
	return "CASE WHEN " + expr + " BETWEEN " + quote(p.StartDate) + " AND " + quote(p.EndDate) +
		" THEN " + expr + " ELSE NULL END", nil
}

func normalizePhone(expr string, p semantic.Params) (string, error) {
	code := p.CountryCode
	if code == "" {
		code = "+1"
	}
	return "CONCAT(" + quote(code) + ", REGEXP_REPLACE(" + expr + ", '[^0-9]', ''))", nil
}

// removeDuplicates не меняет выражение, DISTINCT добавляется на уровне запроса
func removeDuplicates(expr string, _ semantic.Params) (string, error) {
	return expr, nil
}

func validateForeignKey(expr string, p semantic.Params) (string, error) {
	if !refName.MatchString(p.RefTable) {
		return "", fmt.Errorf("invalid ref_table %q", p.RefTable)
	}
	if !refName.MatchString(p.RefColumn) {
		return "", fmt.Errorf("invalid ref_column %q", p.RefColumn)
	}
	return "CASE WHEN " + expr + " IN (SELECT " + p.RefColumn + " FROM " + p.RefTable + ") THEN " + expr + " ELSE NULL END", nil
}

func ensurePositive(expr string, _ semantic.Params) (string, error) {
	return "CASE WHEN " + expr + " > 0 THEN " + expr + " ELSE NULL END", nil
}

func standardizeCategories(expr string, p semantic.Params) (string, error) {
	if len(p.Mapping) == 0 {
		return expr, nil
	}
	whens := make([]string, 0, len(p.Mapping))
	for _, e := range p.Mapping {
		whens = append(whens, "WHEN LOWER("+expr+") = LOWER("+quote(e.Key)+") THEN "+quote(e.Value))
	}
	return "CASE " + strings.Join(whens, " ") + " ELSE " + expr + " END", nil
}

func rename(expr string, p semantic.Params) (string, error) {
	return expr + " AS " + quote(p.NewName), nil
}
