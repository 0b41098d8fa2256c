// Package semantic описывает декларативную схему датасета семантического слоя:
// колонки, источник, связи view, группировку, сортировку и трансформации.
package semantic

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Типы локальных источников (файлы, читаемые встроенным движком)
const (
	SourceCSV     = "csv"
	SourceParquet = "parquet"
)

// Типы удаленных SQL источников
const (
	SourcePostgres = "postgres"
	SourceMySQL    = "mysql"
	SourceSQLite   = "sqlite"
	SourceMSSQL    = "mssql"
)

// LocalSourceTypes источники, которые читает встроенный движок
var LocalSourceTypes = map[string]bool{
	SourceCSV:     true,
	SourceParquet: true,
}

// RemoteSourceTypes источники, которые выполняются через SQL драйвер
var RemoteSourceTypes = map[string]bool{
	SourcePostgres: true,
	SourceMySQL:    true,
	SourceSQLite:   true,
	SourceMSSQL:    true,
}

// ColumnTypes допустимые логические типы колонок
var ColumnTypes = map[string]bool{
	"string":   true,
	"integer":  true,
	"number":   true,
	"float":    true,
	"datetime": true,
	"boolean":  true,
	"uuid":     true,
}

// TransformationTypes фиксированный реестр типов трансформаций
var TransformationTypes = []string{
	"anonymize",
	"fill_na",
	"map_values",
	"to_lowercase",
	"to_uppercase",
	"round_numbers",
	"format_date",
	"truncate",
	"scale",
	"normalize",
	"standardize",
	"convert_timezone",
	"strip",
	"to_numeric",
	"to_datetime",
	"replace",
	"extract",
	"pad",
	"clip",
	"bin",
	"validate_email",
	"validate_date_range",
	"normalize_phone",
	"remove_duplicates",
	"validate_foreign_key",
	"ensure_positive",
	"standardize_categories",
	"rename",
}

// IsTransformationType проверяет, что тип есть в реестре
func IsTransformationType(t string) bool {
	for _, known := range TransformationTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Schema описывает логический датасет
type Schema struct {
	Name            string           `yaml:"name"`
	Description     string           `yaml:"description,omitempty"`
	Source          *Source          `yaml:"source,omitempty"`
	View            bool             `yaml:"view,omitempty"`
	Columns         []Column         `yaml:"columns,omitempty"`
	Relations       []Relation       `yaml:"relations,omitempty"`
	GroupBy         []string         `yaml:"group_by,omitempty"`
	OrderBy         []string         `yaml:"order_by,omitempty"`
	Limit           *int             `yaml:"limit,omitempty"`
	Transformations []Transformation `yaml:"transformations,omitempty"`
}

// Column описывает колонку датасета
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
	Expression  string `yaml:"expression,omitempty"`
	Alias       string `yaml:"alias,omitempty"`
}

// Relation описывает условие соединения "dataset.column" -> "dataset.column"
type Relation struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
}

// Source описывает где лежат сырые данные
type Source struct {
	Type       string      `yaml:"type"`
	Path       string      `yaml:"path,omitempty"`
	Table      string      `yaml:"table,omitempty"`
	Query      string      `yaml:"query,omitempty"`
	Connection *Connection `yaml:"connection,omitempty"`
}

// Connection параметры подключения к удаленному SQL источнику.
// Name ссылается на именованное подключение из конфигурации приложения.
type Connection struct {
	Name     string `yaml:"name,omitempty"`
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// Transformation правило переписывания колонки
type Transformation struct {
	Type   string `yaml:"type"`
	Params Params `yaml:"params,omitempty"`
}

// Params типизированный набор параметров трансформации.
// Числовые параметры хранятся как Scalar и проверяются при компиляции выражения.
type Params struct {
	Column      string   `yaml:"column,omitempty"`
	Value       Scalar   `yaml:"value,omitempty"`
	Mapping     Mapping  `yaml:"mapping,omitempty"`
	Format      string   `yaml:"format,omitempty"`
	Decimals    Scalar   `yaml:"decimals,omitempty"`
	Length      Scalar   `yaml:"length,omitempty"`
	Factor      Scalar   `yaml:"factor,omitempty"`
	FromTZ      string   `yaml:"from_tz,omitempty"`
	ToTZ        string   `yaml:"to_tz,omitempty"`
	OldValue    string   `yaml:"old_value,omitempty"`
	NewValue    string   `yaml:"new_value,omitempty"`
	Pattern     string   `yaml:"pattern,omitempty"`
	Width       Scalar   `yaml:"width,omitempty"`
	Side        string   `yaml:"side,omitempty"`
	PadChar     string   `yaml:"pad_char,omitempty"`
	Lower       Scalar   `yaml:"lower,omitempty"`
	Upper       Scalar   `yaml:"upper,omitempty"`
	Bins        []any    `yaml:"bins,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	StartDate   string   `yaml:"start_date,omitempty"`
	EndDate     string   `yaml:"end_date,omitempty"`
	CountryCode string   `yaml:"country_code,omitempty"`
	RefTable    string   `yaml:"ref_table,omitempty"`
	RefColumn   string   `yaml:"ref_column,omitempty"`
	NewName     string   `yaml:"new_name,omitempty"`
}

// Scalar значение параметра произвольного YAML типа.
// Отличает явно заданный ноль от отсутствующего параметра.
type Scalar struct {
	v   any
	set bool
}

// ScalarOf создает заданное значение
func ScalarOf(v any) Scalar {
	return Scalar{v: v, set: true}
}

// Value возвращает значение или nil
func (s Scalar) Value() any {
	return s.v
}

// IsSet параметр присутствует в схеме
func (s Scalar) IsSet() bool {
	return s.set
}

// IsZero используется yaml для omitempty
func (s Scalar) IsZero() bool {
	return !s.set
}

// UnmarshalYAML читает скалярное значение
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	s.v = v
	s.set = true
	return nil
}

// MarshalYAML пишет исходное значение
func (s Scalar) MarshalYAML() (any, error) {
	return s.v, nil
}

// MapEntry пара ключ-значение в упорядоченном отображении
type MapEntry struct {
	Key   string
	Value string
}

// Mapping упорядоченное отображение; порядок ключей из YAML сохраняется,
// поэтому CASE/WHEN цепочки генерируются детерминированно
type Mapping []MapEntry

// UnmarshalYAML читает YAML mapping с сохранением порядка ключей
func (m *Mapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("mapping must be a YAML mapping, got line %d", node.Line)
	}
	out := make(Mapping, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, value string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("mapping key at line %d: %w", node.Content[i].Line, err)
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("mapping value for '%s': %w", key, err)
		}
		out = append(out, MapEntry{Key: key, Value: value})
	}
	*m = out
	return nil
}

// MarshalYAML пишет отображение в исходном порядке
func (m Mapping) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Value},
		)
	}
	return node, nil
}

// MappingFrom строит Mapping из map с сортировкой ключей
func MappingFrom(values map[string]string) Mapping {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Mapping, 0, len(keys))
	for _, k := range keys {
		out = append(out, MapEntry{Key: k, Value: values[k]})
	}
	return out
}

// IsLocal источник читается встроенным движком
func (s *Source) IsLocal() bool {
	return s != nil && LocalSourceTypes[s.Type]
}

// IsRemote источник выполняется через SQL драйвер
func (s *Source) IsRemote() bool {
	return s != nil && RemoteSourceTypes[s.Type]
}

// Compatible проверяет, можно ли соединять источники в одном запросе.
// Все локальные источники совместимы между собой; удаленные совместимы
// при совпадении типа и параметров подключения.
func (s *Source) Compatible(other *Source) bool {
	if s == nil || other == nil {
		return false
	}
	if s.IsLocal() && other.IsLocal() {
		return true
	}
	if s.IsRemote() && other.IsRemote() {
		if s.Type != other.Type {
			return false
		}
		return s.Connection.Equal(other.Connection)
	}
	return false
}

// Family семейство бэкенда: "local" или тип удаленного источника
func (s *Source) Family() string {
	if s.IsLocal() {
		return "local"
	}
	if s == nil {
		return ""
	}
	return s.Type
}

// Equal сравнивает параметры подключения
func (c *Connection) Equal(other *Connection) bool {
	if c == nil || other == nil {
		return c == other
	}
	return *c == *other
}

// DatasetOf возвращает префикс датасета из "dataset.column"
func DatasetOf(ref string) string {
	if i := strings.Index(ref, "."); i >= 0 {
		return ref[:i]
	}
	return ref
}

// Datasets возвращает датасеты, на которые ссылается view, в порядке появления:
// сначала из связей, затем из колонок
func (s *Schema) Datasets() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ref string) {
		name := DatasetOf(ref)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, r := range s.Relations {
		add(r.From)
		add(r.To)
	}
	for _, c := range s.Columns {
		add(c.Name)
	}
	return out
}

// HasTransformation проверяет наличие трансформации данного типа
func (s *Schema) HasTransformation(kind string) bool {
	for _, t := range s.Transformations {
		if t.Type == kind {
			return true
		}
	}
	return false
}
