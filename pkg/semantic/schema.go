package semantic

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ruslano69/semlayer/pkg/qerrors"
	"gopkg.in/yaml.v3"
)

// SchemaFileName имя файла схемы внутри каталога датасета
const SchemaFileName = "schema.yaml"

var (
	datasetNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
	pathPartRegex    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// LoadSchema читает схему из YAML файла
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema разбирает YAML, заполняет значения по умолчанию и валидирует схему
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s.SetDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return &s, nil
}

// MarshalSchema сериализует схему в YAML.
// ParseSchema(MarshalSchema(s)) дает структуру, идентичную s.
func MarshalSchema(s *Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveSchema пишет схему в файл
func SaveSchema(path string, s *Schema) error {
	data, err := MarshalSchema(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SetDefaults устанавливает значения по умолчанию для необязательных полей
func (s *Schema) SetDefaults() {
	if s.Source != nil {
		s.Source.Type = strings.ToLower(strings.TrimSpace(s.Source.Type))

		if c := s.Source.Connection; c != nil && c.Port == 0 && c.DSN == "" && c.Host != "" {
			switch s.Source.Type {
			case SourcePostgres:
				c.Port = 5432
			case SourceMySQL:
				c.Port = 3306
			case SourceMSSQL:
				c.Port = 1433
			}
		}
	}

	for i := range s.Columns {
		if s.Columns[i].Type == "" {
			s.Columns[i].Type = "string"
		}
	}
}

// Validate проверяет инварианты схемы
func (s *Schema) Validate() error {
	if s.Name == "" {
		return qerrors.Validation("name", "", "name is required")
	}
	if !datasetNameRegex.MatchString(s.Name) {
		return qerrors.Validation("name", s.Name,
			"Dataset name must be lowercase and use underscores instead of spaces.")
	}

	if s.View {
		if err := s.validateView(); err != nil {
			return err
		}
	} else if err := s.validateSource(); err != nil {
		return err
	}

	columns := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return qerrors.Validation(fmt.Sprintf("columns[%d].name", i), "", "column name is required")
		}
		if c.Type != "" && !ColumnTypes[c.Type] {
			return qerrors.Validation(fmt.Sprintf("columns[%d].type", i), c.Type, "unsupported column type")
		}
		columns[strings.ToLower(c.Name)] = true
	}

	for i, t := range s.Transformations {
		if !IsTransformationType(t.Type) {
			return qerrors.Validation(fmt.Sprintf("transformations[%d].type", i), t.Type,
				"unsupported transformation type")
		}
		if t.Params.Column != "" && len(columns) > 0 && !columns[strings.ToLower(t.Params.Column)] {
			return qerrors.Validation(fmt.Sprintf("transformations[%d].params.column", i), t.Params.Column,
				"transformation references an undeclared column")
		}
	}

	if len(s.GroupBy) > 0 {
		grouped := make(map[string]bool, len(s.GroupBy))
		for _, g := range s.GroupBy {
			grouped[strings.ToLower(g)] = true
		}
		for _, c := range s.Columns {
			if !grouped[strings.ToLower(c.Name)] && c.Expression == "" {
				return qerrors.Validation("group_by", c.Name,
					"columns outside group_by must define an aggregation expression")
			}
		}
	}

	if s.Limit != nil && *s.Limit < 0 {
		return qerrors.Validation("limit", fmt.Sprint(*s.Limit), "limit must be non-negative")
	}

	return nil
}

func (s *Schema) validateView() error {
	if s.Source != nil {
		return qerrors.Validation("source", s.Source.Type, "a view cannot have a source")
	}
	if len(s.Columns) == 0 {
		return qerrors.Validation("columns", "", "a view must define at least one column")
	}
	for i, c := range s.Columns {
		if !isDatasetRef(c.Name) {
			return qerrors.Validation(fmt.Sprintf("columns[%d].name", i), c.Name,
				"view columns must use the 'dataset.column' format")
		}
	}
	for i, r := range s.Relations {
		if !isDatasetRef(r.From) {
			return qerrors.Validation(fmt.Sprintf("relations[%d].from", i), r.From,
				"relations must use the 'dataset.column' format")
		}
		if !isDatasetRef(r.To) {
			return qerrors.Validation(fmt.Sprintf("relations[%d].to", i), r.To,
				"relations must use the 'dataset.column' format")
		}
	}

	datasets := make(map[string]bool)
	for _, c := range s.Columns {
		datasets[DatasetOf(c.Name)] = true
	}
	if len(datasets) > 1 && len(s.Relations) == 0 {
		return qerrors.Validation("relations", "", "a view over several datasets must define relations")
	}
	return nil
}

func (s *Schema) validateSource() error {
	if s.Source == nil {
		return qerrors.Validation("source", "", "source is required for a non-view dataset")
	}
	src := s.Source
	switch {
	case src.IsLocal():
		if src.Path == "" {
			return qerrors.Validation("source.path", "", fmt.Sprintf("path is required for type '%s'", src.Type))
		}
	case src.IsRemote():
		if src.Table == "" && src.Query == "" {
			return qerrors.Validation("source.table", "", fmt.Sprintf("table or query is required for type '%s'", src.Type))
		}
		if src.Connection == nil {
			return qerrors.Validation("source.connection", "", fmt.Sprintf("connection is required for type '%s'", src.Type))
		}
	default:
		return qerrors.Validation("source.type", src.Type,
			"unsupported type, must be one of: csv, parquet, postgres, mysql, sqlite, mssql")
	}
	return nil
}

func isDatasetRef(ref string) bool {
	parts := strings.Split(ref, ".")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// ValidateDatasetPath проверяет путь "org/dataset" и возвращает его части
func ValidateDatasetPath(path string) (org, dataset string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return "", "", qerrors.Validation("path", path, "path must be in format 'organization/dataset'")
	}
	org, dataset = parts[0], parts[1]
	if !pathPartRegex.MatchString(org) {
		return "", "", qerrors.Validation("path", path,
			"organization name must be lowercase and use hyphens instead of spaces")
	}
	if !pathPartRegex.MatchString(dataset) {
		return "", "", qerrors.Validation("path", path,
			"dataset name must be lowercase and use hyphens instead of spaces")
	}
	return org, dataset, nil
}

// UnderscoreToDash переводит "org/my_dataset" в "org/my-dataset"
func UnderscoreToDash(path string) string {
	return strings.ReplaceAll(path, "_", "-")
}

// SchemaPath путь к schema.yaml датасета внутри каталога датасетов
func SchemaPath(datasetsDir, datasetPath string) string {
	return filepath.Join(datasetsDir, filepath.FromSlash(datasetPath), SchemaFileName)
}
