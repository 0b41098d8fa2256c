package querybuilder

import (
	"path/filepath"

	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// Local построитель для CSV и Parquet файлов, читаемых встроенным движком
type Local struct {
	*Base
	datasetDir string
}

// NewLocal создает построитель для локального источника.
// Относительный source.path разрешается от каталога датасета.
func NewLocal(schema *semantic.Schema, datasetDir string, opts ...Option) *Local {
	l := &Local{Base: NewBase(schema, opts...), datasetDir: datasetDir}
	l.from = l.tableExpr
	return l
}

// Path полный путь к файлу источника
func (l *Local) Path() string {
	src := l.schema.Source
	if src == nil {
		return ""
	}
	if filepath.IsAbs(src.Path) || l.datasetDir == "" {
		return src.Path
	}
	return filepath.Join(l.datasetDir, src.Path)
}

func (l *Local) tableExpr() (sqlast.TableExpr, error) {
	src := l.schema.Source
	if !src.IsLocal() {
		return nil, qerrors.Constructionf("dataset %s has no local source", l.schema.Name)
	}
	fn := "READ_CSV"
	if src.Type == semantic.SourceParquet {
		fn = "READ_PARQUET"
	}
	return &sqlast.FuncTable{Name: fn, Args: []sqlast.Expr{sqlast.String(l.Path())}}, nil
}

// SQL построитель для таблицы или запроса удаленного SQL источника
type SQL struct {
	*Base
}

// NewSQL создает построитель; диалект выводится из типа источника
func NewSQL(schema *semantic.Schema, opts ...Option) *SQL {
	var all []Option
	if schema.Source != nil {
		if d, err := sqlast.DialectByName(schema.Source.Type); err == nil {
			all = append(all, WithDialect(d))
		}
	}
	s := &SQL{Base: NewBase(schema, append(all, opts...)...)}
	s.from = s.tableExpr
	return s
}

func (s *SQL) tableExpr() (sqlast.TableExpr, error) {
	src := s.schema.Source
	if !src.IsRemote() {
		return nil, qerrors.Constructionf("dataset %s has no SQL source", s.schema.Name)
	}
	if src.Table != "" {
		return sqlast.TableNamed(src.Table), nil
	}
	if src.Query != "" {
		return &sqlast.Subquery{Query: &sqlast.RawQuery{SQL: src.Query}, Alias: s.schema.Name}, nil
	}
	return nil, qerrors.Constructionf("dataset %s source has neither table nor query", s.schema.Name)
}
