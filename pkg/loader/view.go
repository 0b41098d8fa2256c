package loader

import (
	"context"
	"fmt"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/core/sqlast"
	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/querybuilder"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// ViewLoader датасет, соединяющий другие датасеты.
// Локальные зависимости выполняются во встроенном движке, удаленные через
// адаптер общего источника.
type ViewLoader struct {
	base
	deps   map[string]Loader
	order  []string
	leaves []Loader
}

func newView(ctx context.Context, schema *semantic.Schema, path string, env *Env, visiting map[string]bool) (*ViewLoader, error) {
	if path == "" {
		return nil, qerrors.Constructionf("view %s needs a dataset path to resolve its dependencies", schema.Name)
	}
	org, _, err := semantic.ValidateDatasetPath(path)
	if err != nil {
		return nil, err
	}

	visiting[path] = true
	defer delete(visiting, path)

	v := &ViewLoader{deps: make(map[string]Loader)}
	builders := make(map[string]querybuilder.Builder)

	for _, name := range schema.Datasets() {
		depPath := org + "/" + semantic.UnderscoreToDash(name)
		if visiting[depPath] {
			return nil, qerrors.Constructionf("view %s has a circular dependency on %s", schema.Name, depPath)
		}

		depSchema, err := env.schemas().ResolveSchema(ctx, depPath)
		if err != nil {
			return nil, &qerrors.MissingDependencyError{Dataset: depPath, Err: err}
		}
		dep, err := newLoader(ctx, depSchema, depPath, env, visiting)
		if err != nil {
			return nil, err
		}

		v.deps[name] = dep
		v.order = append(v.order, name)
		builders[name] = dep.Builder()
		if nested, ok := dep.(*ViewLoader); ok {
			v.leaves = append(v.leaves, nested.leaves...)
		} else {
			v.leaves = append(v.leaves, dep)
		}
	}

	if err := checkCompatible(schema.Name, v.leaves); err != nil {
		return nil, err
	}

	var opts []querybuilder.Option
	if first := v.leafSource(); first.IsRemote() {
		if d, err := sqlast.DialectByName(first.Type); err == nil {
			opts = append(opts, querybuilder.WithDialect(d))
		}
	} else {
		opts = append(opts, querybuilder.WithDialect(sqlast.DuckDB))
	}

	v.base = base{
		schema:  schema,
		path:    path,
		builder: querybuilder.NewView(schema, builders, opts...),
		env:     env,
	}
	return v, nil
}

// checkCompatible все конечные источники должны соединяться в одном запросе
func checkCompatible(view string, leaves []Loader) error {
	if len(leaves) == 0 {
		return nil
	}
	first := leaves[0].Schema().Source
	for _, leaf := range leaves[1:] {
		if !first.Compatible(leaf.Schema().Source) {
			sources := make([]string, 0, len(leaves))
			seen := make(map[string]bool)
			for _, l := range leaves {
				label := fmt.Sprintf("%s:%s", l.Schema().Name, l.Schema().Source.Family())
				if !seen[label] {
					seen[label] = true
					sources = append(sources, label)
				}
			}
			return &qerrors.IncompatibleSourcesError{View: view, Sources: sources}
		}
	}
	return nil
}

func (v *ViewLoader) leafSource() *semantic.Source {
	if len(v.leaves) == 0 {
		return nil
	}
	return v.leaves[0].Schema().Source
}

// Dependencies загрузчики зависимостей в порядке упоминания в схеме
func (v *ViewLoader) Dependencies() []Loader {
	out := make([]Loader, 0, len(v.order))
	for _, name := range v.order {
		out = append(out, v.deps[name])
	}
	return out
}

// Local view выполняется во встроенном движке
func (v *ViewLoader) Local() bool {
	return !v.leafSource().IsRemote()
}

// ExecuteQuery проверяет и выполняет запрос в бэкенде источников view
func (v *ViewLoader) ExecuteQuery(ctx context.Context, query string, params ...any) (*adapters.Table, error) {
	if v.Local() {
		return v.run(ctx, "local", query, params, sanitizeLocal, v.executeLocal)
	}
	src := v.leafSource()
	check := func(q string) error { return sanitize(q, v.Dialect().Name) }
	return v.run(ctx, src.Type, query, params, check, v.executeRemote)
}

func (v *ViewLoader) executeLocal(ctx context.Context, query string, params []any) (*adapters.Table, error) {
	if v.env.Engine == nil {
		return nil, fmt.Errorf("view %s needs the embedded engine", v.schema.Name)
	}
	if err := v.Register(ctx); err != nil {
		return nil, err
	}
	return v.env.Engine.Query(ctx, sqlast.DuckDB.BindParams(query), params...)
}

func (v *ViewLoader) executeRemote(ctx context.Context, query string, params []any) (*adapters.Table, error) {
	leaf, ok := v.leaves[0].(*SQLLoader)
	if !ok {
		return nil, fmt.Errorf("view %s has no SQL dependency to execute on", v.schema.Name)
	}
	return leaf.execute(ctx, query, params)
}

// Register регистрирует локальные зависимости в движке по именам датасетов
func (v *ViewLoader) Register(ctx context.Context) error {
	for _, name := range v.order {
		switch dep := v.deps[name].(type) {
		case *LocalLoader:
			if err := dep.Register(ctx); err != nil {
				return fmt.Errorf("failed to register dependency %s: %w", name, err)
			}
		case *ViewLoader:
			if err := dep.Register(ctx); err != nil {
				return err
			}
			query, err := dep.builder.BuildQuery()
			if err != nil {
				return err
			}
			if err := v.env.Engine.RegisterView(ctx, dep.schema.Name, query); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load строит и выполняет запрос view
func (v *ViewLoader) Load(ctx context.Context) (*Dataset, error) {
	return load(ctx, v, v.env)
}
