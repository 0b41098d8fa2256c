package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruslano69/semlayer/pkg/adapters"
	"github.com/ruslano69/semlayer/pkg/querybuilder"
	"github.com/ruslano69/semlayer/pkg/semantic"
)

// SQLLoader датасет из таблицы или запроса удаленной SQL базы.
// Адаптер разрешается при первом выполнении.
type SQLLoader struct {
	base
	mu      sync.Mutex
	adapter adapters.Adapter
}

func newSQL(schema *semantic.Schema, path string, env *Env) (*SQLLoader, error) {
	return &SQLLoader{base: base{
		schema:  schema,
		path:    path,
		builder: querybuilder.NewSQL(schema),
		env:     env,
	}}, nil
}

// Adapter адаптер источника
func (l *SQLLoader) Adapter(ctx context.Context) (adapters.Adapter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.adapter != nil {
		return l.adapter, nil
	}
	if l.env.Connections == nil {
		return nil, fmt.Errorf("no connection resolver configured for %s", l.schema.Source.Type)
	}
	a, err := l.env.Connections.Resolve(ctx, l.schema.Source)
	if err != nil {
		return nil, err
	}
	l.adapter = a
	return a, nil
}

// ExecuteQuery проверяет запрос в диалекте источника и выполняет его
func (l *SQLLoader) ExecuteQuery(ctx context.Context, query string, params ...any) (*adapters.Table, error) {
	check := func(q string) error { return sanitize(q, l.Dialect().Name) }
	return l.run(ctx, l.schema.Source.Type, query, params, check, l.execute)
}

func (l *SQLLoader) execute(ctx context.Context, query string, params []any) (*adapters.Table, error) {
	a, err := l.Adapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.Query(ctx, a.Dialect().BindParams(query), params...)
}

// Load строит и выполняет основной запрос
func (l *SQLLoader) Load(ctx context.Context) (*Dataset, error) {
	return load(ctx, l, l.env)
}
