// Package paginator переписывает построенный запрос под постраничный вывод:
// поиск по колонкам, фильтры IN, сортировка и LIMIT/OFFSET с параметрами.
package paginator

import (
	"strconv"
	"strings"

	"github.com/ruslano69/semlayer/pkg/qerrors"
	"github.com/ruslano69/semlayer/pkg/security"
)

// MaxPageSize максимальный размер страницы
const MaxPageSize = 100

// Params параметры запроса страницы.
// Filters JSON объект колонка -> значение или список значений.
type Params struct {
	Page      int    `json:"page" yaml:"page"`
	PageSize  int    `json:"page_size" yaml:"page_size"`
	Search    string `json:"search,omitempty" yaml:"search,omitempty"`
	SortBy    string `json:"sort_by,omitempty" yaml:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
	Filters   string `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Option настраивает Params
type Option func(*Params)

// WithSearch строка поиска по всем колонкам
func WithSearch(search string) Option {
	return func(p *Params) { p.Search = search }
}

// WithSort сортировка по колонке; order asc или desc
func WithSort(by, order string) Option {
	return func(p *Params) {
		p.SortBy = by
		p.SortOrder = order
	}
}

// WithFilters JSON фильтров
func WithFilters(filters string) Option {
	return func(p *Params) { p.Filters = filters }
}

// NewParams создает и проверяет параметры страницы
func NewParams(page, pageSize int, opts ...Option) (*Params, error) {
	p := &Params{Page: page, PageSize: pageSize}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate проверяет границы страницы, порядок сортировки и отсутствие SQL
// в текстовых параметрах
func (p *Params) Validate() error {
	if p.Page < 1 {
		return qerrors.Validation("page", strconv.Itoa(p.Page), "Input should be greater than or equal to 1")
	}
	if p.PageSize < 1 {
		return qerrors.Validation("page_size", strconv.Itoa(p.PageSize), "Input should be greater than or equal to 1")
	}
	if p.PageSize > MaxPageSize {
		return qerrors.Validation("page_size", strconv.Itoa(p.PageSize), "Input should be less than or equal to 100")
	}

	text := []struct {
		field string
		value string
	}{
		{"search", p.Search},
		{"filters", p.Filters},
		{"sort_by", p.SortBy},
		{"sort_order", p.SortOrder},
	}
	for _, f := range text {
		if f.value != "" && security.IsProbablySQL(f.value) {
			return qerrors.Validation(f.field, "", "SQL queries are not allowed in pagination parameters: "+f.value)
		}
	}

	if p.SortOrder != "" && p.SortOrder != "asc" && p.SortOrder != "desc" {
		return qerrors.Validation("sort_order", p.SortOrder, "String should match pattern '^(asc|desc)$'")
	}
	return nil
}

// Offset смещение первой строки страницы
func (p *Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// direction направление сортировки в SQL
func (p *Params) direction() string {
	return strings.ToUpper(p.SortOrder)
}
