// Package audit журнал операций семантического слоя.
//
// Каждая сборка запроса, выполнение, пагинация, очистка кода, загрузка
// и экспорт оставляют Entry. Logger раздает записи по Appender'ам:
// файл (JSON lines), консоль через slog, Redis и метрики Prometheus.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/ruslano69/semlayer/pkg/qerrors"
)

// Level - уровень детализации аудита
type Level int

const (
	// LevelMinimal - только операция, статус и датасет
	LevelMinimal Level = iota + 1
	// LevelStandard - плюс отпечаток запроса, строки, длительность и ошибка
	LevelStandard
	// LevelFull - плюс текст запроса и метаданные
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseLevel разбирает уровень из конфигурации, пустая строка дает LevelStandard
func ParseLevel(s string) (Level, error) {
	switch s {
	case "minimal":
		return LevelMinimal, nil
	case "", "standard":
		return LevelStandard, nil
	case "full":
		return LevelFull, nil
	default:
		return 0, fmt.Errorf("unknown audit level: %s", s)
	}
}

// Operation - тип операции
type Operation string

const (
	OpBuild    Operation = "build"
	OpQuery    Operation = "query"
	OpPaginate Operation = "paginate"
	OpLoad     Operation = "load"
	OpConnect  Operation = "connect"
	OpClean    Operation = "clean"
	OpIngest   Operation = "ingest"
	OpExport   Operation = "export"
	OpFetch    Operation = "fetch"
)

// Status - результат операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	// StatusRejected - запрос отклонен проверкой безопасности
	StatusRejected Status = "rejected"
)

// Entry - запись аудита
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	User      string    `json:"user,omitempty"`

	// Dataset - путь датасета org/name
	Dataset string `json:"dataset,omitempty"`
	// Source - тип источника или бэкенда
	Source string `json:"source,omitempty"`
	// Target - файл экспорта, таблица загрузки и т.п.
	Target string `json:"target,omitempty"`

	Query       string        `json:"query,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Rows        int64         `json:"rows,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	ErrorKind    qerrors.Kind `json:"error_kind,omitempty"`
	ErrorMessage string       `json:"error,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEntry - создать запись
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Status:    status,
		Metadata:  make(map[string]any),
	}
}

// Fingerprint - xxh3 отпечаток текста запроса
func Fingerprint(query string) string {
	sum := xxh3.HashString(query)
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(b[:])
}

func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

func (e *Entry) WithDataset(dataset string) *Entry {
	e.Dataset = dataset
	return e
}

func (e *Entry) WithSource(source string) *Entry {
	e.Source = source
	return e
}

func (e *Entry) WithTarget(target string) *Entry {
	e.Target = target
	return e
}

// WithQuery сохраняет запрос и его отпечаток
func (e *Entry) WithQuery(query string) *Entry {
	e.Query = query
	if query != "" {
		e.Fingerprint = Fingerprint(query)
	}
	return e
}

func (e *Entry) WithRows(n int64) *Entry {
	e.Rows = n
	return e
}

func (e *Entry) WithDuration(d time.Duration) *Entry {
	e.Duration = d
	return e
}

// WithError фиксирует ошибку, ее вид и статус.
// Небезопасный запрос дает StatusRejected, прочие ошибки StatusFailure.
func (e *Entry) WithError(err error) *Entry {
	if err == nil {
		return e
	}
	e.ErrorMessage = err.Error()
	e.ErrorKind = qerrors.KindOf(err)
	if qerrors.IsMalicious(err) {
		e.Status = StatusRejected
	} else {
		e.Status = StatusFailure
	}
	return e
}

func (e *Entry) WithMetadata(key string, value any) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// ToJSON - сериализовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - однострочное представление
func (e *Entry) String() string {
	s := fmt.Sprintf("[%s] %s %s", e.Timestamp.Format(time.RFC3339), e.Operation, e.Status)
	if e.Dataset != "" {
		s += " dataset=" + e.Dataset
	}
	if e.Fingerprint != "" {
		s += " fp=" + e.Fingerprint
	}
	if e.ErrorMessage != "" {
		s += fmt.Sprintf(" error=%q", e.ErrorMessage)
	}
	return s
}

// Clone - глубокая копия записи
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// FilterByLevel - копия записи без полей выше уровня
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Query = ""
		filtered.Fingerprint = ""
		filtered.Rows = 0
		filtered.Duration = 0
		filtered.ErrorMessage = ""
		filtered.Metadata = nil
	case LevelStandard:
		filtered.Query = ""
		filtered.Metadata = nil
	}

	return filtered
}
