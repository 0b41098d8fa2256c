// Package qerrors описывает типизированные ошибки семантического слоя.
//
// Каждый вид ошибки отдельный тип, чтобы вызывающий код мог отличить
// нарушение доверия (MaliciousQueryError) от операционного сбоя
// (ExecutionError) через errors.As.
package qerrors

import (
	"errors"
	"fmt"
)

// DefaultMaliciousMessage сообщение по умолчанию при отказе санитайзера
const DefaultMaliciousMessage = "The SQL query is deemed unsafe and will not be executed."

// Kind вид ошибки для логов и метрик
type Kind string

const (
	KindConstruction        Kind = "construction"
	KindMalicious           Kind = "malicious_query"
	KindExecution           Kind = "execution"
	KindValidation          Kind = "validation"
	KindMissingDependency   Kind = "missing_dependency"
	KindIncompatibleSources Kind = "incompatible_sources"
	KindSQLNotUsed          Kind = "execute_sql_query_not_used"
	KindUnknown             Kind = "unknown"
)

// ConstructionError ошибка построения запроса по схеме
// (неизвестная трансформация, несовпадение bins/labels, невалидный SQL)
type ConstructionError struct {
	Message string
	Err     error
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// MaliciousQueryError запрос отклонен санитайзером или allow-list таблиц
type MaliciousQueryError struct {
	Message string
	Query   string
}

func (e *MaliciousQueryError) Error() string {
	if e.Message == "" {
		return DefaultMaliciousMessage
	}
	return e.Message
}

func (e *MaliciousQueryError) Unwrap() error { return nil }

// ExecutionError бэкенд вернул ошибку при выполнении проверенного SQL
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("SQL execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ValidationError ошибка валидации входных параметров
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s (value: '%s')", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error { return nil }

// MissingDependencyError view ссылается на датасет, который не удалось найти
type MissingDependencyError struct {
	Dataset string
	Err     error
}

func (e *MissingDependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing dependency dataset '%s': %v", e.Dataset, e.Err)
	}
	return fmt.Sprintf("missing dependency dataset '%s'", e.Dataset)
}

func (e *MissingDependencyError) Unwrap() error { return e.Err }

// IncompatibleSourcesError источники view нельзя объединить в один запрос
type IncompatibleSourcesError struct {
	View    string
	Sources []string
}

func (e *IncompatibleSourcesError) Error() string {
	return fmt.Sprintf("sources of view '%s' are not compatible: %v", e.View, e.Sources)
}

func (e *IncompatibleSourcesError) Unwrap() error { return nil }

// SQLNotUsedMessage сообщение для кода, который не обращается к данным через execute_sql_query
const SQLNotUsedMessage = "The code must execute SQL queries using the `execute_sql_query` function, which is already defined!"

// SQLNotUsedError сгенерированный код ни разу не вызывает execute_sql_query
type SQLNotUsedError struct {
	Message string
}

func (e *SQLNotUsedError) Error() string {
	if e.Message == "" {
		return SQLNotUsedMessage
	}
	return e.Message
}

func (e *SQLNotUsedError) Unwrap() error { return nil }

// Constructionf создает ConstructionError с форматированным сообщением
func Constructionf(format string, args ...any) error {
	return &ConstructionError{Message: fmt.Sprintf(format, args...)}
}

// WrapConstruction оборачивает err в ConstructionError
func WrapConstruction(message string, err error) error {
	return &ConstructionError{Message: message, Err: err}
}

// Malicious создает MaliciousQueryError; пустое сообщение заменяется стандартным
func Malicious(message, query string) error {
	return &MaliciousQueryError{Message: message, Query: query}
}

// Execution оборачивает ошибку бэкенда
func Execution(err error) error {
	return &ExecutionError{Err: err}
}

// Validation создает ValidationError
func Validation(field, value, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// IsConstruction проверяет вид ошибки
func IsConstruction(err error) bool {
	var target *ConstructionError
	return errors.As(err, &target)
}

// IsMalicious проверяет вид ошибки
func IsMalicious(err error) bool {
	var target *MaliciousQueryError
	return errors.As(err, &target)
}

// IsExecution проверяет вид ошибки
func IsExecution(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

// IsValidation проверяет вид ошибки
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsMissingDependency проверяет вид ошибки
func IsMissingDependency(err error) bool {
	var target *MissingDependencyError
	return errors.As(err, &target)
}

// IsIncompatibleSources проверяет вид ошибки
func IsIncompatibleSources(err error) bool {
	var target *IncompatibleSourcesError
	return errors.As(err, &target)
}

// IsSQLNotUsed проверяет вид ошибки
func IsSQLNotUsed(err error) bool {
	var target *SQLNotUsedError
	return errors.As(err, &target)
}

// KindOf возвращает вид ошибки; nil дает пустую строку
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsMalicious(err):
		return KindMalicious
	case IsExecution(err):
		return KindExecution
	case IsConstruction(err):
		return KindConstruction
	case IsValidation(err):
		return KindValidation
	case IsMissingDependency(err):
		return KindMissingDependency
	case IsIncompatibleSources(err):
		return KindIncompatibleSources
	case IsSQLNotUsed(err):
		return KindSQLNotUsed
	default:
		return KindUnknown
	}
}
