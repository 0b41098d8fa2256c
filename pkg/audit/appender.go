package audit

import (
	"context"
	"errors"
	"fmt"
)

// Appender - получатель записей аудита
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
	Close() error
}

// Flusher реализуют appenders с буфером записи
type Flusher interface {
	Flush() error
}

// MultiAppender пишет запись во все appenders.
// Сбой одного получателя не мешает остальным, ошибки объединяются.
type MultiAppender struct {
	appenders []Appender
}

// NewMultiAppender - создать multi appender
func NewMultiAppender(appenders ...Appender) *MultiAppender {
	return &MultiAppender{appenders: appenders}
}

// Append - записать во все appenders
func (ma *MultiAppender) Append(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, a := range ma.appenders {
		if err := a.Append(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", a, err))
		}
	}
	return errors.Join(errs...)
}

// Flush сбрасывает буферы appenders, реализующих Flusher
func (ma *MultiAppender) Flush() error {
	var errs []error
	for _, a := range ma.appenders {
		if f, ok := a.(Flusher); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, fmt.Errorf("%T: %w", a, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close - закрыть все appenders
func (ma *MultiAppender) Close() error {
	var errs []error
	for _, a := range ma.appenders {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", a, err))
		}
	}
	return errors.Join(errs...)
}

// Len - количество appenders
func (ma *MultiAppender) Len() int {
	return len(ma.appenders)
}

// NullAppender ничего не пишет
type NullAppender struct{}

func NewNullAppender() *NullAppender { return &NullAppender{} }

func (NullAppender) Append(ctx context.Context, entry *Entry) error { return nil }

func (NullAppender) Close() error { return nil }
