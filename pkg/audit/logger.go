package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed возвращается при записи в закрытый журнал
var ErrClosed = errors.New("audit logger is closed")

// Logger - журнал операций семантического слоя
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Flush() error
	Close() error
}

// LoggerConfig - конфигурация AuditLogger
type LoggerConfig struct {
	// AsyncMode - запись в appenders из отдельной горутины
	AsyncMode bool

	// BufferSize - очередь асинхронного режима; при переполнении запись идет синхронно
	BufferSize int

	// DefaultUser подставляется, если запись без пользователя
	DefaultUser string

	// OnError получает сбои appenders, которые не вернулись вызывающему коду
	OnError func(error)
}

// DefaultConfig - асинхронный режим с буфером на 1000 записей
func DefaultConfig() LoggerConfig {
	return LoggerConfig{AsyncMode: true, BufferSize: 1000}
}

// SyncConfig - запись в вызывающей горутине
func SyncConfig() LoggerConfig {
	return LoggerConfig{}
}

// AuditLogger заполняет служебные поля записи и раздает ее appenders
type AuditLogger struct {
	sink   *MultiAppender
	config LoggerConfig

	queue chan *Entry
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLogger - создать audit logger
func NewLogger(config LoggerConfig, appenders ...Appender) *AuditLogger {
	l := &AuditLogger{
		sink:   NewMultiAppender(appenders...),
		config: config,
	}

	if config.AsyncMode {
		size := config.BufferSize
		if size <= 0 {
			size = 1000
		}
		l.queue = make(chan *Entry, size)
		l.wg.Add(1)
		go l.drain()
	}
	return l
}

// Log - записать entry.
// В асинхронном режиме ошибки appenders уходят в OnError.
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	l.stamp(entry)

	if l.queue != nil {
		select {
		case l.queue <- entry:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return l.write(ctx, entry)
}

func (l *AuditLogger) stamp(entry *Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.User == "" {
		entry.User = l.config.DefaultUser
	}
}

func (l *AuditLogger) write(ctx context.Context, entry *Entry) error {
	err := l.sink.Append(ctx, entry)
	if err != nil {
		l.handleError(err)
	}
	return err
}

// drain пишет записи очереди до ее закрытия
func (l *AuditLogger) drain() {
	defer l.wg.Done()
	for entry := range l.queue {
		l.write(context.Background(), entry)
	}
}

// Flush - сбросить буферы appenders
func (l *AuditLogger) Flush() error {
	err := l.sink.Flush()
	if err != nil {
		l.handleError(err)
	}
	return err
}

// Close дописывает очередь, сбрасывает буферы и закрывает appenders
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.mu.Unlock()

	l.wg.Wait()
	return errors.Join(l.Flush(), l.sink.Close())
}

func (l *AuditLogger) handleError(err error) {
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
}

// NullLogger - журнал без записи
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (NullLogger) Log(ctx context.Context, entry *Entry) error { return nil }

func (NullLogger) Flush() error { return nil }

func (NullLogger) Close() error { return nil }

// Span - операция в процессе выполнения
type Span struct {
	logger  Logger
	entry   *Entry
	started time.Time
}

// Start начинает операцию; nil logger допустим и ничего не пишет
func Start(logger Logger, operation Operation) *Span {
	if logger == nil {
		logger = NewNullLogger()
	}
	return &Span{
		logger:  logger,
		entry:   NewEntry(operation, StatusSuccess),
		started: time.Now(),
	}
}

// Entry - запись операции для заполнения полей
func (s *Span) Entry() *Entry {
	return s.entry
}

// Finish фиксирует длительность и ошибку и пишет запись.
// Возвращает исходную ошибку операции, сбой аудита ее не подменяет.
func (s *Span) Finish(ctx context.Context, err error) error {
	s.entry.WithDuration(time.Since(s.started)).WithError(err)
	_ = s.logger.Log(ctx, s.entry)
	return err
}
