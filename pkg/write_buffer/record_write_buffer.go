package write_buffer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// WriteBuffer collects values from concurrent producers until a single consumer drains them.
type WriteBuffer[ValueType any] interface {
	WriteToBuffer(values []ValueType) error
	Drain() []ValueType
	Len() int
}

type WriteBufferImpl[ValueType any] struct {
	writeQueue []ValueType
	maxSize    int
	rejected   int
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewWriteBufferImpl bounds the buffer to maxSize values; zero or less leaves it unbounded.
func NewWriteBufferImpl[ValueType any](maxSize int, logger *zap.Logger) *WriteBufferImpl[ValueType] {
	return &WriteBufferImpl[ValueType]{
		writeQueue: []ValueType{},
		maxSize:    maxSize,
		logger:     logger,
	}
}

// WriteToBuffer accepts all of values or none of them.
func (wb *WriteBufferImpl[ValueType]) WriteToBuffer(values []ValueType) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if wb.maxSize > 0 && len(wb.writeQueue)+len(values) > wb.maxSize {
		wb.rejected += len(values)
		wb.logger.Warn("Write buffer is full, rejecting values",
			zap.Int("buffered", len(wb.writeQueue)),
			zap.Int("rejected", len(values)),
		)
		return fmt.Errorf("%d values would exceed the limit of %d: %w", len(values), wb.maxSize, ErrBufferFull)
	}
	wb.writeQueue = append(wb.writeQueue, values...)
	return nil
}

func (wb *WriteBufferImpl[ValueType]) Drain() []ValueType {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	drained := wb.writeQueue
	wb.writeQueue = []ValueType{}
	return drained
}

func (wb *WriteBufferImpl[ValueType]) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.writeQueue)
}

func (wb *WriteBufferImpl[ValueType]) Rejected() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.rejected
}

var (
	ErrBufferFull = errors.New("write buffer is full")
)
