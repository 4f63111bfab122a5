package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyClosed    = errors.New("position already closed")
	ErrPositionNotFound = errors.New("position not found")
	ErrAlertNotFound    = errors.New("alert not found")
)

// StorageError 存储层失败（读取/写入），调用方可重试
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable 存储错误总是可重试的，内存状态未被修改
func (e *StorageError) Retryable() bool { return true }

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}
