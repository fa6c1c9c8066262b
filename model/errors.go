package model

import "errors"

// 存储层和业务层共用的错误
var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrReasonRequired         = errors.New("reason is required")
)
