package worker

import (
	"context"
)

// Worker - фоновый процесс, живущий до Stop или отмены контекста
type Worker interface {
	// Start блокирует до остановки
	Start(ctx context.Context) error

	Stop() error

	Name() string
}
