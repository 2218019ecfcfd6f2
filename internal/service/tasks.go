package service

import "replypulse/internal/worker"

// TaskQueue is the slice of the worker pool the services need (avoids
// depending on the concrete pool in tests)
type TaskQueue interface {
	Enqueue(task worker.Task) bool
}
