package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

type ContainerWorker interface {
	HandleComposeRestart(ctx context.Context, task *asynq.Task) error
	HandleContainerSweep(ctx context.Context, task *asynq.Task) error
}
