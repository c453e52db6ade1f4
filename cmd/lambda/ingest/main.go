// ingest Lambda receives player actions from SQS and enqueues them on the
// PLAYER_ACTION queue.
package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/narrator/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func main() {
	awslambda.Start(func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		d, err := getDeps()
		if err != nil {
			return events.SQSEventResponse{}, err
		}
		return intlambda.HandleIngest(ctx, d, event)
	})
}
