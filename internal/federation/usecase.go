package federation

import "context"

type Usecase interface {
	// Receive authenticates one inbound delivery and commits it,
	// reporting duplicates instead of erroring on them.
	Receive(ctx context.Context, cmd ReceiveCommand) (*ReceiveResult, error)
}
