package interfaces

import "context"

type Notifier interface {
	Send(ctx context.Context, msg string) error
}
