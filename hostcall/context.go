package hostcall

import "context"

// MainThread is the foreign thread id of the thread running the orchestrator.
const MainThread uint32 = 1

type threadKey struct{}

// WithThread returns a context identifying the calling foreign thread.
func WithThread(ctx context.Context, tid uint32) context.Context {
	return context.WithValue(ctx, threadKey{}, tid)
}

// ThreadID returns the foreign thread id carried by ctx, MainThread if none.
func ThreadID(ctx context.Context) uint32 {
	if tid, ok := ctx.Value(threadKey{}).(uint32); ok {
		return tid
	}
	return MainThread
}
