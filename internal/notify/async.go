package notify

import (
	"context"
	"log"
	"time"
)

// Async publishes in the background so slow sinks (SMTP) never hold up the
// request that caused the event. Errors are logged.
type Async struct {
	Next    Publisher
	Timeout time.Duration
}

func (a Async) Publish(ctx context.Context, event StatusEvent) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := a.Next.Publish(bgCtx, event); err != nil {
			log.Printf("[NOTIFY] [ERROR] order %s: %v", event.OrderID, err)
		}
	}()
	return nil
}
