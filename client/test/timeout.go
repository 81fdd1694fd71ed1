package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"testing"
	"time"
)

// Timeout dumps all goroutines and panics when the test is not done within
// d. Call the returned func to stop the timer.
func Timeout(t *testing.T, d time.Duration) (cancel func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)

	go func() {
		<-ctx.Done()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err != nil {
				fmt.Printf("failed to print goroutines: %v\n", err)
			}

			panic(fmt.Sprintf("%s: timeout", t.Name()))
		}
	}()

	return cancel
}
