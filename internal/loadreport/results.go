package loadreport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

// OpenResults opens where vegeta results of a run go: a file path or "stdout".
func OpenResults(out string) (io.WriteCloser, error) {
	switch out {
	case "":
		return nil, fmt.Errorf("no results destination")
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

// WriteResults encodes results to w until res is closed and returns how many were written.
// A signal on sig calls stop; the attacker then closes res once in-flight hits finish.
// After an encode failure stop is called too and the rest of res is drained unwritten.
func WriteResults(res <-chan *vegeta.Result, w io.Writer, sig <-chan os.Signal, stop func()) (int, error) {
	var once sync.Once
	stopOnce := func() { once.Do(stop) }

	enc := vegeta.NewEncoder(w)
	var written int
	var encErr error
	for {
		select {
		case <-sig:
			stopOnce()
			// keep draining until res is closed
			sig = nil
		case r, ok := <-res:
			if !ok {
				return written, encErr
			}
			if encErr != nil {
				continue
			}
			if err := enc.Encode(r); err != nil {
				encErr = fmt.Errorf("Encode: %w", err)
				stopOnce()
				continue
			}
			written++
		}
	}
}

// WaitSettled reads the counter every interval until it reaches want or timeout passes,
// and returns the last value read. Views that never arrive are the lost updates of an asynchronous run.
func WaitSettled(ctx context.Context, read func(context.Context) (int64, error), want int64, interval, timeout time.Duration) (int64, error) {
	var last int64
	var seen bool
	_, err := backoff.Retry(ctx, func() (int64, error) {
		n, err := read(ctx)
		if err != nil {
			return 0, err
		}
		last, seen = n, true
		if n < want {
			return n, fmt.Errorf("views=%d, want %d", n, want)
		}
		return n, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil && !seen {
		return 0, err
	}
	return last, nil
}
