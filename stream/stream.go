// Package stream holds small generic channel pipelines. Every stage
// closes its output when its input is drained or ctx is done.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"slices"
	"sort"
)

// MaxLineSize bounds one line read by Lines.
var MaxLineSize = 4 * 1024 * 1024

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- v:
		return true
	}
}

// Lines yields each non-blank line of r as its own copy.
// A read error ends the stream and is delivered on errs, if non-nil.
func Lines(ctx context.Context, r io.Reader, errs chan<- error) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if !send(ctx, out, bytes.Clone(line)) {
				return
			}
		}
		if err := sc.Err(); err != nil && errs != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	return out
}

func Filter[T any](ctx context.Context, predicate func(T) bool, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for v := range in {
			if predicate(v) && !send(ctx, out, v) {
				return
			}
		}
	}()
	return out
}

func Transform[I any, O any](ctx context.Context, transformer func(I) O, in <-chan I) <-chan O {
	out := make(chan O)
	go func() {
		defer close(out)
		for v := range in {
			if !send(ctx, out, transformer(v)) {
				return
			}
		}
	}()
	return out
}

// Batch groups in into slices of up to size. The last batch may be short.
func Batch[T any](ctx context.Context, size int, in <-chan T) <-chan []T {
	if size < 1 {
		size = 1
	}
	out := make(chan []T)
	go func() {
		defer close(out)
		batch := make([]T, 0, size)
		for v := range in {
			batch = append(batch, v)
			if len(batch) < size {
				continue
			}
			if !send(ctx, out, batch) {
				return
			}
			batch = make([]T, 0, size)
		}
		if len(batch) > 0 {
			send(ctx, out, batch)
		}
	}()
	return out
}

// SortWindow reorders a nearly sorted stream by holding up to size items
// and releasing the least each time the window overflows.
// Items more than size places out of order are released late, not dropped.
// Equal items keep their input order.
func SortWindow[T any](ctx context.Context, size int, cmp func(a, b T) int, in <-chan T) <-chan T {
	if size < 1 {
		size = 1
	}
	out := make(chan T)
	go func() {
		defer close(out)
		buf := make([]T, 0, size+1)
		for v := range in {
			i := sort.Search(len(buf), func(i int) bool { return cmp(buf[i], v) > 0 })
			buf = slices.Insert(buf, i, v)
			if len(buf) <= size {
				continue
			}
			if !send(ctx, out, buf[0]) {
				return
			}
			buf = buf[1:]
		}
		for _, v := range buf {
			if !send(ctx, out, v) {
				return
			}
		}
	}()
	return out
}
