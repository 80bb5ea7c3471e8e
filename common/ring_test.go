package common

import (
	"reflect"
	"sync"
	"testing"
)

func TestRingBuffer_Scan(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	collect := func() []int {
		out := []int{}
		rb.Scan(func(in int) bool {
			out = append(out, in)
			return true
		})
		return out
	}
	if have, want := collect(), []int{1, 2, 3}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v want %v", have, want)
	}
	rb.Add(4)
	if have, want := collect(), []int{2, 3, 4}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v want %v", have, want)
	}

	// Early stop.
	n := 0
	rb.Scan(func(in int) bool {
		n++
		return in < 3
	})
	if n != 2 {
		t.Errorf("scan did not stop early, visited %d", n)
	}
}

func TestRingBuffer_FirstLast(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if rb.Last() != 0 || rb.First() != 0 {
		t.Fatal("empty buffer should return zero values")
	}
	for i := 1; i <= 6; i++ {
		rb.Add(i)
	}
	if have := rb.Last(); have != 6 {
		t.Errorf("have %d want %d", have, 6)
	}
	if have := rb.First(); have != 4 {
		t.Errorf("have %d want %d", have, 4)
	}
}

func TestRingBuffer_HeadTail(t *testing.T) {
	rb := NewRingBuffer[int](4)
	for i := 1; i <= 6; i++ {
		rb.Add(i)
	}
	cases := []struct {
		name string
		have []int
		want []int
	}{
		{"get", rb.Get(), []int{3, 4, 5, 6}},
		{"head2", rb.Head(2), []int{3, 4}},
		{"tail2", rb.Tail(2), []int{5, 6}},
		{"tail10", rb.Tail(10), []int{3, 4, 5, 6}},
		{"head0", rb.Head(0), []int{}},
	}
	for _, c := range cases {
		if !reflect.DeepEqual(c.have, c.want) {
			t.Errorf("%s: have %v want %v", c.name, c.have, c.want)
		}
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Add("a")
	rb.Add("b")
	if !rb.Full() {
		t.Fatal("expected full")
	}
	rb.Reset()
	if rb.Len() != 0 || rb.Full() {
		t.Errorf("have len %d want 0", rb.Len())
	}
	rb.Add("c")
	if have := rb.Get(); !reflect.DeepEqual(have, []string{"c"}) {
		t.Errorf("have %v want [c]", have)
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer[int](10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rb.Add(i*100 + j)
				_ = rb.Get()
			}
		}(i)
	}
	wg.Wait()
	if rb.Len() != 10 {
		t.Errorf("have %d want %d", rb.Len(), 10)
	}
}
