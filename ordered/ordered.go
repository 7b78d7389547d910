// elUMI: a high-performance tool for consensus calling duplicate reads in FASTQ files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elumi/blob/master/LICENSE.txt>.

// Package ordered runs a function over a stream of items on a fixed
// worker pool while emitting the results strictly in input order, with
// a bounded number of items in flight. The output is byte-identical for
// every worker count.
package ordered

import (
	"fmt"
	"sync"

	"github.com/willf/bitset"
)

// Config sizes a parallel map.
type Config struct {
	// Threads is the number of workers.
	Threads int

	// Capacity bounds the number of items in flight, and with it the
	// number of results buffered for reordering. It must be at least
	// Threads, or workers could stall behind a full reorder window.
	// Zero defaults to 3x Threads.
	Capacity int
}

// A ConfigError reports an invalid pipeline configuration.
type ConfigError struct {
	Threads, Capacity int
}

func (e *ConfigError) Error() string {
	if e.Threads < 1 {
		return fmt.Sprintf("invalid thread count %v: need at least 1 thread", e.Threads)
	}
	return fmt.Sprintf("invalid reorder capacity %v for %v threads: capacity must be at least the thread count", e.Capacity, e.Threads)
}

type task[T any] struct {
	seq  int
	item T
}

// Map pulls items from next, applies work to them on cfg.Threads
// workers, and passes the results to emit in input order. next and emit
// are each called from a single goroutine; only work runs concurrently.
// The first error from next, work, or emit stops the pipeline: work
// already in flight finishes, nothing new starts, and exactly that
// error is returned.
func Map[T, R any](cfg Config, next func() (T, bool, error), work func(T) (R, error), emit func(R) error) error {
	if cfg.Capacity == 0 {
		cfg.Capacity = 3 * cfg.Threads
	}
	if cfg.Threads < 1 || cfg.Capacity < cfg.Threads {
		return &ConfigError{Threads: cfg.Threads, Capacity: cfg.Capacity}
	}
	if cfg.Threads == 1 {
		for {
			item, ok, err := next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			result, err := work(item)
			if err != nil {
				return err
			}
			if err := emit(result); err != nil {
				return err
			}
		}
	}

	var (
		tasks   = make(chan task[T])
		results = make(chan task[R], cfg.Capacity)
		tokens  = make(chan struct{}, cfg.Capacity)
		done    = make(chan struct{})
		mutex   sync.Mutex
		first   error
	)
	fail := func(err error) {
		mutex.Lock()
		if first == nil {
			first = err
			close(done)
		}
		mutex.Unlock()
	}

	var workers sync.WaitGroup
	workers.Add(cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		go func() {
			defer workers.Done()
			for t := range tasks {
				result, err := work(t.item)
				if err != nil {
					fail(err)
					return
				}
				select {
				case results <- task[R]{seq: t.seq, item: result}:
				case <-done:
					return
				}
			}
		}()
	}

	var producer sync.WaitGroup
	producer.Add(1)
	go func() {
		defer producer.Done()
		defer close(tasks)
		for seq := 0; ; seq++ {
			item, ok, err := next()
			if err != nil {
				fail(err)
				return
			}
			if !ok {
				return
			}
			select {
			case tokens <- struct{}{}:
			case <-done:
				return
			}
			select {
			case tasks <- task[T]{seq: seq, item: item}:
			case <-done:
				return
			}
		}
	}()

	go func() {
		producer.Wait()
		workers.Wait()
		close(results)
	}()

	// Reorder window: one slot per in-flight item, indexed seq modulo
	// Capacity. Backpressure guarantees a result's slot is free, so an
	// occupied slot means ordering is broken.
	ring := make([]R, cfg.Capacity)
	occupied := bitset.New(uint(cfg.Capacity))
	nextEmit := 0
	for r := range results {
		slot := uint(r.seq % cfg.Capacity)
		if occupied.Test(slot) {
			fail(fmt.Errorf("reorder slot %v occupied for sequence number %v: capacity invariant violated", slot, r.seq))
			break
		}
		ring[slot] = r.item
		occupied.Set(slot)
		for slot := uint(nextEmit % cfg.Capacity); occupied.Test(slot); slot = uint(nextEmit % cfg.Capacity) {
			if err := emit(ring[slot]); err != nil {
				fail(err)
				break
			}
			var zero R
			ring[slot] = zero
			occupied.Clear(slot)
			nextEmit++
			<-tokens
		}
		mutex.Lock()
		failed := first != nil
		mutex.Unlock()
		if failed {
			break
		}
	}

	// Unblock any worker stuck on a full results channel, then wait for
	// the pool to wind down before reporting.
	mutex.Lock()
	failed := first != nil
	mutex.Unlock()
	if failed {
		go func() {
			for range results {
			}
		}()
	}
	producer.Wait()
	workers.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	return first
}
