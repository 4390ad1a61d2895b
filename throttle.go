// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import "sync"

// throttle runs at most Max workers of a stage at once. After any
// worker fails, no further workers are started and Wait returns that
// first error.
type throttle struct {
	Max int

	once  sync.Once
	slots chan struct{}
	wg    sync.WaitGroup

	mtx    sync.Mutex
	failed error
}

func (t *throttle) err() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.failed
}

func (t *throttle) fail(err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.failed == nil {
		t.failed = err
	}
}

// Go blocks until a slot is free, then runs fn in a new goroutine. If
// an earlier worker has failed, fn is not started and the earlier
// error is returned.
func (t *throttle) Go(fn func() error) error {
	t.once.Do(func() { t.slots = make(chan struct{}, t.Max) })
	t.slots <- struct{}{}
	if err := t.err(); err != nil {
		<-t.slots
		return err
	}
	t.wg.Add(1)
	go func() {
		defer func() {
			<-t.slots
			t.wg.Done()
		}()
		if err := fn(); err != nil {
			t.fail(err)
		}
	}()
	return nil
}

// Wait blocks until every started worker has finished.
func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.err()
}
