/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	watchdog.go: Pokeable staleness timer
*/
package common

import (
	"sync/atomic"
	"time"
)

// WatchDog fires on C when Poke has not been called within the configured
// interval. Used to detect stalled serial streams and silent readers.
type WatchDog struct {
	t  *time.Timer
	d  time.Duration
	i  uint32 // set while the WD is armed, so Stop does not trigger
	tr uint32
	C  chan struct{}
}

func NewWatchDog(wdTime time.Duration) *WatchDog {
	wd := WatchDog{
		d: wdTime,
		i: 0,
		C: make(chan struct{}),
	}

	wd.t = time.AfterFunc(wdTime, func() {
		if atomic.LoadUint32(&wd.i) != 0 {
			atomic.StoreUint32(&wd.tr, uint32(1))
			select {
			case wd.C <- struct{}{}:
			default:
			}
		}
	})

	return &wd
}

func (w *WatchDog) IsTriggered() bool {
	return atomic.LoadUint32(&w.tr) != 0
}

// Poke rearms the watchdog for another full interval.
func (w *WatchDog) Poke() {
	atomic.StoreUint32(&w.i, uint32(0))
	w.t.Stop()
	w.t.Reset(w.d)
	atomic.StoreUint32(&w.i, uint32(1))
}

// Stop disarms the watchdog without triggering.
func (w *WatchDog) Stop() {
	atomic.StoreUint32(&w.i, uint32(0))
	w.t.Stop()
}
