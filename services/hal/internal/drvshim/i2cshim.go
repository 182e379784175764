package drvshim

import (
	"sync/atomic"

	"ccs811-go/services/hal/internal/core"
)

// HotI2C lets a long-lived driver run against whichever per-job bus the
// worker hands out. Bind before use inside a job; Tx outside a bound job
// fails with core.ErrClosed.
type HotI2C struct {
	cur atomic.Value // holds busBox
}

type busBox struct{ b core.I2CBus }

func (h *HotI2C) Bind(b core.I2CBus) { h.cur.Store(busBox{b: b}) }

// Unbind drops the current bus so stray calls cannot reach it.
func (h *HotI2C) Unbind() { h.cur.Store(busBox{}) }

func (h *HotI2C) Tx(addr uint16, w, r []byte) error {
	v, _ := h.cur.Load().(busBox)
	if v.b == nil {
		return core.ErrClosed
	}
	return v.b.Tx(addr, w, r)
}
