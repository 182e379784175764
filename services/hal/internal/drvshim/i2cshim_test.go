package drvshim

import (
	"errors"
	"testing"

	"ccs811-go/services/hal/internal/core"
)

type recBus struct {
	addr uint16
	w    []byte
	err  error
}

func (b *recBus) Tx(addr uint16, w, r []byte) error {
	b.addr = addr
	b.w = append([]byte(nil), w...)
	for i := range r {
		r[i] = 0xA5
	}
	return b.err
}

func TestHotI2CUnbound(t *testing.T) {
	var h HotI2C
	if err := h.Tx(0x5A, []byte{0}, nil); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("unbound Tx err = %v, want ErrClosed", err)
	}
}

func TestHotI2CRebind(t *testing.T) {
	var h HotI2C
	a, b := &recBus{}, &recBus{}

	h.Bind(a)
	r := make([]byte, 2)
	if err := h.Tx(0x5A, []byte{0x20}, r); err != nil {
		t.Fatal(err)
	}
	if a.addr != 0x5A || a.w[0] != 0x20 || r[1] != 0xA5 {
		t.Fatalf("bus a saw addr=%#x w=%v r=%v", a.addr, a.w, r)
	}

	h.Bind(b)
	_ = h.Tx(0x5B, []byte{0x02}, nil)
	if b.addr != 0x5B || a.w[0] != 0x20 {
		t.Fatalf("rebind did not route to bus b")
	}

	h.Unbind()
	if err := h.Tx(0x5A, nil, nil); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("after Unbind err = %v", err)
	}
}
