package io

import (
	"bytes"
	"encoding/gob"
)

// Timer implements the DIV/TIMA/TMA/TAC chain. A single 16-bit counter
// advances one per T-cycle; DIV is its upper 8 bits. TIMA increments on a
// falling edge of one bit of that counter, the bit chosen by TAC's low two
// bits (frequencies 4096/262144/65536/16384 Hz, i.e. every 1024/16/64/256
// T-cycles). Overflow from $FF doesn't reload TIMA immediately: it takes 4
// T-cycles before TMA is copied in and the TIMER interrupt raised, a window
// during which a write to TIMA cancels the reload.
type Timer struct {
	counter uint16 // internal 16-bit divider; DIV = counter>>8
	tima    byte
	tma     byte
	tac     byte

	reloading   bool // in the 4-cycle window between overflow and reload
	reloadTimer int

	req InterruptRequester
}

type InterruptRequester func(bit int)

var tacBit = [4]uint{9, 3, 5, 7}

func NewTimer(req InterruptRequester) *Timer {
	return &Timer{req: req}
}

func (t *Timer) selectedBit() uint {
	return tacBit[t.tac&0x03]
}

func (t *Timer) enabled() bool { return t.tac&0x04 != 0 }

func (t *Timer) edgeInput() bool {
	return t.enabled() && t.counter&(1<<t.selectedBit()) != 0
}

// Tick advances the timer by the given number of T-cycles, one at a time so
// every falling edge (including ones induced by DIV writes) is observed.
func (t *Timer) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		t.tickOne()
	}
}

func (t *Timer) tickOne() {
	if t.reloading {
		t.reloadTimer--
		if t.reloadTimer <= 0 {
			t.tima = t.tma
			t.req(IntTimer)
			t.reloading = false
		}
	}
	before := t.edgeInput()
	t.counter++
	after := t.edgeInput()
	if before && !after {
		t.incTIMA()
	}
}

func (t *Timer) incTIMA() {
	if t.tima == 0xFF {
		t.tima = 0
		t.reloading = true
		t.reloadTimer = 4
		return
	}
	t.tima++
}

func (t *Timer) DIV() byte { return byte(t.counter >> 8) }

// WriteDIV resets the internal counter to 0; since this can fall the
// selected TAC bit, it can itself trigger a TIMA increment ("DIV quirk").
func (t *Timer) WriteDIV() {
	before := t.edgeInput()
	t.counter = 0
	after := t.edgeInput()
	if before && !after {
		t.incTIMA()
	}
}

func (t *Timer) TIMA() byte { return t.tima }

func (t *Timer) WriteTIMA(v byte) {
	// A write during the reload window cancels the pending TMA copy/interrupt.
	t.reloading = false
	t.tima = v
}

func (t *Timer) TMA() byte { return t.tma }
func (t *Timer) WriteTMA(v byte) {
	t.tma = v
	if t.reloading {
		// TMA changes still in effect for a reload about to happen this cycle.
		t.tima = v
	}
}

func (t *Timer) TAC() byte { return t.tac | 0xF8 }
func (t *Timer) WriteTAC(v byte) {
	before := t.edgeInput()
	t.tac = v & 0x07
	after := t.edgeInput()
	if before && !after {
		t.incTIMA()
	}
}

type timerState struct {
	Counter     uint16
	TIMA        byte
	TMA         byte
	TAC         byte
	Reloading   bool
	ReloadTimer int
}

func (t *Timer) SaveState() []byte {
	var buf bytes.Buffer
	s := timerState{Counter: t.counter, TIMA: t.tima, TMA: t.tma, TAC: t.tac, Reloading: t.reloading, ReloadTimer: t.reloadTimer}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (t *Timer) LoadState(data []byte) {
	var s timerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	t.counter, t.tima, t.tma, t.tac = s.Counter, s.TIMA, s.TMA, s.TAC
	t.reloading, t.reloadTimer = s.Reloading, s.ReloadTimer
}
