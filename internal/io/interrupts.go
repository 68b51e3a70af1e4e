// Package io implements the CPU-adjacent register file that doesn't belong
// to the PPU or APU: interrupt flags/enable, the timer chain, and the
// joypad matrix.
package io

import (
	"bytes"
	"encoding/gob"
)

// Interrupt bit numbers within IF/IE, in priority order (lowest bit serviced first).
const (
	IntVBlank = 0
	IntSTAT   = 1
	IntTimer  = 2
	IntSerial = 3
	IntJoypad = 4
)

// Vectors maps an interrupt bit to its service routine address.
var Vectors = [5]uint16{0x0040, 0x0048, 0x0050, 0x0058, 0x0060}

// Interrupts holds IF ($FF0F) and IE ($FFFF). Both registers read with their
// unused top 3 bits pinned to 1.
type Interrupts struct {
	IF byte
	IE byte
}

func NewInterrupts() *Interrupts {
	return &Interrupts{IF: 0xE0}
}

func (ic *Interrupts) Request(bit int) {
	ic.IF |= 1 << uint(bit)
}

func (ic *Interrupts) ReadIF() byte { return ic.IF | 0xE0 }
func (ic *Interrupts) WriteIF(v byte) { ic.IF = v & 0x1F }

func (ic *Interrupts) ReadIE() byte { return ic.IE | 0xE0 }
func (ic *Interrupts) WriteIE(v byte) { ic.IE = v }

// Pending reports whether any enabled interrupt is flagged.
func (ic *Interrupts) Pending() bool {
	return ic.IF&ic.IE&0x1F != 0
}

// Next returns the lowest-numbered pending-and-enabled interrupt bit, or -1.
func (ic *Interrupts) Next() int {
	masked := ic.IF & ic.IE & 0x1F
	if masked == 0 {
		return -1
	}
	for bit := 0; bit < 5; bit++ {
		if masked&(1<<uint(bit)) != 0 {
			return bit
		}
	}
	return -1
}

// Clear clears a serviced interrupt's IF bit.
func (ic *Interrupts) Clear(bit int) {
	ic.IF &^= 1 << uint(bit)
}

type interruptsState struct {
	IF byte
	IE byte
}

func (ic *Interrupts) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(interruptsState{IF: ic.IF, IE: ic.IE})
	return buf.Bytes()
}

func (ic *Interrupts) LoadState(data []byte) {
	var s interruptsState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	ic.IF, ic.IE = s.IF, s.IE
}
