package io

import (
	"bytes"
	"encoding/gob"
)

// Button bits within the P1/JOYP select-and-read matrix.
const (
	ButtonA      = 0
	ButtonB      = 1
	ButtonSelect = 2
	ButtonStart  = 3
	ButtonRight  = 0
	ButtonLeft   = 1
	ButtonUp     = 2
	ButtonDown   = 3
)

// Buttons is the live button state the front-end feeds in; each field is
// true while the button is held down.
type Buttons struct {
	A, B, Select, Start     bool
	Right, Left, Up, Down   bool
}

// Joypad models $FF00: the host selects a button group by clearing bit 4
// (direction keys) or bit 5 (action keys), and reads back the low nibble
// with 0 meaning "pressed". Any bit 1->0 transition in the read nibble
// (a press, since the matrix is active-low) raises the JOYPAD interrupt;
// a release (0->1) does not.
type Joypad struct {
	selectActions   bool
	selectDirection bool
	buttons         Buttons

	req InterruptRequester
}

func NewJoypad(req InterruptRequester) *Joypad {
	return &Joypad{req: req}
}

func (j *Joypad) SetButtons(b Buttons) {
	before := j.nibble()
	j.buttons = b
	after := j.nibble()
	// A bit that was 1 (released) and is now 0 (pressed) is a HIGH->LOW edge.
	if before&^after != 0 {
		j.req(IntJoypad)
	}
}

func (j *Joypad) nibble() byte {
	n := byte(0x0F)
	if j.selectDirection {
		if j.buttons.Right {
			n &^= 1 << ButtonRight
		}
		if j.buttons.Left {
			n &^= 1 << ButtonLeft
		}
		if j.buttons.Up {
			n &^= 1 << ButtonUp
		}
		if j.buttons.Down {
			n &^= 1 << ButtonDown
		}
	}
	if j.selectActions {
		if j.buttons.A {
			n &^= 1 << ButtonA
		}
		if j.buttons.B {
			n &^= 1 << ButtonB
		}
		if j.buttons.Select {
			n &^= 1 << ButtonSelect
		}
		if j.buttons.Start {
			n &^= 1 << ButtonStart
		}
	}
	return n
}

func (j *Joypad) Read() byte {
	top := byte(0xC0)
	if !j.selectDirection {
		top |= 0x10
	}
	if !j.selectActions {
		top |= 0x20
	}
	return top | j.nibble()
}

func (j *Joypad) Write(v byte) {
	before := j.nibble()
	j.selectDirection = v&0x10 == 0
	j.selectActions = v&0x20 == 0
	after := j.nibble()
	if before&^after != 0 {
		j.req(IntJoypad)
	}
}

type joypadState struct {
	SelectActions   bool
	SelectDirection bool
	Buttons         Buttons
}

func (j *Joypad) SaveState() []byte {
	var buf bytes.Buffer
	s := joypadState{SelectActions: j.selectActions, SelectDirection: j.selectDirection, Buttons: j.buttons}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (j *Joypad) LoadState(data []byte) {
	var s joypadState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	j.selectActions, j.selectDirection, j.buttons = s.SelectActions, s.SelectDirection, s.Buttons
}
