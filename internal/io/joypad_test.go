package io

import "testing"

func TestJoypad_ReadReflectsSelectedGroup(t *testing.T) {
	j := NewJoypad(func(int) {})
	j.SetButtons(Buttons{A: true, Right: true})

	j.Write(0x20) // select direction group (bit 4 low)
	if got := j.Read() & 0x0F; got&(1<<ButtonRight) != 0 {
		t.Fatalf("right should read pressed (0), got nibble %04b", got)
	}

	j.Write(0x10) // select action group (bit 5 low)
	if got := j.Read() & 0x0F; got&(1<<ButtonA) != 0 {
		t.Fatalf("A should read pressed (0), got nibble %04b", got)
	}
	if got := j.Read() & 0x0F; got&(1<<ButtonB) == 0 {
		t.Fatalf("B should read released (1), got nibble %04b", got)
	}
}

func TestJoypad_PressRaisesInterruptOnHighToLowEdge(t *testing.T) {
	fired := 0
	j := NewJoypad(func(bit int) {
		if bit == IntJoypad {
			fired++
		}
	})
	j.Write(0x10) // select actions, so action presses are visible in the nibble
	j.SetButtons(Buttons{Start: true})
	if fired != 1 {
		t.Fatalf("fired=%d want 1 on press", fired)
	}
	j.SetButtons(Buttons{Start: true}) // still held, no new edge
	if fired != 1 {
		t.Fatalf("fired=%d want 1 (no repeat edge)", fired)
	}
	j.SetButtons(Buttons{}) // release: LOW->HIGH, not an interrupt source
	if fired != 1 {
		t.Fatalf("fired=%d want 1 (release is not an edge)", fired)
	}
}

func TestJoypad_StateRoundTrip(t *testing.T) {
	j := NewJoypad(func(int) {})
	j.Write(0x10)
	j.SetButtons(Buttons{Down: true, B: true})
	data := j.SaveState()

	other := NewJoypad(func(int) {})
	other.LoadState(data)
	if other.Read() != j.Read() {
		t.Fatalf("state round trip mismatch: got %02X want %02X", other.Read(), j.Read())
	}
}
