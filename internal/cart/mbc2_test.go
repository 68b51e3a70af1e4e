package cart

import "testing"

func TestMBC2_ROMBanking(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC2(rom)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank got %02X want 01", got)
	}
	// Bit 8 of the address set selects ROM bank, not RAM enable.
	m.Write(0x2100, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank select got %02X want 05", got)
	}
	m.Write(0x2100, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC2_BuiltinRAMNibbles(t *testing.T) {
	rom := make([]byte, 64*1024)
	m := NewMBC2(rom)

	// RAM disabled: reads are 0xFF
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
	// Bit 8 of the address clear enables RAM.
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0xF7) // only low nibble stored
	if got := m.Read(0xA000); got != 0xF7 {
		t.Fatalf("RAM nibble read got %02X want F7", got)
	}
	m.Write(0xA001, 0x03)
	if got := m.Read(0xA001); got != 0xF3 {
		t.Fatalf("high nibble not forced to F: got %02X want F3", got)
	}
	// Mirrored every 0x200 bytes.
	if got := m.Read(0xA200); got != 0xF7 {
		t.Fatalf("RAM mirror read got %02X want F7", got)
	}
}
