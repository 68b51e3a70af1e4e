package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC2 implements ROM banking plus the controller's built-in 512x4-bit RAM.
// Unlike MBC1/3/5, MBC2 never has external cartridge RAM: the 512 nibbles live
// on the mapper chip itself and are addressed through the full A000-BFFF window
// (mirrored every 0x200 bytes). Only the low nibble of each byte is meaningful;
// reads OR the upper nibble with 0xF per Pan Docs.
type MBC2 struct {
	rom []byte
	ram [512]byte // 4-bit cells, one per byte for simplicity

	romBank    byte // 4 bits (0 maps to 1)
	ramEnabled bool
}

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		idx := int(addr-0xA000) % 512
		return 0xF0 | (m.ram[idx] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		// Bit 8 of the address distinguishes RAM-enable (clear) from ROM-bank-select (set).
		if (addr & 0x0100) == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		idx := int(addr-0xA000) % 512
		m.ram[idx] = value & 0x0F
	}
}

// BatteryBacked implementation: MBC2's builtin RAM is commonly battery-backed (type $06).
func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	n := copy(m.ram[:], data)
	_ = n
}

type mbc2State struct {
	RAM        [512]byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := mbc2State{RAM: m.ram, RomBank: m.romBank, RamEnabled: m.ramEnabled}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	m.ram = s.RAM
	m.romBank, m.ramEnabled = s.RomBank, s.RamEnabled
}
