package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC5 banks up to 8MB of ROM (9-bit bank number) and 128KB of RAM (4-bit
// bank number); unlike MBC1 it has no quirky mode-select banking scheme.
type MBC5 struct {
	rom []byte
	ram []byte

	romBank    uint16 // 0..511
	ramBank    byte   // 0..15
	ramEnabled bool
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

// ramOffset maps a CPU address in 0xA000-0xBFFF to an index into m.ram,
// or -1 if RAM is disabled, absent, or the offset falls outside it.
func (m *MBC5) ramOffset(addr uint16) int {
	if !m.ramEnabled || len(m.ram) == 0 {
		return -1
	}
	off := int(m.ramBank&0x0F)*0x2000 + int(addr-0xA000)
	if off < 0 || off >= len(m.ram) {
		return -1
	}
	return off
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000: // fixed bank 0
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000: // switchable bank
		off := int(m.romBank)*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if off := m.ramOffset(addr); off >= 0 {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x3000: // ROM bank number, low 8 bits
		m.romBank = m.romBank&0x100 | uint16(value)
	case addr < 0x4000: // ROM bank number, bit 8
		if value&0x01 != 0 {
			m.romBank |= 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if off := m.ramOffset(addr); off >= 0 {
			m.ram[off] = value
		}
	}
}

func (m *MBC5) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC5) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

type mbc5State struct {
	RAM        []byte
	RomBank    uint16
	RamBank    byte
	RamEnabled bool
}

func (m *MBC5) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc5State{RAM: append([]byte(nil), m.ram...), RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
}
