package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// nowUnix is a seam tests use to control the wall-clock time fed to the RTC.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM/RAM banking plus the real-time clock carried by cart
// types $0F-$13. RTC registers live behind the RAM-bank-select register:
// selecting 0x08-0x0C during an 0xA000-0xBFFF access routes to seconds,
// minutes, hours, and day-low/day-high respectively, instead of banked
// external RAM. $A000-BFFF actually reads a latched snapshot, not the live
// counters: a latch sequence (write 0x00 then 0x01 to 0x6000-7FFF) copies
// the live counters into the latch so software sees a value that can't tear
// mid-read.
//
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (0x08-0x0C)
// - 6000-7FFF: latch clock (write 0 then 1)
// - A000-BFFF: external RAM or latched RTC register, per the 4000-5FFF selection
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3, or 0x08..0x0C to select an RTC register

	latchPending bool // saw a 0x00 write to 6000-7FFF, waiting for 0x01

	// Live counters, advanced lazily against wall-clock time on every access.
	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9-bit day counter
	rtcHalt                 bool
	rtcCarry                bool
	lastRTCWallSec          int64

	// Latched snapshot: what $A000-BFFF returns while an RTC register is selected.
	latchSec, latchMin, latchHour byte
	latchDay                      uint16
	latchHalt, latchCarry         bool
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

// advanceRTC brings the live counters up to the current wall-clock time.
// Called on every cartridge access so reads and writes always see a fresh clock.
func (m *MBC3) advanceRTC() {
	now := nowUnix()
	if m.rtcHalt {
		m.lastRTCWallSec = now
		return
	}
	delta := now - m.lastRTCWallSec
	if delta <= 0 {
		return
	}
	m.lastRTCWallSec = now
	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + delta
	m.rtcSec = byte(total % 60)
	total /= 60
	m.rtcMin = byte(total % 60)
	total /= 60
	m.rtcHour = byte(total % 24)
	total /= 24
	if total > 0x1FF {
		m.rtcCarry = true
		total &= 0x1FF
	}
	m.rtcDay = uint16(total)
}

func (m *MBC3) Read(addr uint16) byte {
	m.advanceRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.readRTCReg()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCReg() byte {
	switch m.ramBank {
	case 0x08:
		return m.latchSec
	case 0x09:
		return m.latchMin
	case 0x0A:
		return m.latchHour
	case 0x0B:
		return byte(m.latchDay & 0xFF)
	case 0x0C:
		v := byte((m.latchDay >> 8) & 0x01)
		if m.latchHalt {
			v |= 0x40
		}
		if m.latchCarry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.advanceRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.ramBank = value
	case addr < 0x8000:
		if value == 0x00 {
			m.latchPending = true
			return
		}
		if value == 0x01 && m.latchPending {
			m.latchSec, m.latchMin, m.latchHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchDay, m.latchHalt, m.latchCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
		}
		m.latchPending = false
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			m.writeRTCReg(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTCReg(value byte) {
	switch m.ramBank {
	case 0x08:
		m.rtcSec = value % 60
	case 0x09:
		m.rtcMin = value % 60
	case 0x0A:
		m.rtcHour = value % 24
	case 0x0B:
		m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
	case 0x0C:
		m.rtcDay = (m.rtcDay & 0xFF) | (uint16(value&0x01) << 8)
		m.rtcHalt = (value & 0x40) != 0
		m.rtcCarry = (value & 0x80) != 0
	}
}

// mbc3Persist is the RTC + RAM payload shared by SaveRAM/LoadRAM (battery
// persistence) and folded into SaveState/LoadState (save states).
type mbc3Persist struct {
	RAM                []byte
	Sec, Min, Hour     byte
	Day                uint16
	Halt, Carry        bool
}

// BatteryBacked implementation: external RAM and RTC counters both persist,
// matching how real MBC3 cartridges keep the clock running across power cycles.
func (m *MBC3) SaveRAM() []byte {
	m.advanceRTC()
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := mbc3Persist{
		RAM:  append([]byte(nil), m.ram...),
		Sec:  m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour, Day: m.rtcDay,
		Halt: m.rtcHalt, Carry: m.rtcCarry,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	var s mbc3Persist
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.Sec, s.Min, s.Hour, s.Day
	m.rtcHalt, m.rtcCarry = s.Halt, s.Carry
	m.lastRTCWallSec = nowUnix()
}

type mbc3State struct {
	Persist      mbc3Persist
	RamEnabled   bool
	RomBank      byte
	RamBank      byte
	LatchPending bool
	LatchSec     byte
	LatchMin     byte
	LatchHour    byte
	LatchDay     uint16
	LatchHalt    bool
	LatchCarry   bool
}

func (m *MBC3) SaveState() []byte {
	m.advanceRTC()
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := mbc3State{
		Persist: mbc3Persist{
			RAM:  append([]byte(nil), m.ram...),
			Sec:  m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour, Day: m.rtcDay,
			Halt: m.rtcHalt, Carry: m.rtcCarry,
		},
		RamEnabled:   m.ramEnabled,
		RomBank:      m.romBank,
		RamBank:      m.ramBank,
		LatchPending: m.latchPending,
		LatchSec:     m.latchSec, LatchMin: m.latchMin, LatchHour: m.latchHour,
		LatchDay: m.latchDay, LatchHalt: m.latchHalt, LatchCarry: m.latchCarry,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.Persist.RAM) > 0 {
		copy(m.ram, s.Persist.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.Persist.Sec, s.Persist.Min, s.Persist.Hour, s.Persist.Day
	m.rtcHalt, m.rtcCarry = s.Persist.Halt, s.Persist.Carry
	m.ramEnabled, m.romBank, m.ramBank, m.latchPending = s.RamEnabled, s.RomBank, s.RamBank, s.LatchPending
	m.latchSec, m.latchMin, m.latchHour = s.LatchSec, s.LatchMin, s.LatchHour
	m.latchDay, m.latchHalt, m.latchCarry = s.LatchDay, s.LatchHalt, s.LatchCarry
	m.lastRTCWallSec = nowUnix()
}
