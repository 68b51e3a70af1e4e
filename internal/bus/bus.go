// Package bus implements the 16-bit address-space arbiter: it owns the
// cartridge, VRAM/OAM-owning PPU, APU, WRAM, HRAM, and the timer/joypad/
// interrupt register file, and dispatches every CPU read/write to the right
// owner. It also drives OAM DMA and CGB HDMA, and fans out every T-cycle
// tick to the PPU, timer, and APU so they stay in lockstep with the CPU.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/gbcore/gameboy/internal/apu"
	"github.com/gbcore/gameboy/internal/cart"
	ioregs "github.com/gbcore/gameboy/internal/io"
	"github.com/gbcore/gameboy/internal/ppu"
)

// wramBanks is 8 because CGB's SVBK selects bank 1-7 for the D000-DFFF
// window; DMG only ever uses bank 1 of the switchable half.
const wramBanks = 8

type Bus struct {
	cart   cart.Cartridge
	ppu    *ppu.PPU
	apu    *apu.APU
	timer  *ioregs.Timer
	joypad *ioregs.Joypad
	ic     *ioregs.Interrupts

	wram [wramBanks][0x1000]byte
	svbk byte // FF70: WRAM bank select, bits 0-2 (0 treated as 1)
	hram [0x7F]byte

	bootROM     [0x100]byte
	hasBootROM  bool
	bootEnabled bool
	cgbBootROM  [0x800]byte
	hasCGBBoot  bool
	cgbBoot     bool

	cgbMode bool
	key1    byte // FF4D: speed-switch prepare (bit0 armed, bit7 current speed)

	sb, sc       byte
	serialWriter io.Writer

	dmaActive  bool
	dmaSrc     uint16
	dmaCycle   int
	dmaByte    int

	hdmaSrcHi, hdmaSrcLo byte
	hdmaDstHi, hdmaDstLo byte
	hdmaLen              byte // FF55 low 7 bits: (len/16)-1
	hdmaActive           bool
	hdmaMode             byte // 0 general-purpose (done synchronously on trigger), 1 HBlank-paced
}

func New(rom []byte) *Bus {
	b := &Bus{}
	c, _ := cart.New(rom)
	b.cart = c
	b.ic = ioregs.NewInterrupts()
	b.ppu = ppu.New(func(bit int) { b.ic.Request(bit) })
	b.ppu.SetHBlankHook(b.stepHBlankHDMA)
	b.timer = ioregs.NewTimer(func(bit int) { b.ic.Request(bit) })
	b.joypad = ioregs.NewJoypad(func(bit int) { b.ic.Request(bit) })
	b.apu = apu.New(44100)
	return b
}

func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }

func (b *Bus) SetSerialWriter(w io.Writer) { b.serialWriter = w }

func (b *Bus) SetCGBMode(on bool) { b.cgbMode = on }
func (b *Bus) CGBMode() bool      { return b.cgbMode }

func (b *Bus) SetBootROM(data []byte) {
	if len(data) < 0x100 {
		b.hasBootROM = false
		return
	}
	copy(b.bootROM[:], data[:0x100])
	b.hasBootROM = true
}

func (b *Bus) SetCGBBootROM(data []byte) {
	if len(data) < 0x800 {
		b.hasCGBBoot = false
		return
	}
	copy(b.cgbBootROM[:], data[len(data)-0x800:])
	b.hasCGBBoot = true
}

// EnableBoot selects the active boot overlay: 0 none, 1 DMG, 2 CGB.
func (b *Bus) EnableBoot(mode int) {
	switch mode {
	case 1:
		b.bootEnabled = b.hasBootROM
		b.cgbBoot = false
	case 2:
		b.cgbBoot = b.hasCGBBoot
		b.bootEnabled = false
	default:
		b.bootEnabled = false
		b.cgbBoot = false
	}
}

// SetButtons forwards the live button state to the joypad matrix.
func (b *Bus) SetButtons(btn ioregs.Buttons) { b.joypad.SetButtons(btn) }

func (b *Bus) wramBank() int {
	n := int(b.svbk & 0x07)
	if n == 0 {
		n = 1
	}
	return n
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x0100 && b.bootEnabled:
		return b.bootROM[addr]
	case addr < 0x0900 && b.cgbBoot:
		if addr < 0x100 {
			return b.cgbBootROM[addr]
		}
		if addr >= 0x200 {
			return b.cgbBootROM[addr-0x100]
		}
		return b.cart.Read(addr)
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wram[b.wramBank()][addr-0xD000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.Read(addr - 0x2000)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr >= 0xFF00 && addr <= 0xFFFF:
		return b.readIO(addr)
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wram[b.wramBank()][addr-0xD000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.Write(addr-0x2000, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable, writes ignored
	case addr >= 0xFF00 && addr <= 0xFFFF:
		b.writeIO(addr, value)
	}
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return b.sc | 0x7E
	case addr == 0xFF04:
		return b.timer.DIV()
	case addr == 0xFF05:
		return b.timer.TIMA()
	case addr == 0xFF06:
		return b.timer.TMA()
	case addr == 0xFF07:
		return b.timer.TAC()
	case addr == 0xFF0F:
		return b.ic.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF4D:
		return b.key1 | 0x7E
	case addr == 0xFF4F:
		return b.ppu.CPURead(addr)
	case addr == 0xFF51 || addr == 0xFF52 || addr == 0xFF53 || addr == 0xFF54:
		return 0xFF // HDMA source/dest are write-only
	case addr == 0xFF55:
		if b.hdmaActive {
			return b.hdmaLen & 0x7F
		}
		return 0x80 | (b.hdmaLen & 0x7F)
	case addr == 0xFF68 || addr == 0xFF69 || addr == 0xFF6A || addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF70:
		return 0xF8 | (b.svbk & 0x07)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ic.ReadIE()
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if value&0x80 != 0 {
			if b.serialWriter != nil {
				_, _ = b.serialWriter.Write([]byte{b.sb})
			}
			b.sc &^= 0x80
			b.ic.Request(ioregs.IntSerial)
		}
	case addr == 0xFF04:
		b.timer.WriteDIV()
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.ic.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF46: // OAM DMA
		b.startOAMDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF4D:
		b.key1 = (b.key1 & 0x80) | (value & 0x01)
	case addr == 0xFF4F:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootEnabled = false
			b.cgbBoot = false
		}
	case addr == 0xFF51:
		b.hdmaSrcHi = value
	case addr == 0xFF52:
		b.hdmaSrcLo = value & 0xF0
	case addr == 0xFF53:
		b.hdmaDstHi = value & 0x1F
	case addr == 0xFF54:
		b.hdmaDstLo = value & 0xF0
	case addr == 0xFF55:
		b.startHDMA(value)
	case addr == 0xFF68 || addr == 0xFF69 || addr == 0xFF6A || addr == 0xFF6B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF70:
		b.svbk = value & 0x07
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.ic.WriteIE(value)
	}
}

func (b *Bus) startOAMDMA(srcHigh byte) {
	b.dmaActive = true
	b.dmaSrc = uint16(srcHigh) << 8
	b.dmaByte = 0
	b.dmaCycle = 0
}

func (b *Bus) tickOAMDMA(cycles int) {
	if !b.dmaActive {
		return
	}
	b.dmaCycle += cycles
	for b.dmaCycle >= 4 && b.dmaByte < 160 {
		b.dmaCycle -= 4
		v := b.Read(b.dmaSrc + uint16(b.dmaByte))
		b.ppu.CPUWrite(0xFE00+uint16(b.dmaByte), v)
		b.dmaByte++
	}
	if b.dmaByte >= 160 {
		b.dmaActive = false
	}
}

func (b *Bus) hdmaSrcAddr() uint16 {
	return (uint16(b.hdmaSrcHi) << 8) | uint16(b.hdmaSrcLo)
}

func (b *Bus) hdmaDstAddr() uint16 {
	return 0x8000 + ((uint16(b.hdmaDstHi) << 8) | uint16(b.hdmaDstLo))
}

func (b *Bus) startHDMA(value byte) {
	if b.hdmaActive && value&0x80 == 0 {
		// writing 0 to bit7 while an HBlank transfer is running cancels it
		b.hdmaActive = false
		b.hdmaLen = (value & 0x7F) | 0x80
		return
	}
	b.hdmaLen = value & 0x7F
	mode := (value >> 7) & 1
	if mode == 0 {
		// General-purpose: copy everything immediately.
		total := (int(b.hdmaLen) + 1) * 16
		b.copyHDMABlock(total)
		b.hdmaLen = 0x7F
		b.hdmaActive = false
		return
	}
	b.hdmaMode = 1
	b.hdmaActive = true
}

func (b *Bus) copyHDMABlock(n int) {
	src := b.hdmaSrcAddr()
	dst := b.hdmaDstAddr()
	bank := 0
	if b.ppu.CPURead(0xFF4F)&0x01 != 0 {
		bank = 1
	}
	for i := 0; i < n; i++ {
		v := b.Read(src + uint16(i))
		b.ppu.WriteVRAMBank(bank, dst+uint16(i), v)
	}
	b.hdmaSrcLo = byte((int(b.hdmaSrcLo) + n) & 0xF0)
	b.hdmaSrcHi = byte(((int(src) + n) >> 8) & 0xFF)
	newDst := int(dst-0x8000) + n
	b.hdmaDstLo = byte(newDst & 0xF0)
	b.hdmaDstHi = byte((newDst >> 8) & 0x1F)
}

// stepHBlankHDMA runs one 16-byte HDMA block at HBlank entry while an
// HBlank-mode transfer is active.
func (b *Bus) stepHBlankHDMA() {
	if !b.hdmaActive || b.hdmaMode != 1 {
		return
	}
	b.copyHDMABlock(16)
	if b.hdmaLen == 0 {
		b.hdmaActive = false
		b.hdmaLen = 0x7F
		return
	}
	b.hdmaLen--
}

// Tick advances every hardware component by cycles T-cycles. In CGB double
// speed, the CPU bills twice as many T-cycles per real hardware cycle, so
// the PPU and APU (which run at the fixed hardware rate) only see half; the
// timer gets the full CPU count, so its rate doubles.
func (b *Bus) Tick(cycles int) {
	hwCycles := cycles
	if b.key1&0x80 != 0 {
		hwCycles = cycles / 2
	}
	b.ppu.Tick(hwCycles)
	b.timer.Tick(cycles)
	b.apu.Tick(hwCycles)
	b.tickOAMDMA(cycles)
}

// ArmSpeedSwitch reports whether KEY1 bit0 is set (STOP should perform the
// speed switch) and flips the current-speed bit, per spec's STOP handling.
func (b *Bus) ArmSpeedSwitch() bool {
	if b.key1&0x01 == 0 {
		return false
	}
	b.key1 = (b.key1 &^ 0x01) ^ 0x80
	return true
}

type busState struct {
	Cart     []byte
	PPU      []byte
	APU      []byte
	Timer    []byte
	Joypad   []byte
	IC       []byte
	WRAM     [wramBanks][0x1000]byte
	SVBK     byte
	HRAM     [0x7F]byte
	BootOn   bool
	CGBBoot  bool
	CGBMode  bool
	Key1     byte
	SB, SC   byte
	HDMASrcH byte
	HDMASrcL byte
	HDMADstH byte
	HDMADstL byte
	HDMALen  byte
	HDMAOn   bool
	HDMAMode byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		Cart: b.cart.SaveState(), PPU: b.ppu.SaveState(), APU: b.apu.SaveState(),
		Timer: b.timer.SaveState(), Joypad: b.joypad.SaveState(), IC: b.ic.SaveState(),
		WRAM: b.wram, SVBK: b.svbk, HRAM: b.hram,
		BootOn: b.bootEnabled, CGBBoot: b.cgbBoot, CGBMode: b.cgbMode, Key1: b.key1,
		SB: b.sb, SC: b.sc,
		HDMASrcH: b.hdmaSrcHi, HDMASrcL: b.hdmaSrcLo, HDMADstH: b.hdmaDstHi, HDMADstL: b.hdmaDstLo,
		HDMALen: b.hdmaLen, HDMAOn: b.hdmaActive, HDMAMode: b.hdmaMode,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.cart.LoadState(s.Cart)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.timer.LoadState(s.Timer)
	b.joypad.LoadState(s.Joypad)
	b.ic.LoadState(s.IC)
	b.wram, b.svbk, b.hram = s.WRAM, s.SVBK, s.HRAM
	b.bootEnabled, b.cgbBoot, b.cgbMode, b.key1 = s.BootOn, s.CGBBoot, s.CGBMode, s.Key1
	b.sb, b.sc = s.SB, s.SC
	b.hdmaSrcHi, b.hdmaSrcLo, b.hdmaDstHi, b.hdmaDstLo = s.HDMASrcH, s.HDMASrcL, s.HDMADstH, s.HDMADstL
	b.hdmaLen, b.hdmaActive, b.hdmaMode = s.HDMALen, s.HDMAOn, s.HDMAMode
}
