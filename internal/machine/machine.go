// Package machine wires the cartridge, bus, CPU, and renderer into the
// top-level orchestrator a front end drives one frame at a time.
package machine

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/gbcore/gameboy/internal/bus"
	"github.com/gbcore/gameboy/internal/cart"
	"github.com/gbcore/gameboy/internal/cpu"
	ioregs "github.com/gbcore/gameboy/internal/io"
	"github.com/gbcore/gameboy/internal/ppu"
)

// Buttons mirrors the eight-button Game Boy input state using names a UI
// front end writes to directly, independent of the wire bitmask in §6.3.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// input bitmask assignment per spec §6.3: BUTTON_A=0x01, BUTTON_B=0x02,
// BUTTON_SELECT=0x04, BUTTON_START=0x08, DPAD_RIGHT=0x10, DPAD_LEFT=0x20,
// DPAD_UP=0x40, DPAD_DOWN=0x80.
const (
	InputA      byte = 0x01
	InputB      byte = 0x02
	InputSelect byte = 0x04
	InputStart  byte = 0x08
	InputRight  byte = 0x10
	InputLeft   byte = 0x20
	InputUp     byte = 0x40
	InputDown   byte = 0x80
)

type Machine struct {
	cfg   Config
	w, h  int
	fb    []byte // RGBA 160x144*4
	bgci  []byte // BG/window color index (0..3) per pixel for priority
	bgpal []byte // BG palette index (0..7) per pixel when in CGB path
	bgpri []bool // BG priority flag per pixel when in CGB path

	bus        *bus.Bus
	cpu        *cpu.CPU
	romPath    string
	bootROM    []byte
	cgbBootROM []byte
	cgbCapable bool

	// compatPaletteID is -1 until LoadCartridge derives one for a DMG-only
	// cartridge; CompatPaletteID reports "no opinion" until then.
	compatPaletteID int

	breakpoints map[uint16]func(*Machine)
	pausepoints map[uint16]bool
	stepLimit   int
	stepCount   int
	breaking    bool
	listener    func(addr uint16)

	inputCh  chan byte
	stepsInFrame int
}

func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg, w: 160, h: 144,
		fb:              make([]byte, 160*144*4),
		bgci:            make([]byte, 160*144),
		bgpal:           make([]byte, 160*144),
		bgpri:           make([]bool, 160*144),
		breakpoints:     make(map[uint16]func(*Machine)),
		pausepoints:     make(map[uint16]bool),
		inputCh:         make(chan byte, 1),
		compatPaletteID: -1,
	}
}

func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	romHeader, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	m.cgbCapable = false
	if romHeader != nil && (romHeader.CGBFlag&0x80) != 0 {
		m.cgbCapable = true
	}
	useBoot := len(boot) >= 0x100
	if romHeader != nil && (romHeader.CGBFlag&0x80) != 0 && len(boot) == 0x100 {
		useBoot = false
	}

	b := bus.New(rom)
	b.EnableBoot(0)
	if useBoot {
		b.SetBootROM(boot)
	}
	c := cpu.New(b)
	c.HaltOnUndefined = m.cfg.HaltOnUndefined
	if useBoot {
		c.SP = 0xFFFE
		c.PC = 0x0000
		c.IME = false
		b.EnableBoot(1)
	} else {
		c.ResetNoBoot()
		c.SetPC(0x0100)
		if romHeader != nil && (romHeader.CGBFlag&0x80) != 0 {
			c.A = 0x11
		}
	}
	m.bus = b
	m.cpu = c
	m.bootROM = nil
	if len(boot) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot[:0x100])
	}
	if len(boot) < 0x100 {
		m.applyDMGPostBootIO()
	}
	m.compatPaletteID = -1
	if romHeader != nil {
		if romHeader.CGBFlag&0x80 != 0 {
			m.cfg.UseCGBBG = true
			m.bus.SetCGBMode(true)
		} else {
			m.cfg.UseCGBBG = false
			m.bus.SetCGBMode(false)
			if id, ok := autoCompatPaletteFromHeader(romHeader); ok {
				m.compatPaletteID = id
			}
		}
	}
	return nil
}

func (m *Machine) SetUseFetcherBG(on bool) { m.cfg.UseFetcherBG = on }

func (m *Machine) SetUseCGBBG(on bool) {
	m.cfg.UseCGBBG = on
	if m.bus != nil {
		m.bus.SetCGBMode(on && m.cgbCapable)
	}
}

func (m *Machine) UseCGBBG() bool { return m.cfg.UseCGBBG && m.cgbCapable }

func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var boot []byte
	if len(m.bootROM) >= 0x100 {
		boot = m.bootROM
	}
	if err := m.LoadCartridge(data, boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

func (m *Machine) ROMPath() string          { return m.romPath }
func (m *Machine) SetROMPath(path string)   { m.romPath = path }

func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, data[:0x100])
	} else {
		m.bootROM = nil
	}
	if m.bus != nil {
		m.bus.SetBootROM(m.bootROM)
	}
}

func (m *Machine) SetCGBBootROM(data []byte) {
	if len(data) >= 0x800 {
		m.cgbBootROM = make([]byte, 0x800)
		copy(m.cgbBootROM, data[len(data)-0x800:])
	} else {
		m.cgbBootROM = nil
	}
	if m.bus != nil {
		m.bus.SetCGBBootROM(m.cgbBootROM)
	}
}

func (m *Machine) HasBootROM() bool    { return len(m.bootROM) >= 0x100 }
func (m *Machine) HasCGBBootROM() bool { return len(m.cgbBootROM) >= 0x800 }

func (m *Machine) ResetPostBoot() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.applyDMGPostBootIO()
	m.bus.EnableBoot(0)
}

func (m *Machine) ResetWithBoot() {
	if m.cpu == nil || m.bus == nil || len(m.bootROM) < 0x100 {
		m.ResetPostBoot()
		return
	}
	m.bus.SetBootROM(m.bootROM)
	m.bus.EnableBoot(1)
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
	m.cpu.IME = false
}

func (m *Machine) ResetWithCGBBoot() {
	if m.cpu == nil || m.bus == nil || len(m.cgbBootROM) < 0x800 {
		m.ResetPostBoot()
		return
	}
	m.bus.SetCGBBootROM(m.cgbBootROM)
	m.bus.EnableBoot(2)
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
	m.cpu.IME = false
}

func (m *Machine) ResetCGBPostBoot() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.bus.SetCGBMode(true)
	m.bus.EnableBoot(0)
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.cpu.A = 0x11
	m.applyDMGPostBootIO()
}

// applyDMGPostBootIO sets a minimal set of IO registers to DMG post-boot
// defaults, so ROMs can start from PC=0x0100 without a boot ROM and still
// have the LCD enabled.
func (m *Machine) applyDMGPostBootIO() {
	if m == nil || m.bus == nil {
		return
	}
	b := m.bus
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
	b.Write(0xFF26, 0x80)
	b.Write(0xFF24, 0x77)
	b.Write(0xFF25, 0xFF)
}

func (m *Machine) SaveBattery() ([]byte, bool) {
	if m == nil || m.bus == nil {
		return nil, false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		data := bb.SaveRAM()
		if len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

func (m *Machine) LoadBattery(data []byte) bool {
	if m == nil || m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}

// RequestInputs is the one method documented as safe to call from another
// goroutine (spec §5): it writes to a single-slot channel that Step drains
// at its next iteration, so input changes apply only at instruction
// boundaries without any internal locking.
func (m *Machine) RequestInputs(mask byte) {
	select {
	case m.inputCh <- mask:
		return
	default:
	}
	select {
	case <-m.inputCh:
	default:
	}
	select {
	case m.inputCh <- mask:
	default:
	}
}

func (m *Machine) applyInputMask(mask byte) {
	if m.bus == nil {
		return
	}
	m.bus.SetButtons(ioregs.Buttons{
		A: mask&InputA != 0, B: mask&InputB != 0,
		Select: mask&InputSelect != 0, Start: mask&InputStart != 0,
		Right: mask&InputRight != 0, Left: mask&InputLeft != 0,
		Up: mask&InputUp != 0, Down: mask&InputDown != 0,
	})
}

// SetButtons is a UI-facing convenience that mirrors the fielded Buttons
// struct instead of the wire bitmask, for front ends that track buttons
// that way already.
func (m *Machine) SetButtons(btn Buttons) {
	if m.bus == nil {
		return
	}
	m.bus.SetButtons(ioregs.Buttons{
		A: btn.A, B: btn.B, Select: btn.Select, Start: btn.Start,
		Right: btn.Right, Left: btn.Left, Up: btn.Up, Down: btn.Down,
	})
}

// SetBreakpoint registers fn to run (with Step's PC-check taken before the
// instruction at addr executes) every time PC reaches addr.
func (m *Machine) SetBreakpoint(addr uint16, fn func(*Machine)) {
	m.breakpoints[addr] = fn
}

// ClearBreakpoint removes a previously registered breakpoint.
func (m *Machine) ClearBreakpoint(addr uint16) { delete(m.breakpoints, addr) }

// SetPausepoint installs the default print-and-halt handler at addr.
func (m *Machine) SetPausepoint(addr uint16) { m.pausepoints[addr] = true }

// StepLimit forces a break once n instructions have executed (0 disables).
func (m *Machine) StepLimit(n int) { m.stepLimit = n; m.stepCount = 0 }

// SetInterruptListener registers fn, named to match the original's
// set_handler/break_now/is_breaking trio (spec §6.5). fn is called with the
// current PC after a Step that executed an undefined opcode; interrupt
// vector jumps do not call it.
func (m *Machine) SetInterruptListener(fn func(addr uint16)) { m.listener = fn }

// BreakNow makes IsBreaking report true at once, until ClearBreak.
func (m *Machine) BreakNow() { m.breaking = true }

// IsBreaking reports whether a breakpoint, pausepoint, or step limit has
// fired since the last ClearBreak.
func (m *Machine) IsBreaking() bool { return m.breaking }

// ClearBreak resets IsBreaking so the caller can resume stepping.
func (m *Machine) ClearBreak() { m.breaking = false }

// Step executes exactly one CPU instruction (or one halted/stopped tick)
// and returns the T-cycles billed, having already ticked GPU/Timer/APU by
// that count (cpu.CPU.Step ticks the bus internally).
func (m *Machine) Step() int {
	if m.cpu == nil {
		return 0
	}
	select {
	case mask := <-m.inputCh:
		m.applyInputMask(mask)
	default:
	}
	pc := m.cpu.PC
	if fn, ok := m.breakpoints[pc]; ok {
		m.breaking = true
		fn(m)
	}
	if m.pausepoints[pc] {
		m.breaking = true
		fmt.Fprintf(os.Stderr, "pausepoint hit at $%04X\n", pc)
	}
	if m.stepLimit > 0 {
		m.stepCount++
		if m.stepCount >= m.stepLimit {
			m.breaking = true
		}
	}
	cycles := m.cpu.Step()
	if m.listener != nil {
		if _, ok := m.cpu.UndefinedHit(); ok {
			m.listener(m.cpu.PC)
		}
	}
	return cycles
}

func (m *Machine) StepFrame() {
	m.stepFrameCycles()
	m.renderBG()
	m.renderWindow()
	m.renderSprites()
}

// StepFrameNoRender advances one frame's worth of CPU cycles without
// touching the framebuffer, for serial/register-driven test-ROM harnesses
// that never look at pixels.
func (m *Machine) StepFrameNoRender() {
	m.stepFrameCycles()
}

func (m *Machine) stepFrameCycles() {
	if m.cpu == nil {
		return
	}
	target := 70224
	acc := 0
	for acc < target {
		acc += m.Step()
	}
}

// SimulateOneFrame steps until the GPU has completed one full VBlank pass
// (LY wraps 153→0) and returns the resulting framebuffer.
func (m *Machine) SimulateOneFrame() []byte {
	if m.bus == nil {
		return m.fb
	}
	sawVBlank := false
	for {
		m.Step()
		ly := m.bus.PPU().CPURead(0xFF44)
		if ly == 153 {
			sawVBlank = true
		}
		if sawVBlank && ly == 0 {
			break
		}
	}
	m.renderBG()
	m.renderWindow()
	m.renderSprites()
	return m.fb
}

func (m *Machine) Framebuffer() []byte { return m.fb }

func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	if m != nil && m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

func (m *Machine) APUPullSamples(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullSamples(max)
}

func (m *Machine) APUPullStereo(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

func (m *Machine) APUBufferedStereo() int {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

func (m *Machine) APUClearAudioLatency() {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().ClearStereoBuffer()
}

func (m *Machine) APUCapBufferedStereo(target int) {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().TrimStereoTo(target)
}

// --- Save/Load state ---

const stateMagic = "GBSTATE1"
const stateVersion uint32 = 1

type machineState struct {
	Bus []byte
	CPU []byte
}

// SaveState serializes the machine per spec §6.4's framing: an 8-byte magic,
// a u32 version, then the component sub-states. Each component still
// controls its own gob encoding; this wraps them rather than hand-rolling
// the byte-exact field layout the spec sketches, since every component
// already exposes SaveState/LoadState for its own concerns.
func (m *Machine) SaveState() []byte {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var body bytes.Buffer
	_ = gob.NewEncoder(&body).Encode(machineState{Bus: m.bus.SaveState(), CPU: m.cpu.SaveState()})

	var out bytes.Buffer
	out.WriteString(stateMagic)
	var verBuf [4]byte
	verBuf[0] = byte(stateVersion)
	verBuf[1] = byte(stateVersion >> 8)
	verBuf[2] = byte(stateVersion >> 16)
	verBuf[3] = byte(stateVersion >> 24)
	out.Write(verBuf[:])
	out.Write(body.Bytes())
	return out.Bytes()
}

// LoadState restores a snapshot produced by SaveState. On magic/version
// mismatch or truncation it returns an error and leaves the machine
// untouched (spec §7).
func (m *Machine) LoadState(data []byte) error {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	if len(data) < len(stateMagic)+4 {
		return fmt.Errorf("machine: truncated save state (%d bytes)", len(data))
	}
	if string(data[:len(stateMagic)]) != stateMagic {
		return fmt.Errorf("machine: bad save state magic %q", data[:len(stateMagic)])
	}
	off := len(stateMagic)
	ver := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
	if ver != stateVersion {
		return fmt.Errorf("machine: unsupported save state version %d (want %d)", ver, stateVersion)
	}
	off += 4
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data[off:])).Decode(&s); err != nil {
		return fmt.Errorf("machine: decode save state: %w", err)
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}

// vramReaderAdapter adapts the live PPU RawVRAM to the ppu.VRAMReader
// interface used by the fetcher-based scanline renderer.
type vramReaderAdapter struct{ ppu *ppu.PPU }

func (a vramReaderAdapter) Read(addr uint16) byte { return a.ppu.RawVRAM(addr) }

// vramBankedAdapter adapts PPU RawVRAM/RawVRAMBank to the CGB banked VRAM
// reader interface.
type vramBankedAdapter struct{ ppu *ppu.PPU }

func (a vramBankedAdapter) ReadBank(bank int, addr uint16) byte {
	if bank == 0 {
		return a.ppu.RawVRAM(addr)
	}
	return a.ppu.RawVRAMBank(1, addr)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
