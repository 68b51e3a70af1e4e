package machine

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace        bool // not read by Machine; no instruction log is written
	LimitFPS     bool // not read by Machine; stepping is never throttled
	UseFetcherBG bool // render BG via fetcher/FIFO scanline path
	UseCGBBG     bool // render BG/window/sprites via the CGB attribute-aware path
	// HaltOnUndefined selects between treating illegal opcodes as NOP (false)
	// and halting the CPU (true) (spec §7). Either way the opcode is reported
	// through CPU.UndefinedHit; nothing is logged.
	HaltOnUndefined bool
}
