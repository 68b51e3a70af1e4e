package cart

// ROMOnly is cartridge type 0x00: a bare ROM with no mapper and no
// external RAM. Everything outside the fixed 0x0000-0x7FFF window reads
// as open-bus 0xFF and all writes are no-ops.
type ROMOnly struct {
	rom []byte
}

func NewROMOnly(rom []byte) *ROMOnly {
	return &ROMOnly{rom: rom}
}

func (c *ROMOnly) Read(addr uint16) byte {
	if addr < 0x8000 {
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	}
	// 0xA000-0xBFFF (no external RAM) and anything else in range falls here.
	return 0xFF
}

// Write is a no-op: there is no mapper to latch and no RAM to store into.
func (c *ROMOnly) Write(addr uint16, value byte) {}

func (c *ROMOnly) SaveState() []byte      { return nil }
func (c *ROMOnly) LoadState(data []byte) {}
