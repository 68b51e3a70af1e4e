package cart

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges with external RAM to be persisted.
// Implementations should return a copy of RAM bytes (may be empty if no RAM), and accept data to load.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// LoadReport records how the cartridge was constructed so construction can degrade
// gracefully instead of aborting (spec §7): unsupported MBC or a failing header
// checksum still produce a usable, if simplified, cartridge.
type LoadReport struct {
	Header      *Header
	Degraded    bool
	DegradeNote string
}

// New picks a Cartridge implementation based on the ROM header and never fails:
// unrecognized MBC types or bad checksums fall back to a best-effort implementation,
// with the degradation recorded in the returned report.
func New(rom []byte) (Cartridge, *LoadReport) {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom), &LoadReport{Degraded: true, DegradeNote: "truncated ROM: " + err.Error()}
	}
	report := &LoadReport{Header: h}
	if !HeaderChecksumOK(rom) {
		report.Degraded = true
		report.DegradeNote = "header checksum mismatch; continuing best-effort"
	}
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom), report
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), report
	case 0x05, 0x06:
		return NewMBC2(rom), report
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes), report
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), report
	default:
		report.Degraded = true
		report.DegradeNote = "unsupported cartridge type $" + hex2(h.CartType) + "; falling back to ROM-only"
		return NewROMOnly(rom), report
	}
}

// NewCartridge is a convenience wrapper over New for callers that don't need the report.
func NewCartridge(rom []byte) Cartridge {
	c, _ := New(rom)
	return c
}

func hex2(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
