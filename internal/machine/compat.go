package machine

import (
	"strings"

	"github.com/gbcore/gameboy/internal/cart"
)

// compatTitleExact maps exact, normalized titles to a preferred DMG
// compatibility palette ID, mirroring the CGB boot ROM's own title-keyed
// palette table for classic DMG-only cartridges run on CGB hardware.
var compatTitleExact = map[string]int{
	"TETRIS":              2, // Blue
	"TETRIS DX":           2,
	"SUPER MARIO LAND":    3, // Red
	"SUPER MARIO LAND 2":  3,
	"DR. MARIO":           4, // Pastel
	"DONKEY KONG":         1, // Sepia
	"THE LEGEND OF ZELDA": 0, // Green
	"ZELDA":               0,
	"METROID II":          3, // Red accent
	"KIRBY'S DREAM LAND":  4, // Pastel/soft
	"MEGA MAN":            2, // Blue
	"MEGAMAN":             2,
	"WARIO LAND":          1, // Sepia
	"POKEMON YELLOW":      4, // Pastel
	"POKEMON RED":         4,
	"POKEMON BLUE":        4,
	"POCKET MONSTERS":     4,
}

type compatContainsRule struct {
	substr string
	id     int
}

// compatTitleContains applies broader substring heuristics for families
// not caught by an exact title match.
var compatTitleContains = []compatContainsRule{
	{"TETRIS", 2},
	{"MARIO", 3},
	{"ZELDA", 0},
	{"KIRBY", 4},
	{"DONKEY KONG", 1},
	{"METROID", 3},
	{"MEGA MAN", 2},
	{"MEGAMAN", 2},
	{"WARIO", 1},
	{"POKEMON", 4},
	{"POCKET MONSTERS", 4},
}

// compatPaletteSetNames labels the curated four-shade sets CompatPaletteID
// indexes into; a front end uses the name or index to pick actual RGB
// shades for DMG-only ROMs running in CGB compatibility mode.
var compatPaletteSetNames = []string{"Green", "Sepia", "Blue", "Red", "Pastel", "Classic"}

// autoCompatPaletteFromHeader picks a default compatibility palette for a
// DMG-only cartridge using a small title table, then falls back to a
// checksum-derived but stable choice for other Nintendo-published titles.
func autoCompatPaletteFromHeader(h *cart.Header) (int, bool) {
	if h == nil {
		return 0, false
	}
	title := strings.TrimSpace(strings.TrimRight(h.Title, "\x00"))
	t := strings.ToUpper(title)
	if id, ok := compatTitleExact[t]; ok {
		return id, true
	}
	for _, r := range compatTitleContains {
		if strings.Contains(t, r.substr) {
			return r.id, true
		}
	}
	nintendo := false
	if h.OldLicensee == 0x33 {
		nintendo = strings.ToUpper(h.NewLicensee) == "01"
	} else {
		nintendo = h.OldLicensee == 0x01
	}
	if nintendo {
		return int(h.HeaderChecksum) % len(compatPaletteSetNames), true
	}
	return 0, true
}

// CompatPaletteID reports the DMG compatibility palette a front end should
// use to tint this ROM's grayscale framebuffer, when the cartridge itself
// carries no CGB color data (CGBFlag's top bit clear). The second return
// value is false for CGB-native cartridges, which render their own colors.
func (m *Machine) CompatPaletteID() (id int, ok bool) {
	if m == nil || m.compatPaletteID < 0 {
		return 0, false
	}
	return m.compatPaletteID, true
}

// CompatPaletteName is CompatPaletteID's human-readable counterpart.
func (m *Machine) CompatPaletteName() string {
	id, ok := m.CompatPaletteID()
	if !ok || id < 0 || id >= len(compatPaletteSetNames) {
		return ""
	}
	return compatPaletteSetNames[id]
}
