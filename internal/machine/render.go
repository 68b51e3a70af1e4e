package machine

import "github.com/gbcore/gameboy/internal/ppu"

// renderBG renders the background layer into the RGBA framebuffer, in one
// of three ways depending on cfg: the CGB attribute-aware path, the
// fetcher/FIFO scanline path, or a direct per-pixel DMG path. All three use
// the PPU's per-scanline register snapshot so mid-frame register writes
// (a common trick in commercial ROMs) render correctly line by line.
func (m *Machine) renderBG() {
	if m.bus == nil {
		return
	}
	if m.cfg.UseCGBBG && m.cgbCapable {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			if lr.LCDC == 0 {
				lr.LCDC = m.bus.Read(0xFF40)
				lr.SCY = m.bus.Read(0xFF42)
				lr.SCX = m.bus.Read(0xFF43)
				lr.BGP = m.bus.Read(0xFF47)
			}
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
				for x := 0; x < 160; x++ {
					i := (y*m.w + x) * 4
					m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = 0xFF, 0xFF, 0xFF, 0xFF
					m.bgci[y*m.w+x] = 0
					m.bgpal[y*m.w+x] = 0
					m.bgpri[y*m.w+x] = false
				}
				continue
			}
			mapBase := uint16(0x9800)
			if (lr.LCDC & 0x08) != 0 {
				mapBase = 0x9C00
			}
			attrsBase := mapBase
			tileData8000 := (lr.LCDC & 0x10) != 0
			vr := vramBankedAdapter{ppu: m.bus.PPU()}
			line, pals, pris := ppu.RenderBGScanlineCGB(vr, mapBase, attrsBase, tileData8000, lr.SCX, lr.SCY, byte(y))
			useDMGPal := !m.bus.PPU().BGPalReady()
			var bgp byte
			if useDMGPal {
				bgp = lr.BGP
				if lr.LCDC == 0 {
					bgp = m.bus.Read(0xFF47)
				}
			}
			shade := func(ci byte) (byte, byte, byte) {
				shift := ci * 2
				pal := (bgp >> shift) & 0x03
				switch pal {
				case 0:
					return 0xFF, 0xFF, 0xFF
				case 1:
					return 0xC0, 0xC0, 0xC0
				case 2:
					return 0x60, 0x60, 0x60
				default:
					return 0x00, 0x00, 0x00
				}
			}
			for x := 0; x < 160; x++ {
				pal := pals[x]
				ci := line[x]
				var r, g, b byte
				if useDMGPal {
					r, g, b = shade(ci)
				} else {
					r, g, b = m.bus.PPU().BGColorRGB(pal, ci)
				}
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = r, g, b, 0xFF
				m.bgci[y*m.w+x] = ci
				m.bgpal[y*m.w+x] = pal
				m.bgpri[y*m.w+x] = pris[x]
			}
		}
		return
	}
	if m.cfg.UseFetcherBG {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			if lr.LCDC == 0 {
				lr.LCDC = m.bus.Read(0xFF40)
				lr.SCY = m.bus.Read(0xFF42)
				lr.SCX = m.bus.Read(0xFF43)
				lr.BGP = m.bus.Read(0xFF47)
			}
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
				for x := 0; x < 160; x++ {
					i := (y*m.w + x) * 4
					m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = 0xFF, 0xFF, 0xFF, 0xFF
					m.bgci[y*m.w+x] = 0
				}
				continue
			}
			bgMapBase := uint16(0x9800)
			if (lr.LCDC & 0x08) != 0 {
				bgMapBase = 0x9C00
			}
			tileData8000 := (lr.LCDC & 0x10) != 0
			vr := vramReaderAdapter{ppu: m.bus.PPU()}
			line := ppu.RenderBGScanlineUsingFetcher(vr, bgMapBase, tileData8000, lr.SCX, lr.SCY, byte(y))
			bgp := lr.BGP
			shade := func(ci byte) byte {
				shift := ci * 2
				pal := (bgp >> shift) & 0x03
				switch pal {
				case 0:
					return 0xFF
				case 1:
					return 0xC0
				case 2:
					return 0x60
				default:
					return 0x00
				}
			}
			for x := 0; x < 160; x++ {
				ci := line[x]
				s := shade(ci)
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = s, s, s, 0xFF
				m.bgci[y*m.w+x] = ci
			}
		}
		return
	}
	for y := 0; y < 144; y++ {
		lr := m.bus.PPU().LineRegs(y)
		if lr.LCDC == 0 {
			lr.LCDC = m.bus.Read(0xFF40)
			lr.SCY = m.bus.Read(0xFF42)
			lr.SCX = m.bus.Read(0xFF43)
			lr.BGP = m.bus.Read(0xFF47)
		}
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
			for x := 0; x < 160; x++ {
				i := (y*m.w + x) * 4
				m.fb[i+0] = 0xFF
				m.fb[i+1] = 0xFF
				m.fb[i+2] = 0xFF
				m.fb[i+3] = 0xFF
				m.bgci[y*m.w+x] = 0
			}
			continue
		}
		bgMapBase := uint16(0x9800)
		if (lr.LCDC & 0x08) != 0 {
			bgMapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		bgy := byte((uint16(lr.SCY) + uint16(y)) & 0xFF)
		tileRow := uint16(bgy/8) * 32
		fineY := bgy % 8
		for x := 0; x < 160; x++ {
			bgx := byte((uint16(lr.SCX) + uint16(x)) & 0xFF)
			tileCol := uint16(bgx / 8)
			tileIndexAddr := bgMapBase + tileRow + tileCol
			tileNum := m.bus.PPU().RawVRAM(tileIndexAddr)
			var tileAddr uint16
			if tileData8000 {
				tileAddr = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
			} else {
				tileAddr = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
			}
			lo := m.bus.PPU().RawVRAM(tileAddr)
			hi := m.bus.PPU().RawVRAM(tileAddr + 1)
			bit := 7 - (bgx % 8)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			bgp := lr.BGP
			shade := func(ci byte) byte {
				shift := ci * 2
				pal := (bgp >> shift) & 0x03
				switch pal {
				case 0:
					return 0xFF
				case 1:
					return 0xC0
				case 2:
					return 0x60
				default:
					return 0x00
				}
			}
			s := shade(ci)
			i := (y*m.w + x) * 4
			m.fb[i+0] = s
			m.fb[i+1] = s
			m.fb[i+2] = s
			m.fb[i+3] = 0xFF
			m.bgci[y*m.w+x] = ci
		}
	}
}

func (m *Machine) renderWindow() {
	if m.bus == nil {
		return
	}
	if m.cfg.UseCGBBG && m.cgbCapable {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			if lr.LCDC == 0 {
				lr.LCDC = m.bus.Read(0xFF40)
				lr.WY = m.bus.Read(0xFF4A)
				lr.WX = m.bus.Read(0xFF4B)
			}
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
				continue
			}
			if y < int(lr.WY) || int(lr.WY) >= 144 {
				continue
			}
			winXStart := int(lr.WX) - 7
			if winXStart >= 160 {
				continue
			}
			mapBase := uint16(0x9800)
			if (lr.LCDC & 0x40) != 0 {
				mapBase = 0x9C00
			}
			attrsBase := mapBase
			tileData8000 := (lr.LCDC & 0x10) != 0
			vr := vramBankedAdapter{ppu: m.bus.PPU()}
			line, pals, pris := ppu.RenderWindowScanlineCGB(vr, mapBase, attrsBase, tileData8000, winXStart, lr.WinLine)
			useDMGPal := !m.bus.PPU().BGPalReady()
			var bgp byte
			if useDMGPal {
				bgp = m.bus.Read(0xFF47)
			}
			shade := func(ci byte) (byte, byte, byte) {
				shift := ci * 2
				pal := (bgp >> shift) & 0x03
				switch pal {
				case 0:
					return 0xFF, 0xFF, 0xFF
				case 1:
					return 0xC0, 0xC0, 0xC0
				case 2:
					return 0x60, 0x60, 0x60
				default:
					return 0x00, 0x00, 0x00
				}
			}
			for x := max(0, winXStart); x < 160; x++ {
				pal := pals[x]
				ci := line[x]
				var r, g, b byte
				if useDMGPal {
					r, g, b = shade(ci)
				} else {
					r, g, b = m.bus.PPU().BGColorRGB(pal, ci)
				}
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = r, g, b, 0xFF
				m.bgci[y*m.w+x] = ci
				m.bgpal[y*m.w+x] = pal
				m.bgpri[y*m.w+x] = pris[x]
			}
		}
		return
	}
	if m.cfg.UseFetcherBG {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			if lr.LCDC == 0 {
				lr.LCDC = m.bus.Read(0xFF40)
				lr.WY = m.bus.Read(0xFF4A)
				lr.WX = m.bus.Read(0xFF4B)
				lr.BGP = m.bus.Read(0xFF47)
			}
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
				continue
			}
			if y < int(lr.WY) || int(lr.WY) >= 144 {
				continue
			}
			winXStart := int(lr.WX) - 7
			if winXStart >= 160 {
				continue
			}
			winMapBase := uint16(0x9800)
			if (lr.LCDC & 0x40) != 0 {
				winMapBase = 0x9C00
			}
			tileData8000 := (lr.LCDC & 0x10) != 0
			rowOffset := uint16(lr.WinLine/8) * 32
			vr := vramReaderAdapter{ppu: m.bus.PPU()}
			line := ppu.RenderWindowScanlineUsingFetcher(vr, winMapBase+rowOffset, tileData8000, winXStart, lr.WinLine%8)
			bgp := lr.BGP
			shade := func(ci byte) byte {
				shift := ci * 2
				pal := (bgp >> shift) & 0x03
				switch pal {
				case 0:
					return 0xFF
				case 1:
					return 0xC0
				case 2:
					return 0x60
				default:
					return 0x00
				}
			}
			for x := max(0, winXStart); x < 160; x++ {
				ci := line[x]
				s := shade(ci)
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = s, s, s, 0xFF
				m.bgci[y*m.w+x] = ci
			}
		}
		return
	}
	for y := 0; y < 144; y++ {
		lr := m.bus.PPU().LineRegs(y)
		if lr.LCDC == 0 {
			lr.LCDC = m.bus.Read(0xFF40)
			lr.WY = m.bus.Read(0xFF4A)
			lr.WX = m.bus.Read(0xFF4B)
			lr.BGP = m.bus.Read(0xFF47)
		}
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
			continue
		}
		if y < int(lr.WY) || int(lr.WY) >= 144 {
			continue
		}
		winXStart := int(lr.WX) - 7
		if winXStart >= 160 {
			continue
		}
		winMapBase := uint16(0x9800)
		if (lr.LCDC & 0x40) != 0 {
			winMapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		winY := lr.WinLine
		tileRow := uint16(winY/8) * 32
		fineY := winY % 8
		bgp := lr.BGP
		shade := func(ci byte) byte {
			shift := ci * 2
			pal := (bgp >> shift) & 0x03
			switch pal {
			case 0:
				return 0xFF
			case 1:
				return 0xC0
			case 2:
				return 0x60
			default:
				return 0x00
			}
		}
		for x := max(0, winXStart); x < 160; x++ {
			winX := byte(x - winXStart)
			tileCol := uint16(winX / 8)
			tileIndexAddr := winMapBase + tileRow + tileCol
			tileNum := m.bus.PPU().RawVRAM(tileIndexAddr)
			var tileAddr uint16
			if tileData8000 {
				tileAddr = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
			} else {
				tileAddr = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
			}
			lo := m.bus.PPU().RawVRAM(tileAddr)
			hi := m.bus.PPU().RawVRAM(tileAddr + 1)
			bit := 7 - (winX % 8)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			s := shade(ci)
			i := (y*m.w + x) * 4
			m.fb[i+0] = s
			m.fb[i+1] = s
			m.fb[i+2] = s
			m.fb[i+3] = 0xFF
			m.bgci[y*m.w+x] = ci
		}
	}
}

// renderSprites composes the OBJ layer, with 8x8/8x16 support, OBP0/OBP1 or
// CGB OBJ palettes, and BG-vs-OBJ priority via the bgci/bgpri side buffers
// renderBG/renderWindow populated.
func (m *Machine) renderSprites() {
	if m.bus == nil {
		return
	}
	if m.cfg.UseCGBBG && m.cgbCapable {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			lcdc := lr.LCDC
			if lcdc == 0 {
				lcdc = m.bus.Read(0xFF40)
			}
			if (lcdc&0x80) == 0 || (lcdc&0x02) == 0 {
				continue
			}
			sprite16 := (lcdc & 0x04) != 0
			sprites := m.collectSprites(y, sprite16)
			if len(sprites) == 0 {
				continue
			}
			obp0, obp1 := lr.OBP0, lr.OBP1
			if lr.LCDC == 0 {
				obp0 = m.bus.Read(0xFF48)
				obp1 = m.bus.Read(0xFF49)
			}
			useOBJPal := m.bus.PPU().OBJPalReady()
			for x := 0; x < 160; x++ {
				for _, s := range sprites {
					if x < s.sx || x >= s.sx+8 {
						continue
					}
					row := y - s.sy
					col := x - s.sx
					yflip := (s.attr & (1 << 6)) != 0
					xflip := (s.attr & (1 << 5)) != 0
					if yflip {
						if sprite16 {
							row = 15 - row
						} else {
							row = 7 - row
						}
					}
					if xflip {
						col = 7 - col
					}
					tIndex := s.tile
					if sprite16 {
						tIndex &= 0xFE
						if row >= 8 {
							tIndex++
						}
					}
					rowWithin := row & 7
					base := uint16(0x8000) + uint16(tIndex)*16 + uint16(rowWithin)*2
					bank := 0
					if (s.attr & (1 << 3)) != 0 {
						bank = 1
					}
					var lo, hi byte
					if bank == 0 {
						lo = m.bus.PPU().RawVRAM(base)
						hi = m.bus.PPU().RawVRAM(base + 1)
					} else {
						lo = m.bus.PPU().RawVRAMBank(1, base)
						hi = m.bus.PPU().RawVRAMBank(1, base+1)
					}
					bit := 7 - byte(col%8)
					ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
					if ci == 0 {
						continue
					}
					bgci := m.bgci[y*m.w+x]
					if bgci != 0 {
						if (lcdc & 0x01) == 0 {
							// OBJ wins regardless of priority when BG/window is disabled.
						} else {
							bgPri := m.bgpri[y*m.w+x]
							objBehind := (s.attr & (1 << 7)) != 0
							if bgPri || objBehind {
								continue
							}
						}
					}
					pal := s.attr & 0x07
					var r, g, b byte
					if useOBJPal {
						r, g, b = m.bus.PPU().OBJColorRGB(pal, ci)
					} else {
						dmgPal := obp0
						if (s.attr & (1 << 4)) != 0 {
							dmgPal = obp1
						}
						shift := ci * 2
						p := (dmgPal >> shift) & 0x03
						var gray byte
						switch p {
						case 0:
							gray = 0xFF
						case 1:
							gray = 0xC0
						case 2:
							gray = 0x60
						default:
							gray = 0x00
						}
						r, g, b = gray, gray, gray
					}
					i := (y*m.w + x) * 4
					m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = r, g, b, 0xFF
					break
				}
			}
		}
		return
	}
	if m.cfg.UseFetcherBG {
		for y := 0; y < 144; y++ {
			lr := m.bus.PPU().LineRegs(y)
			lcdc := lr.LCDC
			if lcdc == 0 {
				lcdc = m.bus.Read(0xFF40)
			}
			if (lcdc&0x80) == 0 || (lcdc&0x02) == 0 {
				continue
			}
			sprite16 := (lcdc & 0x04) != 0
			obp0, obp1 := lr.OBP0, lr.OBP1
			if lr.LCDC == 0 {
				obp0 = m.bus.Read(0xFF48)
				obp1 = m.bus.Read(0xFF49)
			}
			raw := m.collectSprites(y, sprite16)
			if len(raw) == 0 {
				continue
			}
			sprites := make([]ppu.Sprite, 0, len(raw))
			for _, s := range raw {
				sprites = append(sprites, ppu.Sprite{X: s.sx, Y: s.sy, Tile: s.tile, Attr: s.attr, OAMIndex: s.index})
			}
			var bgciLine [160]byte
			copy(bgciLine[:], m.bgci[y*m.w:(y+1)*m.w])
			vr := vramReaderAdapter{ppu: m.bus.PPU()}
			sline, palSel := ppu.ComposeSpriteLineExt(vr, sprites, y, bgciLine, sprite16)
			shadeP := func(pal byte, ci byte) byte {
				shift := ci * 2
				p := (pal >> shift) & 0x03
				switch p {
				case 0:
					return 0xFF
				case 1:
					return 0xC0
				case 2:
					return 0x60
				default:
					return 0x00
				}
			}
			for x := 0; x < 160; x++ {
				ci := sline[x]
				if ci == 0 {
					continue
				}
				pal := obp0
				if palSel[x] == 1 {
					pal = obp1
				}
				gray := shadeP(pal, ci)
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = gray, gray, gray, 0xFF
			}
		}
		return
	}
	shadeP := func(pal byte, ci byte) byte {
		shift := ci * 2
		p := (pal >> shift) & 0x03
		switch p {
		case 0:
			return 0xFF
		case 1:
			return 0xC0
		case 2:
			return 0x60
		default:
			return 0x00
		}
	}
	for y := 0; y < 144; y++ {
		lr := m.bus.PPU().LineRegs(y)
		lcdc := lr.LCDC
		if lcdc == 0 {
			lcdc = m.bus.Read(0xFF40)
		}
		if (lcdc & 0x80) == 0 {
			continue
		}
		if (lcdc & 0x02) == 0 {
			continue
		}
		sprite16 := (lcdc & 0x04) != 0
		obp0, obp1 := lr.OBP0, lr.OBP1
		if lr.LCDC == 0 {
			obp0 = m.bus.Read(0xFF48)
			obp1 = m.bus.Read(0xFF49)
		}
		candidates := m.collectSprites(y, sprite16)
		if len(candidates) == 0 {
			continue
		}
		for i := 0; i < len(candidates); i++ {
			for j := i + 1; j < len(candidates); j++ {
				if candidates[j].sx < candidates[i].sx || (candidates[j].sx == candidates[i].sx && candidates[j].index < candidates[i].index) {
					candidates[i], candidates[j] = candidates[j], candidates[i]
				}
			}
		}
		for x := 0; x < 160; x++ {
			bestFound := false
			bestX := 0
			bestIdx := 0
			bestGray := byte(0)
			for _, s := range candidates {
				if x < s.sx || x >= s.sx+8 {
					continue
				}
				if (s.attr & (1 << 7)) != 0 {
					if m.bgci[y*m.w+x] != 0 {
						continue
					}
				}
				row := y - s.sy
				col := x - s.sx
				if (s.attr & (1 << 6)) != 0 {
					if sprite16 {
						row = 15 - row
					} else {
						row = 7 - row
					}
				}
				if (s.attr & (1 << 5)) != 0 {
					col = 7 - col
				}
				tIndex := s.tile
				if sprite16 {
					tIndex &= 0xFE
					if row >= 8 {
						tIndex++
					}
				}
				rowWithin := row & 7
				tileAddr := uint16(0x8000) + uint16(tIndex)*16 + uint16(rowWithin)*2
				lo := m.bus.PPU().RawVRAM(tileAddr)
				hi := m.bus.PPU().RawVRAM(tileAddr + 1)
				bit := 7 - byte(col%8)
				ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
				if ci == 0 {
					continue
				}
				if !bestFound || s.sx < bestX || (s.sx == bestX && s.index < bestIdx) {
					pal := obp0
					if (s.attr & (1 << 4)) != 0 {
						pal = obp1
					}
					bestGray = shadeP(pal, ci)
					bestX = s.sx
					bestIdx = s.index
					bestFound = true
				}
			}
			if bestFound {
				i := (y*m.w + x) * 4
				m.fb[i+0] = bestGray
				m.fb[i+1] = bestGray
				m.fb[i+2] = bestGray
				m.fb[i+3] = 0xFF
			}
		}
	}
}

type oamEntry struct {
	sy, sx     int
	tile, attr byte
	index      int
}

// collectSprites gathers up to 10 OAM entries (hardware's per-line cap)
// that cover scanline y, in OAM order.
func (m *Machine) collectSprites(y int, sprite16 bool) []oamEntry {
	list := make([]oamEntry, 0, 10)
	height := 8
	if sprite16 {
		height = 16
	}
	for i := 0; i < 40 && len(list) < 10; i++ {
		base := uint16(0xFE00 + i*4)
		sy := int(m.bus.PPU().RawOAM(base)) - 16
		sx := int(m.bus.PPU().RawOAM(base+1)) - 8
		tile := m.bus.PPU().RawOAM(base + 2)
		attr := m.bus.PPU().RawOAM(base + 3)
		if sy <= y && y < sy+height {
			list = append(list, oamEntry{sy, sx, tile, attr, i})
		}
	}
	return list
}
