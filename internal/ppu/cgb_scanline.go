package ppu

// BankedVRAMReader is a VRAM view that can address either CGB VRAM bank,
// used by the CGB scanline renderers for tile/attribute lookups that span
// both banks in a single pixel computation.
type BankedVRAMReader interface {
	ReadBank(bank int, addr uint16) byte
}

// cgbTilePixel resolves one BG/window pixel given a tile map entry and its
// paired attribute byte (bit7 priority, bit6 yflip, bit5 xflip, bit4 bank,
// bits2-0 palette).
func cgbTilePixel(mem BankedVRAMReader, tileNum, attr byte, tileData8000 bool, row, col byte) byte {
	bank := 0
	if attr&0x10 != 0 {
		bank = 1
	}
	if attr&0x40 != 0 { // yflip
		row = 7 - row
	}
	if attr&0x20 != 0 { // xflip
		col = 7 - col
	}
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(row)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(row)*2
	}
	lo := mem.ReadBank(bank, base)
	hi := mem.ReadBank(bank, base+1)
	bit := 7 - col
	return ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
}

// RenderBGScanlineCGB renders one BG line with CGB tile attributes (bank,
// flips, palette, priority). The tile map itself always lives in bank 0;
// its mirrored attribute byte always lives in bank 1.
func RenderBGScanlineCGB(mem BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapRow := (bgY >> 3) & 31
	for x := 0; x < 160; x++ {
		bgX := (uint16(x) + uint16(scx)) & 0xFF
		tileCol := (bgX >> 3) & 31
		off := mapRow*32 + tileCol
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		ci[x] = cgbTilePixel(mem, tileNum, attr, tileData8000, fineY, byte(bgX&7))
		pal[x] = attr & 0x07
		pri[x] = attr&0x80 != 0
	}
	return
}

// RenderWindowScanlineCGB renders one window line with CGB tile attributes.
// winLine is the window's own line counter (0..143); winXStart is WX-7.
func RenderWindowScanlineCGB(mem BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, winXStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	fineY := winLine & 7
	mapRow := uint16(winLine>>3) & 31
	for x := 0; x < 160; x++ {
		wx := x - winXStart
		if wx < 0 {
			continue
		}
		tileCol := uint16(wx>>3) & 31
		off := mapRow*32 + tileCol
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		ci[x] = cgbTilePixel(mem, tileNum, attr, tileData8000, fineY, byte(wx&7))
		pal[x] = attr & 0x07
		pri[x] = attr&0x80 != 0
	}
	return
}
