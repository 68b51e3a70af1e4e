package ppu

// RenderWindowScanlineUsingFetcher renders the window layer for one visible
// line starting at screen column winXStart, using the row-within-tile byte
// fineY (the caller is responsible for folding the window line counter into
// mapBase's row term and into fineY). Columns left of winXStart are left 0.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, winXStart int, fineY byte) [160]byte {
	var out [160]byte
	if winXStart >= 160 {
		return out
	}
	start := winXStart
	skip := 0
	if start < 0 {
		skip = -start
		start = 0
	}

	tileCol := uint16(0)
	tileIndexAddr := mapBase + tileCol
	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	for i := 0; i < skip; i++ {
		if q.Len() == 0 {
			tileCol = (tileCol + 1) & 31
			tileIndexAddr = mapBase + tileCol
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		_, _ = q.Pop()
	}

	for x := start; x < 160; x++ {
		if q.Len() == 0 {
			tileCol = (tileCol + 1) & 31
			tileIndexAddr = mapBase + tileCol
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
