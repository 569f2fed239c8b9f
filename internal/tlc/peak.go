package tlc

// DetectPeaks computes, per pixel, the frame offset of the maximum filtered
// green value. Ties break toward the smallest index, so a flat trace peaks
// at frame zero.
func DetectPeaks(f *Filtered, fp Fingerprint, prog *Progress) (*PeakIdx, error) {
	out := &PeakIdx{FP: fp, Idx: make([]uint32, f.Pixels)}
	prog.Start(uint32(f.Pixels))

	for p := 0; p < f.Pixels; p++ {
		if prog.Canceled() {
			return nil, ErrCanceled
		}
		best := f.Vals[p]
		bestIdx := uint32(0)
		for fr := 1; fr < f.Frames; fr++ {
			if v := f.Vals[fr*f.Pixels+p]; v > best {
				best = v
				bestIdx = uint32(fr)
			}
		}
		out.Idx[p] = bestIdx
		prog.Add(1)
	}
	return out, nil
}
