package tlc

// GreenSource is the bulk decode pipeline the green matrix build pulls from.
// Implementations decode frames [start, start+count) of the file at path and
// write the green channel of the region into dst frame-major (frame f pixel p
// at f*area.NumPixels()+p). The keep callback is invoked once per completed
// frame; returning false cancels the decode.
type GreenSource interface {
	GreenROI(path string, start, count int, area Area, dst []uint8, keep func(frames int) bool) error
}

// Green2Input is the immutable snapshot the build stage works from.
type Green2Input struct {
	VideoPath  string
	StartFrame int
	FrameNum   int
	Area       Area
}

// BuildGreen2 extracts the green channel of every region pixel over the
// synchronized window. Decode errors abort the stage; a cancel observed via
// prog aborts with ErrCanceled.
func BuildGreen2(src GreenSource, in Green2Input, fp Fingerprint, prog *Progress) (*Green2, error) {
	npx := in.Area.NumPixels()
	out := &Green2{
		FP:     fp,
		Frames: in.FrameNum,
		Pixels: npx,
		Vals:   make([]uint8, in.FrameNum*npx),
	}
	prog.Start(uint32(in.FrameNum))

	err := src.GreenROI(in.VideoPath, in.StartFrame, in.FrameNum, in.Area, out.Vals, func(frames int) bool {
		if prog.Canceled() {
			return false
		}
		prog.Add(uint32(frames))
		return true
	})
	if err != nil {
		return nil, err
	}
	if prog.Canceled() {
		return nil, ErrCanceled
	}
	return out, nil
}
