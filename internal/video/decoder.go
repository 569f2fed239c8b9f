package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// JPEG quality of served thumbnails.
const thumbnailQuality = 70

// Decoder is the low-level frame access the Source builds on. The ffmpeg
// implementation is the production path; tests substitute fakes.
type Decoder interface {
	Probe(path string) (tlc.VideoMeta, error)
	// DecodeFrame returns the frame at index as JPEG bytes.
	DecodeFrame(meta tlc.VideoMeta, index int) ([]byte, error)
	// DecodeGreenBand decodes frames [start, start+count), writing the green
	// channel of area into dst frame-major. keep is called after each frame;
	// returning false stops the decode early without error.
	DecodeGreenBand(meta tlc.VideoMeta, start, count int, area tlc.Area, dst []uint8, keep func(frame int) bool) error
}

// FFmpegDecoder shells out to ffmpeg. Seeking with -ss before -i lands on
// the nearest preceding keyframe and ffmpeg discards frames up to the target,
// which is exactly the packet-independence strategy the seek path needs.
type FFmpegDecoder struct{}

func (FFmpegDecoder) Probe(path string) (tlc.VideoMeta, error) {
	return ProbeFile(path)
}

// seekArg formats the timestamp of a frame index with sub-frame bias so
// rounding never lands on the previous frame.
func seekArg(index int, frameRate float64) string {
	return fmt.Sprintf("%.6f", (float64(index)+0.5)/frameRate)
}

func (FFmpegDecoder) DecodeFrame(meta tlc.VideoMeta, index int) ([]byte, error) {
	cmd := exec.Command("ffmpeg",
		"-v", "error",
		"-ss", seekArg(index, meta.FrameRate),
		"-i", meta.Path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	raw, err := cmd.Output()
	if err != nil {
		return nil, tlc.Wrapf(tlc.KindDecodeFailed, err, "frame %d of %s", index, meta.Path)
	}
	return encodeJPEG(raw, meta.Width, meta.Height)
}

// encodeJPEG wraps raw rgb24 bytes into the fixed-quality thumbnail format.
func encodeJPEG(raw []byte, w, h int) ([]byte, error) {
	if len(raw) < 3*w*h {
		return nil, tlc.Errf(tlc.KindDecodeFailed, "short frame: %d bytes for %dx%d", len(raw), w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[4*i+0] = raw[3*i+0]
		img.Pix[4*i+1] = raw[3*i+1]
		img.Pix[4*i+2] = raw[3*i+2]
		img.Pix[4*i+3] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, tlc.Wrapf(tlc.KindDecodeFailed, err, "jpeg encode")
	}
	return buf.Bytes(), nil
}

func (FFmpegDecoder) DecodeGreenBand(meta tlc.VideoMeta, start, count int, area tlc.Area, dst []uint8, keep func(frame int) bool) error {
	// The crop filter limits the pipe to the region of interest, so the
	// transfer cost scales with the region, not the full frame.
	cmd := exec.Command("ffmpeg",
		"-v", "error",
		"-ss", seekArg(start, meta.FrameRate),
		"-i", meta.Path,
		"-frames:v", fmt.Sprint(count),
		"-vf", fmt.Sprintf("crop=%d:%d:%d:%d", area.Width, area.Height, area.Left, area.Top),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return tlc.Wrapf(tlc.KindDecodeFailed, err, "pipe for %s", meta.Path)
	}
	if err := cmd.Start(); err != nil {
		return tlc.Wrapf(tlc.KindDecodeFailed, err, "start ffmpeg for %s", meta.Path)
	}
	defer cmd.Wait()

	npx := area.NumPixels()
	frameBytes := 3 * npx
	raw := make([]byte, frameBytes)
	for f := 0; f < count; f++ {
		if _, err := io.ReadFull(stdout, raw); err != nil {
			cmd.Process.Kill()
			return tlc.Wrapf(tlc.KindDecodeFailed, err, "frame %d of %s", start+f, meta.Path)
		}
		base := f * npx
		for p := 0; p < npx; p++ {
			dst[base+p] = raw[3*p+1]
		}
		if !keep(1) {
			cmd.Process.Kill()
			return nil
		}
	}
	return nil
}
