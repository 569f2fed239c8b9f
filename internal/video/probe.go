// Package video supplies frames to the computation core: metadata probing,
// a pooled seek path for interactive thumbnails, and a bulk green-channel
// pipeline for the matrix build. Decoding is delegated to ffmpeg/ffprobe
// subprocesses.
package video

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// ffprobeOutput mirrors the JSON ffprobe emits with -show_format -show_streams.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	NbFrames     string `json:"nb_frames"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

// runFFprobe executes ffprobe and parses its JSON output.
func runFFprobe(inputPath string) (*ffprobeOutput, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", inputPath, err)
	}
	var result ffprobeOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// parseRate parses an ffprobe rational like "30000/1001".
func parseRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ProbeFile extracts the video metadata block the Setting records.
func ProbeFile(path string) (tlc.VideoMeta, error) {
	probe, err := runFFprobe(path)
	if err != nil {
		return tlc.VideoMeta{}, err
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		if stream.Width <= 0 || stream.Height <= 0 {
			return tlc.VideoMeta{}, fmt.Errorf("invalid dimensions in %s: %dx%d", path, stream.Width, stream.Height)
		}
		rate := parseRate(stream.AvgFrameRate)
		if rate == 0 {
			rate = parseRate(stream.RFrameRate)
		}
		if rate == 0 {
			return tlc.VideoMeta{}, fmt.Errorf("no frame rate in %s", path)
		}

		total := 0
		if stream.NbFrames != "" {
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				total = n
			}
		}
		if total == 0 && probe.Format.Duration != "" {
			// Containers without a frame count get an estimate from the
			// duration. When the estimate exceeds the real count, decoding a
			// window that reaches past the last frame fails.
			if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
				total = int(d * rate)
			}
		}
		if total < 1 {
			return tlc.VideoMeta{}, fmt.Errorf("cannot determine frame count of %s", path)
		}

		return tlc.VideoMeta{
			Path:        path,
			TotalFrames: total,
			FrameRate:   rate,
			Height:      stream.Height,
			Width:       stream.Width,
		}, nil
	}
	return tlc.VideoMeta{}, fmt.Errorf("no video stream found in %s", path)
}
