package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/nusselt.report/internal/monitoring"
	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// ArtifactWriter lays the products of a completed solve out under the
// Setting's save root:
//
//	config/<name>.json            mirror of the Setting
//	data/<name>-nu2.npy           the Nusselt field
//	plots/<name>-nu2.png          palette-mapped field, auto-scaled
//	plots/<name>-nu2.html         interactive heat map
//	plots/<name>-nu2-profile.png  Nu profile across the mid row
//	plots/<name>-green-tc<c>.png  green history at each in-region thermocouple
type ArtifactWriter struct{}

// WriteArtifacts writes all artifacts, creating directories as needed.
func (ArtifactWriter) WriteArtifacts(b *tlc.ArtifactBundle) error {
	s := b.Setting
	nu := b.Nu
	if s.SaveRootDir == "" {
		return tlc.Errf(tlc.KindInternal, "no save root dir configured")
	}
	for _, sub := range []string{"config", "data", "plots"} {
		if err := os.MkdirAll(filepath.Join(s.SaveRootDir, sub), 0755); err != nil {
			return tlc.Wrapf(tlc.KindInternal, err, "create %s dir", sub)
		}
	}

	cfgPath := filepath.Join(s.SaveRootDir, "config", s.Name+".json")
	cfg, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "marshal setting")
	}
	if err := os.WriteFile(cfgPath, cfg, 0644); err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "write %s", cfgPath)
	}

	npyPath := filepath.Join(s.SaveRootDir, "data", s.Name+"-nu2.npy")
	if err := WriteNpyFile(npyPath, nu.Nu, nu.Height, nu.Width); err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "write %s", npyPath)
	}

	if err := writeGreenHistories(b); err != nil {
		return err
	}

	vmin, vmax, ok := FiniteRange(nu.Nu)
	if !ok {
		monitoring.Logf("nu field of %q is entirely NaN; skipping plots", s.Name)
		return nil
	}
	pngBytes, err := FieldPNG(nu.Nu, nu.Height, nu.Width, vmin, vmax)
	if err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "render nu png")
	}
	pngPath := filepath.Join(s.SaveRootDir, "plots", s.Name+"-nu2.png")
	if err := os.WriteFile(pngPath, pngBytes, 0644); err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "write %s", pngPath)
	}

	htmlPath := filepath.Join(s.SaveRootDir, "plots", s.Name+"-nu2.html")
	if err := WriteHeatmapHTML(htmlPath, s.Name, nu); err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "write %s", htmlPath)
	}

	profilePath := filepath.Join(s.SaveRootDir, "plots", s.Name+"-nu2-profile.png")
	if err := RowProfilePlot(profilePath, "Nu", nu.Nu, nu.Width, nu.Height/2); err != nil {
		return tlc.Wrapf(tlc.KindInternal, err, "write %s", profilePath)
	}
	return nil
}

// writeGreenHistories plots the raw and filtered green trace at every
// thermocouple anchor that falls inside the region, with its detected peak
// marked. Anchors outside the region have no green trace and are skipped.
func writeGreenHistories(b *tlc.ArtifactBundle) error {
	s := b.Setting
	if b.Green2 == nil || s.Area == nil {
		return nil
	}
	a := *s.Area
	for _, tc := range s.Thermocouples {
		y := int(tc.Y) - a.Top
		x := int(tc.X) - a.Left
		if y < 0 || y >= a.Height || x < 0 || x >= a.Width {
			continue
		}
		pixel := y*a.Width + x

		raw := b.Green2.History(pixel)
		var filtered []float64
		if b.Filtered != nil {
			filtered = b.Filtered.History(pixel)
		}
		peak := -1
		if b.Peak != nil && pixel < len(b.Peak.Idx) {
			peak = int(b.Peak.Idx[pixel])
		}

		path := filepath.Join(s.SaveRootDir, "plots", fmt.Sprintf("%s-green-tc%d.png", s.Name, tc.Column))
		if err := GreenHistoryPlot(path, raw, filtered, peak); err != nil {
			return tlc.Wrapf(tlc.KindInternal, err, "write %s", path)
		}
	}
	return nil
}
