package imagediff

import (
	"image"
	"image/color"

	"github.com/orisano/pixelmatch"
)

// MatchOptions tunes the per-pixel comparison.
type MatchOptions struct {
	// Threshold is the per-pixel colour distance in [0,1]; smaller is stricter.
	Threshold float64
	// IncludeAA counts anti-aliased pixels as differences instead of tolerating them.
	IncludeAA bool
	// Alpha is the opacity of the unchanged background in the diff image.
	Alpha     float64
	AAColor   color.RGBA
	DiffColor color.RGBA
}

// DefaultMatchOptions tolerates anti-aliasing and small colour shifts.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		Threshold: 0.1,
		Alpha:     0.1,
		AAColor:   color.RGBA{R: 255, G: 255, A: 255},
		DiffColor: color.RGBA{R: 255, A: 255},
	}
}

func (o MatchOptions) pixelmatch(out *image.Image) []pixelmatch.MatchOption {
	opts := []pixelmatch.MatchOption{
		pixelmatch.Threshold(o.Threshold),
		pixelmatch.Alpha(o.Alpha),
		pixelmatch.AntiAliasedColor(o.AAColor),
		pixelmatch.DiffColor(o.DiffColor),
		pixelmatch.WriteTo(out),
	}
	if o.IncludeAA {
		opts = append(opts, pixelmatch.IncludeAntiAlias)
	}
	return opts
}

// Match counts perceptually different pixels between img1 and img2, which must have the same
// bounds. The returned visualisation shows img1 faded to gray, differing pixels in DiffColor
// and tolerated anti-aliasing in AAColor.
func Match(img1, img2 image.Image, opts MatchOptions) (int, image.Image, error) {
	var out image.Image
	n, err := pixelmatch.MatchPixel(img1, img2, opts.pixelmatch(&out)...)
	if err != nil {
		return 0, nil, err
	}
	// Identical inputs take a fast path that leaves out unset.
	if out == nil {
		out = fade(img1, opts.Alpha)
	}
	return n, out, nil
}

// fade renders img as faded grayscale, the way unchanged pixels appear in a diff image.
func fade(img image.Image, alpha float64) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			lum := (float64(r)*0.29889531 + float64(g)*0.58662247 + float64(bl)*0.11448223) / 257
			v := uint8(255 + (lum-255)*alpha*float64(a)/0xffff)
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
