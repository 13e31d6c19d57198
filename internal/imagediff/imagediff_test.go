package imagediff

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.NRGBA{A: 255}
	gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

func TestCompareIdenticalIsZero(t *testing.T) {
	t.Parallel()

	img := solid(64, 48, white)
	fill(img, image.Rect(10, 10, 30, 20), black)
	data := encode(t, img)

	res, diff, err := NewComparator(0.05).Compare(data, data)
	require.NoError(t, err)
	require.Equal(t, 0, res.DiffPixels)
	require.Zero(t, res.Ratio)
	require.True(t, res.Passed)

	decoded, err := png.Decode(bytes.NewReader(diff))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 64, 48), decoded.Bounds())
}

func TestCompareIsDeterministic(t *testing.T) {
	t.Parallel()

	ref := solid(40, 40, white)
	act := solid(40, 40, white)
	fill(act, image.Rect(5, 5, 25, 15), black)
	c := NewComparator(0.05)

	r1, d1, err := c.Compare(encode(t, act), encode(t, ref))
	require.NoError(t, err)
	r2, d2, err := c.Compare(encode(t, act), encode(t, ref))
	require.NoError(t, err)
	require.Equal(t, r1, r2)
	require.Equal(t, d1, d2)
	require.Equal(t, 200, r1.DiffPixels)
}

func TestCompareCropsToCommonRegion(t *testing.T) {
	t.Parallel()

	act := solid(1280, 900, white)
	ref := solid(1280, 850, white)
	// Below the overlap, so ignored.
	fill(act, image.Rect(0, 850, 1280, 900), black)
	// Inside the overlap.
	fill(act, image.Rect(100, 100, 200, 185), black)

	res, diff, err := NewComparator(0.05).Compare(encode(t, act), encode(t, ref))
	require.NoError(t, err)
	require.Equal(t, 1280, res.Width)
	require.Equal(t, 850, res.Height)
	require.Equal(t, 100*85, res.DiffPixels)
	require.InDelta(t, float64(100*85)/float64(1280*850), res.Ratio, 1e-12)
	require.True(t, res.Passed)

	decoded, err := png.Decode(bytes.NewReader(diff))
	require.NoError(t, err)
	require.Equal(t, 1280, decoded.Bounds().Dx())
	require.Equal(t, 850, decoded.Bounds().Dy())
}

func TestCompareFailsAboveTolerance(t *testing.T) {
	t.Parallel()

	ref := solid(20, 10, white)
	act := solid(20, 10, white)
	fill(act, image.Rect(0, 0, 10, 10), black)

	res, _, err := NewComparator(0.05).Compare(encode(t, act), encode(t, ref))
	require.NoError(t, err)
	require.InDelta(t, 0.5, res.Ratio, 1e-12)
	require.False(t, res.Passed)
	require.InDelta(t, 50.0, res.Percent(), 1e-9)
}

func TestSmallColourShiftIsTolerated(t *testing.T) {
	t.Parallel()

	ref := solid(16, 16, white)
	act := solid(16, 16, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

	n, _, err := Match(ref, act, DefaultMatchOptions())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAntiAliasedEdgeIsTolerated(t *testing.T) {
	t.Parallel()

	ref := solid(10, 10, white)
	fill(ref, image.Rect(0, 0, 5, 10), black)
	act := solid(10, 10, white)
	fill(act, image.Rect(0, 0, 5, 10), black)
	fill(act, image.Rect(5, 0, 6, 10), gray)

	n, out, err := Match(ref, act, DefaultMatchOptions())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, DefaultMatchOptions().AAColor, rgbaAt(out, 5, 4))

	opts := DefaultMatchOptions()
	opts.IncludeAA = true
	n, _, err = Match(ref, act, opts)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestMatchMarksDifferences(t *testing.T) {
	t.Parallel()

	ref := solid(8, 8, white)
	act := solid(8, 8, white)
	fill(act, image.Rect(2, 2, 6, 6), black)

	n, out, err := Match(ref, act, DefaultMatchOptions())
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, DefaultMatchOptions().DiffColor, rgbaAt(out, 3, 3))
	bg := rgbaAt(out, 0, 0)
	require.Equal(t, bg.R, bg.G)
	require.Equal(t, uint8(255), bg.A)
}

func TestMatchRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	_, _, err := Match(solid(4, 4, white), solid(4, 5, white), DefaultMatchOptions())
	require.Error(t, err)
}

func TestMatchIdenticalFadesReference(t *testing.T) {
	t.Parallel()

	img := solid(4, 4, black)
	n, out, err := Match(img, img, DefaultMatchOptions())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, img.Rect, out.Bounds())
	// Black at 10% opacity over white.
	px := rgbaAt(out, 1, 1)
	require.InDelta(t, 229, int(px.R), 1)
	require.Equal(t, px.R, px.B)
	require.Equal(t, uint8(255), px.A)
}

func TestCropKeepsTopLeft(t *testing.T) {
	t.Parallel()

	src := solid(6, 6, white)
	src.SetNRGBA(0, 0, black)
	src.SetNRGBA(5, 5, black)
	got := Crop(src, 3, 3)
	require.Equal(t, image.Rect(0, 0, 3, 3), got.Bounds())
	require.Equal(t, black, got.NRGBAAt(0, 0))
	require.Equal(t, white, got.NRGBAAt(2, 2))
}

func TestCompareRejectsInvalidPNG(t *testing.T) {
	t.Parallel()

	good := encode(t, solid(2, 2, white))
	_, _, err := NewComparator(0.05).Compare([]byte("not a png"), good)
	require.ErrorContains(t, err, "decode actual")
	_, _, err = NewComparator(0.05).Compare(good, nil)
	require.ErrorContains(t, err, "decode reference")
}

func TestCompareFilesWritesDiff(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	actual := filepath.Join(dir, "a-actual.png")
	reference := filepath.Join(dir, "a-reference.png")
	diffPath := filepath.Join(dir, "a-diff.png")
	require.NoError(t, os.WriteFile(actual, encode(t, solid(4, 4, black)), 0o644))
	require.NoError(t, os.WriteFile(reference, encode(t, solid(4, 4, white)), 0o644))

	res, err := NewComparator(0.05).CompareFiles(actual, reference, diffPath)
	require.NoError(t, err)
	require.Equal(t, 16, res.DiffPixels)
	require.False(t, res.Passed)
	_, err = os.Stat(diffPath)
	require.NoError(t, err)
}

func TestRoundPercent(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 0.78, RoundPercent(0.0078125), 1e-9)
	require.InDelta(t, 100.0, RoundPercent(1), 1e-9)
	require.Zero(t, RoundPercent(0))
}
