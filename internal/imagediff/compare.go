package imagediff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/codalotl/docxcompat/internal/fsutil"
)

// ErrEmptyOverlap is returned when one of the images has no pixels.
var ErrEmptyOverlap = errors.New("images have no overlapping area")

// Result is the outcome of comparing an actual capture with its reference.
type Result struct {
	Width      int
	Height     int
	DiffPixels int
	// Ratio is DiffPixels / (Width*Height), in [0,1].
	Ratio  float64
	Passed bool
}

// Percent returns Ratio as a percentage rounded to two decimals.
func (r Result) Percent() float64 {
	return RoundPercent(r.Ratio)
}

// RoundPercent converts a ratio to a percentage with two decimals.
func RoundPercent(ratio float64) float64 {
	return float64(int64(ratio*10000+0.5)) / 100
}

// Comparator compares PNG captures against references. Tolerance is the largest passing
// ratio of differing pixels.
type Comparator struct {
	Tolerance float64
	Options   MatchOptions
}

func NewComparator(tolerance float64) *Comparator {
	return &Comparator{Tolerance: tolerance, Options: DefaultMatchOptions()}
}

// Compare decodes two PNG buffers, crops both to their common top-left rectangle and counts
// differing pixels. It returns the PNG-encoded diff image alongside the result. Dimensions
// beyond the overlap are ignored.
func (c *Comparator) Compare(actualPNG, referencePNG []byte) (Result, []byte, error) {
	actual, err := decode(actualPNG)
	if err != nil {
		return Result{}, nil, fmt.Errorf("decode actual: %w", err)
	}
	reference, err := decode(referencePNG)
	if err != nil {
		return Result{}, nil, fmt.Errorf("decode reference: %w", err)
	}
	width := min(actual.Bounds().Dx(), reference.Bounds().Dx())
	height := min(actual.Bounds().Dy(), reference.Bounds().Dy())
	if width <= 0 || height <= 0 {
		return Result{}, nil, ErrEmptyOverlap
	}

	a := Crop(actual, width, height)
	ref := Crop(reference, width, height)
	n, out, err := Match(ref, a, c.Options)
	if err != nil {
		return Result{}, nil, fmt.Errorf("match: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, out); err != nil {
		return Result{}, nil, fmt.Errorf("encode diff: %w", err)
	}
	ratio := float64(n) / float64(width*height)
	return Result{
		Width:      width,
		Height:     height,
		DiffPixels: n,
		Ratio:      ratio,
		Passed:     ratio <= c.Tolerance,
	}, buf.Bytes(), nil
}

// CompareFiles compares two PNG files and writes the diff image to diffPath.
func (c *Comparator) CompareFiles(actualPath, referencePath, diffPath string) (Result, error) {
	actual, err := os.ReadFile(actualPath)
	if err != nil {
		return Result{}, err
	}
	reference, err := os.ReadFile(referencePath)
	if err != nil {
		return Result{}, err
	}
	res, diff, err := c.Compare(actual, reference)
	if err != nil {
		return Result{}, err
	}
	if err := fsutil.WriteFileAtomic(diffPath, diff, 0o644); err != nil {
		return Result{}, fmt.Errorf("write diff image: %w", err)
	}
	return res, nil
}

// Crop copies the top-left width x height region of src into a new non-premultiplied image
// anchored at the origin. No scaling is applied.
func Crop(src image.Image, width, height int) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Copy(dst, image.Point{}, src, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Min.Y+height), draw.Src, nil)
	return dst
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return png.Decode(bytes.NewReader(data))
}
