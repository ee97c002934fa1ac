package imagetool

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const markRadius = 5

var markColor = color.NRGBA{R: 255, A: 255}

// ParsePoints parses "X,Y" arguments into display coordinates.
func ParsePoints(args []string) ([]image.Point, error) {
	points := make([]image.Point, 0, len(args))
	for _, arg := range args {
		xs, ys, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q, expected X,Y", arg)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("invalid point %q, expected integers", arg)
		}
		points = append(points, image.Pt(x, y))
	}
	return points, nil
}

// OriginalPoint maps a point on the display image back to the full-size image.
func OriginalPoint(p image.Point, ratio float64) image.Point {
	if ratio <= 0 {
		return p
	}
	return image.Pt(int(float64(p.X)/ratio), int(float64(p.Y)/ratio))
}

type MarkResult struct {
	Output   string
	Original []image.Point
}

// Mark resizes the image by ratio, marks every display point with a red dot
// and its original coordinates, then saves <base>_marked.jpg into outputDir.
func Mark(path string, points []image.Point, ratio float64, outputDir string, log zerolog.Logger) (*MarkResult, error) {
	log = log.With().Str("op", "imagetool/mark").Logger()
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load image: %w", err)
	}
	display := imaging.Clone(src)
	if ratio > 0 && ratio != 1 {
		b := src.Bounds()
		w, h := int(float64(b.Dx())*ratio), int(float64(b.Dy())*ratio)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("resize ratio %v is too small for %dx%d image", ratio, b.Dx(), b.Dy())
		}
		display = imaging.Resize(src, w, h, imaging.Lanczos)
	}

	original, err := annotate(display, points, ratio)
	if err != nil {
		return nil, err
	}
	res := &MarkResult{Original: original}
	for i, p := range points {
		log.Info().Msgf("(%d, %d) -> original (%d, %d)", p.X, p.Y, original[i].X, original[i].Y)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating %s: %v", outputDir, err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res.Output = filepath.Join(outputDir, base+"_marked.jpg")
	if err := imaging.Save(display, res.Output); err != nil {
		return nil, fmt.Errorf("error saving %s: %w", res.Output, err)
	}
	log.Info().Str("file", res.Output).Msg("image saved")
	return res, nil
}

// annotate draws a dot and the original coordinates at every point of img.
func annotate(img draw.Image, points []image.Point, ratio float64) ([]image.Point, error) {
	bounds := img.Bounds()
	original := make([]image.Point, 0, len(points))
	for _, p := range points {
		if !p.In(bounds) {
			return nil, fmt.Errorf("point (%d, %d) is outside the %dx%d display image", p.X, p.Y, bounds.Dx(), bounds.Dy())
		}
		orig := OriginalPoint(p, ratio)
		drawDot(img, p, markRadius, markColor)
		drawLabel(img, p.Add(image.Pt(markRadius+2, 4)), fmt.Sprintf("(%d, %d)", orig.X, orig.Y), markColor)
		original = append(original, orig)
	}
	return original, nil
}

// drawLabel writes text with its baseline starting at dot.
func drawLabel(img draw.Image, dot image.Point, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(text)
}

func drawDot(img draw.Image, center image.Point, radius int, c color.Color) {
	src := image.NewUniform(c)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			p := center.Add(image.Pt(dx, dy))
			draw.Draw(img, image.Rect(p.X, p.Y, p.X+1, p.Y+1), src, image.Point{}, draw.Src)
		}
	}
}
