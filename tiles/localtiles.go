package tiles

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LocalProvider renders offline debug tiles labelled with their key and
// north-west corner. It never fails.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) GetTile(ctx context.Context, key Key) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: invalid tile %s", ErrTileFetchFailed, key)
	}

	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))

	bgColor := color.RGBA{200, 220, 255, 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{bgColor}, image.Point{}, draw.Src)

	bound := key.Bound()
	drawLabel(img, 112, key.String())
	drawLabel(img, 144, fmt.Sprintf("%.4f, %.4f", bound.Top(), bound.Left()))

	borderColor := color.RGBA{100, 100, 100, 255}
	borders := []image.Rectangle{
		image.Rect(0, 0, TileSize, 1),
		image.Rect(0, TileSize-1, TileSize, TileSize),
		image.Rect(0, 0, 1, TileSize),
		image.Rect(TileSize-1, 0, TileSize, TileSize),
	}
	for _, rect := range borders {
		draw.Draw(img, rect, &image.Uniform{borderColor}, image.Point{}, draw.Src)
	}

	return img, nil
}

// drawLabel draws text horizontally centered on a translucent plate whose
// vertical center is y.
func drawLabel(img *image.RGBA, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}

	textWidth := d.MeasureString(text).Round()
	textHeight := face.Metrics().Height.Round()

	padding := 6
	plate := image.Rect(
		(TileSize-textWidth)/2-padding,
		y-textHeight/2-padding,
		(TileSize+textWidth)/2+padding,
		y+textHeight/2+padding,
	)
	draw.Draw(img, plate, &image.Uniform{color.RGBA{255, 255, 255, 220}}, image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{
		X: fixed.I((TileSize - textWidth) / 2),
		Y: fixed.I(y + textHeight/2 - face.Descent),
	}
	d.DrawString(text)
}
