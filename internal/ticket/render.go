package ticket

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"eventcheckin/internal/attendee"
)

const (
	width         = 420
	height        = 280
	margin        = 20
	barcodeTop    = 104
	barcodeHeight = 120
)

// Renderer draws an attendee's ticket: event and attendee details above a
// CODE128 barcode of the attendee's code.
type Renderer struct {
	EventName string
}

// Render returns the ticket as a PNG.
func (r Renderer) Render(a attendee.Attendee) ([]byte, error) {
	if a.Barcode == "" {
		return nil, fmt.Errorf("%w: attendee %s has no barcode", attendee.ErrInvalid, a.ID)
	}
	bc, err := code128.Encode(a.Barcode)
	if err != nil {
		return nil, fmt.Errorf("encode barcode: %w", err)
	}
	scaled, err := barcode.Scale(bc, width-2*margin, barcodeHeight)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(margin, barcodeTop, width-margin, barcodeTop+barcodeHeight), scaled, image.Point{}, draw.Over)

	y := 28
	for _, line := range r.lines(a) {
		centered(canvas, line, y)
		y += 18
	}
	centered(canvas, a.Barcode, barcodeTop+barcodeHeight+22)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r Renderer) lines(a attendee.Attendee) []string {
	var out []string
	if r.EventName != "" {
		out = append(out, r.EventName)
	}
	out = append(out, a.Name, a.Email)
	var place string
	if a.TableNumber != nil {
		place = "Table " + *a.TableNumber
	}
	if a.SeatNumber != nil {
		if place != "" {
			place += "  "
		}
		place += "Seat " + *a.SeatNumber
	}
	if place != "" {
		out = append(out, place)
	}
	return out
}

func centered(dst draw.Image, s string, y int) {
	d := font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	w := d.MeasureString(s).Ceil()
	x := (width - w) / 2
	if x < margin {
		x = margin
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}
