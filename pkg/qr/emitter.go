/*
 * Qrflow
 * Copyright (C) 2026. Nlwallet community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package qr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// Setup errors: these indicate a broken caller, not a runtime condition to recover from.
var (
	// ErrNoContainer is returned when the render container cannot be resolved.
	ErrNoContainer = errors.New("qr container not found")
	// ErrNoText is returned when there is nothing to encode.
	ErrNoText = errors.New("no text to encode")
)

// DefaultSize is the rendered code size in pixels when none is configured.
const DefaultSize = 192

// DefaultLogoRatio is the logo size as a fraction of the smaller code dimension.
const DefaultLogoRatio = 0.2

// Container is a render target for an emitted code. Rendering always clears
// prior content first, so re-rendering the same container is idempotent.
type Container interface {
	// Clear discards previously rendered content.
	Clear()
	// SetImage installs the freshly rendered code.
	SetImage(img image.Image)
}

// ImageContainer is the plain Container: it simply holds the last rendered image.
type ImageContainer struct {
	img image.Image
}

func (c *ImageContainer) Clear()                   { c.img = nil }
func (c *ImageContainer) SetImage(img image.Image) { c.img = img }

// Image returns the last rendered image, nil when cleared.
func (c *ImageContainer) Image() image.Image { return c.img }

// Options configures one render of a session id (or any text) as a scannable code.
type Options struct {
	Container Container
	Text      string
	// Size is the edge length in pixels, DefaultSize when zero.
	Size int
	// ColorDark and ColorLight default to black on white.
	ColorDark  color.Color
	ColorLight color.Color
	// CorrectLevel is one of L, M, Q, H. Default M.
	CorrectLevel string
	// QuietZone adds a bordered inset background of this many pixels around the code.
	QuietZone int
	// Logo is drawn centered on top of the code when set.
	Logo image.Image
	// LogoSizeRatio is the logo size relative to the smaller code dimension,
	// clamped to (0,1). DefaultLogoRatio when zero.
	LogoSizeRatio float64
}

// Render encodes opts.Text into opts.Container. It fails loudly on a missing
// container or an unencodable text: both are setup errors.
func Render(opts Options) error {
	if opts.Container == nil {
		return ErrNoContainer
	}
	img, err := Encode(opts)
	if err != nil {
		return err
	}
	opts.Container.Clear()
	opts.Container.SetImage(img)
	return nil
}

// Encode renders the code to an image without a container, for callers that
// serve the bytes directly.
func Encode(opts Options) (image.Image, error) {
	if opts.Text == "" {
		return nil, ErrNoText
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	level, err := correctLevel(opts.CorrectLevel)
	if err != nil {
		return nil, err
	}

	code, err := qrcode.New(opts.Text, level)
	if err != nil {
		return nil, fmt.Errorf("could not encode qr text: %w", err)
	}
	if opts.ColorDark != nil {
		code.ForegroundColor = opts.ColorDark
	}
	if opts.ColorLight != nil {
		code.BackgroundColor = opts.ColorLight
	}

	img := code.Image(size)
	if opts.QuietZone > 0 {
		img = addQuietZone(img, opts.QuietZone, code.BackgroundColor)
	}
	if opts.Logo != nil {
		img = overlayLogo(img, opts.Logo, opts.LogoSizeRatio)
	}
	return img, nil
}

// RenderTerminal writes the code as a scannable block-character grid, for the CLI demo.
func RenderTerminal(w io.Writer, text string) {
	qrterminal.GenerateWithConfig(text, qrterminal.Config{
		HalfBlocks: false,
		BlackChar:  qrterminal.WHITE,
		WhiteChar:  qrterminal.BLACK,
		Level:      qrterminal.M,
		Writer:     w,
		QuietZone:  1,
	})
}

func correctLevel(name string) (qrcode.RecoveryLevel, error) {
	switch name {
	case "", "M", "m":
		return qrcode.Medium, nil
	case "L", "l":
		return qrcode.Low, nil
	case "Q", "q":
		return qrcode.High, nil
	case "H", "h":
		return qrcode.Highest, nil
	}
	return 0, fmt.Errorf("unknown error correction level: %s", name)
}

func addQuietZone(img image.Image, padding int, background color.Color) image.Image {
	bounds := img.Bounds()
	padded := image.NewRGBA(image.Rect(0, 0, bounds.Dx()+2*padding, bounds.Dy()+2*padding))
	draw.Draw(padded, padded.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(padded, bounds.Add(image.Pt(padding, padding)), img, bounds.Min, draw.Src)
	return padded
}

func overlayLogo(img, logo image.Image, ratio float64) image.Image {
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultLogoRatio
	}
	bounds := img.Bounds()
	smaller := bounds.Dx()
	if bounds.Dy() < smaller {
		smaller = bounds.Dy()
	}
	edge := int(float64(smaller) * ratio)
	if edge <= 0 {
		return img
	}

	combined := image.NewRGBA(bounds)
	draw.Draw(combined, bounds, img, bounds.Min, draw.Src)

	scaled := scale(logo, edge, edge)
	offset := image.Pt(bounds.Min.X+(bounds.Dx()-edge)/2, bounds.Min.Y+(bounds.Dy()-edge)/2)
	draw.Draw(combined, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(edge, edge))}, scaled, image.Point{}, draw.Over)
	return combined
}

// scale is a nearest-neighbour resize; logos are small enough that quality is irrelevant.
func scale(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := src.Min.X + x*src.Dx()/width
			sy := src.Min.Y + y*src.Dy()/height
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
