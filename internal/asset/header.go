// Package asset checks App Store icons and screenshot sets against the image
// requirement tables. Images are never fully decoded; only headers are read.
package asset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of a file is handed to the content sniffer.
const sniffLen = 3 << 10

// ErrNotImage is returned by Probe for files whose content is not an image.
var ErrNotImage = errors.New("not an image")

// ColorMode describes how pixels are stored.
type ColorMode string

const (
	ModeGray      ColorMode = "greyscale"
	ModeGrayAlpha ColorMode = "greyscale+alpha"
	ModeRGB       ColorMode = "rgb"
	ModeRGBA      ColorMode = "rgba"
	ModePalette   ColorMode = "palette"
	ModeYCbCr     ColorMode = "ycbcr"
	ModeCMYK      ColorMode = "cmyk"
	ModeUnknown   ColorMode = "unknown"
)

// Header is what Probe learns about an image without decoding pixels.
type Header struct {
	Format    string
	Width     int
	Height    int
	ColorMode ColorMode
	BitDepth  int
	HasAlpha  bool
	Size      int64
}

// Probe reads the header of the image at path. Content that does not sniff as
// an image yields ErrNotImage.
func Probe(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Header{}, err
	}
	h := Header{Size: info.Size()}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return h, fmt.Errorf("failed to read %s: %w", path, err)
	}
	mtype := mimetype.Detect(head[:n])
	if !strings.HasPrefix(mtype.String(), "image/") {
		return h, fmt.Errorf("%s is %s: %w", path, mtype.String(), ErrNotImage)
	}
	h.Format = formatName(mtype.String())

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return h, fmt.Errorf("failed to rewind %s: %w", path, err)
	}
	cfg, decoded, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return h, fmt.Errorf("unsupported %s header in %s: %w", h.Format, path, err)
	}
	h.Width, h.Height = cfg.Width, cfg.Height
	h.ColorMode, h.HasAlpha = modeOf(cfg.ColorModel)
	h.BitDepth = 8

	if decoded == "png" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return h, fmt.Errorf("failed to rewind %s: %w", path, err)
		}
		if err := probePNG(bufio.NewReader(f), &h); err != nil {
			return h, fmt.Errorf("corrupt png header in %s: %w", path, err)
		}
	}
	return h, nil
}

func formatName(mime string) string {
	name := strings.TrimPrefix(mime, "image/")
	name = strings.TrimPrefix(name, "x-")
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	return name
}

func modeOf(m color.Model) (ColorMode, bool) {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return ModeGray, false
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return ModeRGBA, true
	case color.YCbCrModel:
		return ModeYCbCr, false
	case color.CMYKModel:
		return ModeCMYK, false
	}
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return ModePalette, true
			}
		}
		return ModePalette, false
	}
	return ModeUnknown, false
}

// PNG colour types from the IHDR chunk.
const (
	pngGray      = 0
	pngRGB       = 2
	pngPalette   = 3
	pngGrayAlpha = 4
	pngRGBA      = 6
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// probePNG reads IHDR, then walks chunk headers up to the first IDAT looking
// for a tRNS chunk, which adds transparency to any colour type.
func probePNG(r *bufio.Reader, h *Header) error {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return err
	}
	if string(sig) != string(pngSignature) {
		return errors.New("bad signature")
	}

	var chunk [8]byte
	first := true
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return fmt.Errorf("truncated chunk: %w", err)
		}
		length := binary.BigEndian.Uint32(chunk[:4])
		kind := string(chunk[4:8])

		switch {
		case first && kind != "IHDR":
			return fmt.Errorf("first chunk is %q, expected IHDR", kind)
		case kind == "IHDR":
			var ihdr [13]byte
			if length != uint32(len(ihdr)) {
				return fmt.Errorf("IHDR length %d", length)
			}
			if _, err := io.ReadFull(r, ihdr[:]); err != nil {
				return err
			}
			h.BitDepth = int(ihdr[8])
			h.ColorMode, h.HasAlpha = pngMode(ihdr[9])
			length = 0
		case kind == "tRNS":
			h.HasAlpha = true
		case kind == "IDAT" || kind == "IEND":
			return nil
		}
		first = false

		// chunk data plus CRC
		if _, err := r.Discard(int(length) + 4); err != nil {
			return fmt.Errorf("truncated %s chunk: %w", kind, err)
		}
	}
}

func pngMode(colorType byte) (ColorMode, bool) {
	switch colorType {
	case pngGray:
		return ModeGray, false
	case pngRGB:
		return ModeRGB, false
	case pngPalette:
		return ModePalette, false
	case pngGrayAlpha:
		return ModeGrayAlpha, true
	case pngRGBA:
		return ModeRGBA, true
	}
	return ModeUnknown, false
}
