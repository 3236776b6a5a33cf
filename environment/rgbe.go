package environment

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"scene-studio/scene"
)

// DecodeRGBE decodes a Radiance .hdr file (flat or new-style RLE scanlines)
// into a float RGBA texture, top row first.
func DecodeRGBE(name string, data []byte) (*scene.Texture, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	magic, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("rgbe header: %w", err)
	}
	if !strings.HasPrefix(magic, "#?") {
		return nil, errors.New("rgbe: missing #? signature")
	}
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("rgbe header: %w", err)
		}
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "FORMAT=") && line != "FORMAT=32-bit_rle_rgbe" {
			return nil, fmt.Errorf("rgbe: unsupported %s", line)
		}
	}

	res, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("rgbe resolution: %w", err)
	}
	var width, height int
	if _, err := fmt.Sscanf(res, "-Y %d +X %d", &height, &width); err != nil {
		return nil, fmt.Errorf("rgbe: unsupported orientation %q", res)
	}
	if width <= 0 || height <= 0 || width > 1<<15 || height > 1<<15 {
		return nil, fmt.Errorf("rgbe: invalid size %dx%d", width, height)
	}

	out := make([]float32, width*height*4)
	scan := make([]byte, width*4)
	for y := 0; y < height; y++ {
		if err := readScanline(r, scan, width); err != nil {
			return nil, fmt.Errorf("rgbe scanline %d: %w", y, err)
		}
		row := out[y*width*4:]
		for x := 0; x < width; x++ {
			p := scan[x*4 : x*4+4]
			rgbeToFloat(p, row[x*4:x*4+4])
		}
	}

	tex := scene.NewHDRTexture(name, width, height, out)
	tex.Mapping = scene.MappingEquirectangular
	return tex, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readScanline fills dst with width RGBE pixels.
func readScanline(r *bufio.Reader, dst []byte, width int) error {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return err
	}
	rle := width >= 8 && width < 0x8000 && head[0] == 2 && head[1] == 2 && head[2]&0x80 == 0
	if !rle {
		copy(dst, head)
		_, err := io.ReadFull(r, dst[4:])
		return err
	}
	if int(head[2])<<8|int(head[3]) != width {
		return errors.New("scanline width mismatch")
	}

	// Each channel is stored as its own run-length encoded plane.
	plane := make([]byte, width)
	for ch := 0; ch < 4; ch++ {
		for x := 0; x < width; {
			count, err := r.ReadByte()
			if err != nil {
				return err
			}
			if count > 128 {
				n := int(count - 128)
				if x+n > width {
					return errors.New("run overflows scanline")
				}
				v, err := r.ReadByte()
				if err != nil {
					return err
				}
				for i := 0; i < n; i++ {
					plane[x+i] = v
				}
				x += n
				continue
			}
			n := int(count)
			if n == 0 || x+n > width {
				return errors.New("invalid literal run")
			}
			if _, err := io.ReadFull(r, plane[x:x+n]); err != nil {
				return err
			}
			x += n
		}
		for x := 0; x < width; x++ {
			dst[x*4+ch] = plane[x]
		}
	}
	return nil
}

func rgbeToFloat(p []byte, dst []float32) {
	dst[3] = 1
	if p[3] == 0 {
		dst[0], dst[1], dst[2] = 0, 0, 0
		return
	}
	f := float32(math.Ldexp(1, int(p[3])-(128+8)))
	dst[0] = float32(p[0]) * f
	dst[1] = float32(p[1]) * f
	dst[2] = float32(p[2]) * f
}
