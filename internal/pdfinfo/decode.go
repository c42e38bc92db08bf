package pdfinfo

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// maxStreamSize bounds decompressed cross-reference and object streams.
const maxStreamSize = 64 << 20

// streamData returns the decoded contents of a stream object. Only the
// filters used for cross-reference and object streams are supported.
func streamData(o *object) ([]byte, error) {
	f, ok := o.dict["Filter"]
	if !ok {
		return o.data, nil
	}
	filter := f.str
	parms := o.dict["DecodeParms"]
	if f.kind == kindArray {
		if len(f.array) != 1 {
			return nil, fmt.Errorf("pdfinfo: unsupported filter chain of %d filters", len(f.array))
		}
		filter = f.array[0].str
		if parms != nil && parms.kind == kindArray && len(parms.array) > 0 {
			parms = parms.array[0]
		}
	}
	if filter != "FlateDecode" && filter != "Fl" {
		return nil, fmt.Errorf("pdfinfo: unsupported filter %q", filter)
	}

	zr, err := zlib.NewReader(bytes.NewReader(o.data))
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: zlib: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, maxStreamSize+1))
	if err != nil && len(data) == 0 {
		return nil, fmt.Errorf("pdfinfo: zlib: %w", err)
	}
	if len(data) > maxStreamSize {
		return nil, fmt.Errorf("pdfinfo: stream exceeds %d bytes", maxStreamSize)
	}

	if parms == nil || parms.kind != kindDict {
		return data, nil
	}
	if p, _ := parms.dict.getInt("Predictor"); p >= 10 {
		return unpredictPNG(parms.dict, data), nil
	}
	return data, nil
}

// unpredictPNG reverses PNG row filters.
func unpredictPNG(parms dict, data []byte) []byte {
	colors, bpc, columns := int64(1), int64(8), int64(1)
	if v, ok := parms.getInt("Colors"); ok && v > 0 {
		colors = v
	}
	if v, ok := parms.getInt("BitsPerComponent"); ok && v > 0 {
		bpc = v
	}
	if v, ok := parms.getInt("Columns"); ok && v > 0 {
		columns = v
	}
	bpp := int(max((colors*bpc+7)/8, 1))
	rowLen := int((columns*colors*bpc + 7) / 8)
	stride := rowLen + 1
	rows := len(data) / stride

	out := make([]byte, rows*rowLen)
	prev := make([]byte, rowLen)
	for y := 0; y < rows; y++ {
		src := data[y*stride+1 : (y+1)*stride]
		dst := out[y*rowLen : (y+1)*rowLen]
		for i := range dst {
			var left, upLeft byte
			if i >= bpp {
				left = dst[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch data[y*stride] {
			case 1:
				dst[i] = src[i] + left
			case 2:
				dst[i] = src[i] + up
			case 3:
				dst[i] = src[i] + byte((int(left)+int(up))/2)
			case 4:
				dst[i] = src[i] + paeth(left, up, upLeft)
			default:
				dst[i] = src[i]
			}
		}
		prev = dst
	}
	return out
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
