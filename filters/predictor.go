package filters

import (
	"errors"

	"pdfopt/ir/raw"
)

// applyPredictor undoes the PNG (Predictor >= 10) or TIFF (Predictor == 2)
// predictors declared in a filter's DecodeParms.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := paramInt(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	columns := paramInt(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors * bpc * columns + 7) / 8
	if bpp <= 0 || rowLen <= 0 {
		return nil, errors.New("predictor: invalid parameters")
	}

	if predictor == 2 {
		return applyTIFFPredictor(data, bpp, rowLen, bpc)
	}
	return applyPNGPredictor(data, bpp, rowLen)
}

func applyTIFFPredictor(data []byte, bpp, rowLen, bpc int) ([]byte, error) {
	if bpc != 8 {
		return nil, errors.New("predictor: TIFF predictor only supported for 8 bits per component")
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out, nil
}

func applyPNGPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	if len(data)%(rowLen+1) != 0 {
		return nil, errors.New("predictor: data length not a multiple of row size")
	}
	rows := len(data) / (rowLen + 1)
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*(rowLen+1)]
		copy(row, data[r*(rowLen+1)+1:(r+1)*(rowLen+1)])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left int
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft int
				if i >= bpp {
					left = int(row[i-bpp])
					upLeft = int(prev[i-bpp])
				}
				row[i] += byte(paeth(left, int(prev[i]), upLeft))
			}
		default:
			return nil, errors.New("predictor: unknown PNG filter type")
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func paeth(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func paramInt(d raw.Dictionary, key string, def int) int {
	if d == nil {
		return def
	}
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return int(n.Int())
		}
	}
	return def
}
