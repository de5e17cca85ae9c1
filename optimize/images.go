package optimize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"pdfopt/filters"
	"pdfopt/ir/raw"
)

var errUnsupportedImage = errors.New("unsupported image data")

// recompressed holds one trial encoding outcome.
type recompressed struct {
	data   []byte
	width  int
	height int
	gray   bool
}

// recompress decodes a candidate, optionally downsamples it, and produces
// a trial JPEG encoding. The caller decides whether the result replaces
// the original stream.
func (o *Optimizer) recompress(ctx context.Context, cand ImageCandidate) (recompressed, error) {
	img, err := o.decodeImage(ctx, cand)
	if err != nil {
		return recompressed{}, err
	}

	if o.settings.MaxDimension > 0 {
		img = downsample(img, o.settings.MaxDimension)
	}

	data, err := filters.EncodeDCT(img, o.settings.Quality)
	if err != nil {
		return recompressed{}, err
	}
	b := img.Bounds()
	return recompressed{
		data:   data,
		width:  b.Dx(),
		height: b.Dy(),
		gray:   isGray(img),
	}, nil
}

// decodeImage turns the candidate's stream payload into pixels. JPEG
// payloads are decoded directly; everything else is run through the
// filter pipeline and reinterpreted by color space.
func (o *Optimizer) decodeImage(ctx context.Context, cand ImageCandidate) (image.Image, error) {
	data := cand.Stream.RawData()
	names := cand.Filters
	params := cand.FilterParams

	// DCTDecode terminates the chain; outer filters wrap the JPEG bytes.
	if n := len(names); n > 0 && names[n-1] == "DCTDecode" {
		if n > 1 {
			decoded, err := o.pipeline.Decode(ctx, data, names[:n-1], paramsPrefix(params, n-1))
			if err != nil {
				return nil, err
			}
			data = decoded
		}
		return jpeg.Decode(bytes.NewReader(data))
	}

	if len(names) > 0 {
		decoded, err := o.pipeline.Decode(ctx, data, names, params)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	return samplesToImage(data, cand)
}

// samplesToImage reinterprets raw sample bytes for the directly supported
// color spaces. Anything else is skipped rather than guessed at.
func samplesToImage(data []byte, cand ImageCandidate) (image.Image, error) {
	width, height := cand.Width, cand.Height
	if width <= 0 || height <= 0 {
		return nil, errUnsupportedImage
	}
	bpc := cand.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	if bpc != 8 {
		return nil, errUnsupportedImage
	}

	switch cand.ColorSpace {
	case "DeviceGray":
		if len(data) < width*height {
			return nil, errUnsupportedImage
		}
		return &image.Gray{Pix: data, Stride: width, Rect: image.Rect(0, 0, width, height)}, nil
	case "DeviceRGB":
		if len(data) < width*height*3 {
			return nil, errUnsupportedImage
		}
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		i := 0
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 4
				img.Pix[off] = data[i]
				img.Pix[off+1] = data[i+1]
				img.Pix[off+2] = data[i+2]
				img.Pix[off+3] = 255
				i += 3
			}
		}
		return img, nil
	case "DeviceCMYK":
		if len(data) < width*height*4 {
			return nil, errUnsupportedImage
		}
		img := image.NewCMYK(image.Rect(0, 0, width, height))
		copy(img.Pix, data)
		return img, nil
	}
	return nil, errUnsupportedImage
}

// downsample scales img so its longest side is at most maxDim, preserving
// aspect ratio. Images already within the cap pass through untouched.
func downsample(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	var newW, newH int
	if w > h {
		newW = maxDim
		newH = h * maxDim / w
	} else {
		newH = maxDim
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}

// applyRecompression swaps the stream payload in place and rewrites the
// image keys so the dictionary describes the new JPEG payload.
func applyRecompression(st *raw.StreamObj, rc recompressed) {
	st.SetData(rc.data)
	st.Dict.Set(raw.NameObj{Val: "Filter"}, raw.NameObj{Val: "DCTDecode"})
	st.Dict.Delete("DecodeParms")
	st.Dict.Delete("Decode")
	st.Dict.Set(raw.NameObj{Val: "Width"}, raw.NumberInt(int64(rc.width)))
	st.Dict.Set(raw.NameObj{Val: "Height"}, raw.NumberInt(int64(rc.height)))
	st.Dict.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	if rc.gray {
		st.Dict.Set(raw.NameObj{Val: "ColorSpace"}, raw.NameObj{Val: "DeviceGray"})
	} else {
		st.Dict.Set(raw.NameObj{Val: "ColorSpace"}, raw.NameObj{Val: "DeviceRGB"})
	}
}

func paramsPrefix(params []raw.Dictionary, n int) []raw.Dictionary {
	if len(params) > n {
		return params[:n]
	}
	return params
}
