package parser

import "time"

// Limits bound resource use while parsing untrusted input.
type Limits struct {
	MaxStringLength     int64
	MaxArrayDepth       int
	MaxDictDepth        int
	MaxStreamLength     int64
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
	MaxObjects          int
}

func DefaultLimits() Limits {
	return Limits{
		MaxStringLength:     16 << 20,
		MaxArrayDepth:       512,
		MaxDictDepth:        512,
		MaxStreamLength:     1 << 30,
		MaxDecompressedSize: 1 << 30,
		MaxObjects:          1 << 20,
	}
}
