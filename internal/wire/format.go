package wire

import "fmt"

// fourcc codes this core needs to recognize, per <drm/drm_fourcc.h>. Each
// value is the 4 ASCII bytes of the format name packed little-endian.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	FormatC8      = fourcc('C', '8', ' ', ' ')
	FormatRGB332  = fourcc('R', 'G', 'B', '8')
	FormatXRGB1555 = fourcc('X', 'R', '1', '5')
	FormatARGB1555 = fourcc('A', 'R', '1', '5')
	FormatRGB565  = fourcc('R', 'G', '1', '6')
	FormatRGB888  = fourcc('R', 'G', '2', '4')
	FormatXRGB8888 = fourcc('X', 'R', '2', '4')
	FormatARGB8888 = fourcc('A', 'R', '2', '4')
	FormatXRGB2101010 = fourcc('X', 'R', '3', '0')
	FormatARGB2101010 = fourcc('A', 'R', '3', '0')
)

// legacyFormats maps a (bpp, depth) pair, as still accepted by the legacy
// MODE_ADDFB path, onto the fourcc the rest of the core operates on.
type legacyKey struct{ bpp, depth uint32 }

var legacyFormats = map[legacyKey]uint32{
	{8, 8}:   FormatC8,
	{16, 15}: FormatXRGB1555,
	{16, 16}: FormatRGB565,
	{24, 24}: FormatRGB888,
	{32, 24}: FormatXRGB8888,
	{32, 30}: FormatXRGB2101010,
	{32, 32}: FormatARGB8888,
}

// ConvertLegacyFormat translates a legacy (bpp, depth) pair into the fourcc
// the rest of the core expects, matching convertLegacyFormat's table.
func ConvertLegacyFormat(bpp, depth uint32) (uint32, error) {
	f, ok := legacyFormats[legacyKey{bpp, depth}]
	if !ok {
		return 0, fmt.Errorf("wire: unsupported legacy bpp=%d depth=%d combination", bpp, depth)
	}
	return f, nil
}

// FormatInfo describes how a fourcc lays out pixels for pitch/size math.
type FormatInfo struct {
	Fourcc        uint32
	BitsPerPixel  uint32
	NumPlanes     uint32
}

var formatTable = map[uint32]FormatInfo{
	FormatC8:           {BitsPerPixel: 8, NumPlanes: 1},
	FormatRGB332:       {BitsPerPixel: 8, NumPlanes: 1},
	FormatXRGB1555:     {BitsPerPixel: 16, NumPlanes: 1},
	FormatARGB1555:     {BitsPerPixel: 16, NumPlanes: 1},
	FormatRGB565:       {BitsPerPixel: 16, NumPlanes: 1},
	FormatRGB888:       {BitsPerPixel: 24, NumPlanes: 1},
	FormatXRGB8888:     {BitsPerPixel: 32, NumPlanes: 1},
	FormatARGB8888:     {BitsPerPixel: 32, NumPlanes: 1},
	FormatXRGB2101010:  {BitsPerPixel: 32, NumPlanes: 1},
	FormatARGB2101010:  {BitsPerPixel: 32, NumPlanes: 1},
}

// GetFormatInfo returns pixel-layout information for fourcc, matching
// getFormatInfo.
func GetFormatInfo(fourccCode uint32) (FormatInfo, error) {
	fi, ok := formatTable[fourccCode]
	if !ok {
		return FormatInfo{}, fmt.Errorf("wire: unknown fourcc 0x%08x", fourccCode)
	}
	fi.Fourcc = fourccCode
	return fi, nil
}

// BytesPerPixel is a convenience wrapper returning whole bytes, rounding up;
// every format in formatTable is byte-aligned so this never loses
// precision.
func BytesPerPixel(fourccCode uint32) (uint32, error) {
	fi, err := GetFormatInfo(fourccCode)
	if err != nil {
		return 0, err
	}
	return (fi.BitsPerPixel + 7) / 8, nil
}
