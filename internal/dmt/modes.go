// Package dmt supplies the standard VESA DMT timings used to seed a
// Connector's mode list when a driver has no EDID of its own to parse.
package dmt

import "github.com/ChengyuZhu6/drmcore/internal/wire"

type entry struct {
	name                                          string
	clock                                         uint32
	hdisplay, hsyncStart, hsyncEnd, htotal, hskew uint16
	vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16
	flags                                         uint32
}

// table is a representative slice of the VESA DMT standard timings,
// spanning the legacy low-resolution modes through modern high-refresh
// panel timings. Clock is in kHz per the UAPI's drm_mode_modeinfo
// convention used by addDmtModes.
var table = []entry{
	{"640x350@85Hz", 31500, 640, 672, 736, 832, 0, 350, 382, 385, 445, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"640x480@60Hz", 25175, 640, 656, 752, 800, 0, 480, 490, 492, 525, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"640x480@72Hz", 31500, 640, 664, 704, 832, 0, 480, 489, 491, 520, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"640x480@75Hz", 31500, 640, 656, 720, 840, 0, 480, 481, 484, 500, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"640x480@85Hz", 36000, 640, 696, 752, 832, 0, 480, 481, 484, 509, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"800x600@56Hz", 36000, 800, 824, 896, 1024, 0, 600, 601, 603, 625, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"800x600@60Hz", 40000, 800, 840, 968, 1056, 0, 600, 601, 605, 628, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"800x600@72Hz", 50000, 800, 856, 976, 1040, 0, 600, 637, 643, 666, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"800x600@75Hz", 49500, 800, 816, 896, 1056, 0, 600, 601, 604, 625, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"800x600@85Hz", 56250, 800, 832, 896, 1048, 0, 600, 601, 604, 631, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1024x768@60Hz", 65000, 1024, 1048, 1184, 1344, 0, 768, 771, 777, 806, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"1024x768@70Hz", 75000, 1024, 1048, 1184, 1328, 0, 768, 771, 777, 806, 0, wire.ModeFlagNHSync | wire.ModeFlagNVSync},
	{"1024x768@75Hz", 78750, 1024, 1040, 1136, 1312, 0, 768, 769, 772, 800, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1024x768@85Hz", 94500, 1024, 1072, 1168, 1376, 0, 768, 769, 772, 808, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1152x864@75Hz", 108000, 1152, 1216, 1344, 1600, 0, 864, 865, 868, 900, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1280x720@60Hz", 74250, 1280, 1390, 1430, 1650, 0, 720, 725, 730, 750, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1280x800@60Hz RB", 68250, 1280, 1328, 1360, 1440, 0, 800, 803, 809, 823, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"1280x1024@60Hz", 108000, 1280, 1328, 1440, 1688, 0, 1024, 1025, 1028, 1066, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1280x1024@75Hz", 135000, 1280, 1296, 1440, 1688, 0, 1024, 1025, 1028, 1066, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1440x900@60Hz RB", 88750, 1440, 1488, 1520, 1600, 0, 900, 903, 909, 926, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"1600x1200@60Hz", 162000, 1600, 1664, 1856, 2160, 0, 1200, 1201, 1204, 1250, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1680x1050@60Hz RB", 119000, 1680, 1728, 1760, 1840, 0, 1050, 1053, 1059, 1080, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"1920x1080@60Hz", 148500, 1920, 2008, 2052, 2200, 0, 1080, 1084, 1089, 1125, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"1920x1200@60Hz RB", 154000, 1920, 1968, 2000, 2080, 0, 1200, 1203, 1209, 1235, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"2560x1440@60Hz RB", 241500, 2560, 2608, 2640, 2720, 0, 1440, 1443, 1448, 1481, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
	{"3840x2160@30Hz", 297000, 3840, 4016, 4104, 4400, 0, 2160, 2168, 2178, 2250, 0, wire.ModeFlagPHSync | wire.ModeFlagPVSync},
	{"4096x2160@59.94Hz RB", 556744, 4096, 4104, 4136, 4176, 0, 2160, 2208, 2216, 2222, 0, wire.ModeFlagPHSync | wire.ModeFlagNVSync},
}

// Modes returns the subset of the standard timing table that fits within
// maxWidth x maxHeight, as drm_core's addDmtModes does when a driver caps
// its supported resolution. A zero bound is treated as unbounded.
func Modes(maxWidth, maxHeight uint32) []wire.ModeInfo {
	out := make([]wire.ModeInfo, 0, len(table))
	for i, e := range table {
		if maxWidth != 0 && uint32(e.hdisplay) > maxWidth {
			continue
		}
		if maxHeight != 0 && uint32(e.vdisplay) > maxHeight {
			continue
		}
		m := wire.ModeInfo{
			Clock:      e.clock,
			HDisplay:   e.hdisplay,
			HSyncStart: e.hsyncStart,
			HSyncEnd:   e.hsyncEnd,
			HTotal:     e.htotal,
			HSkew:      e.hskew,
			VDisplay:   e.vdisplay,
			VSyncStart: e.vsyncStart,
			VSyncEnd:   e.vsyncEnd,
			VTotal:     e.vtotal,
			VScan:      e.vscan,
			Flags:      e.flags,
			Type:       wire.ModeTypeDriver,
		}
		m.VRefresh = refreshRate(m)
		m.SetName(e.name)
		if i == preferredIndex(maxWidth, maxHeight) {
			m.Type |= wire.ModeTypePreferred
		}
		out = append(out, m)
	}
	return out
}

func refreshRate(m wire.ModeInfo) uint32 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	// clock is in kHz; refresh = clock*1e3 / (htotal*vtotal), rounded.
	num := uint64(m.Clock) * 1000
	den := uint64(m.HTotal) * uint64(m.VTotal)
	return uint32((num + den/2) / den)
}

// preferredIndex marks the highest-resolution mode that still fits the
// requested bound as preferred, mirroring how a reference driver without
// real EDID data picks a sensible default.
func preferredIndex(maxWidth, maxHeight uint32) int {
	best := -1
	var bestArea uint32
	for i, e := range table {
		if maxWidth != 0 && uint32(e.hdisplay) > maxWidth {
			continue
		}
		if maxHeight != 0 && uint32(e.vdisplay) > maxHeight {
			continue
		}
		area := uint32(e.hdisplay) * uint32(e.vdisplay)
		if area >= bestArea {
			bestArea = area
			best = i
		}
	}
	return best
}
