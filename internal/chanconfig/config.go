// Package chanconfig aggregates every layer's configuration into one
// structure, loadable from the process environment the way the
// teacher's flat env-var config does (see config/config.go).
package chanconfig

import (
	"os"
	"strconv"
	"strings"

	"chanalyzer/internal/bi"
	"chanalyzer/internal/bsp"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/seg"
	"chanalyzer/internal/zs"
)

// Config aggregates the per-layer configuration structs. Bsp configures
// the stroke-level point list, SegBsp the segment-level one.
type Config struct {
	Bi     bi.Config
	Seg    seg.Config
	Zs     zs.Config
	Bsp    bsp.Config
	SegBsp bsp.Config
}

// Default returns every layer's spec-literal default configuration.
func Default() Config {
	return Config{
		Bi:     bi.Default(),
		Seg:    seg.Default(),
		Zs:     zs.Default(),
		Bsp:    bsp.Default(),
		SegBsp: bsp.DefaultSeg(),
	}
}

// FromEnv overlays Default() with any PREFIX_* environment variables
// present, mirroring the teacher's config.LoadFromEnv convention.
func FromEnv(prefix string) Config {
	cfg := Default()

	if v, ok := lookupBool(prefix, "BI_IS_STRICT"); ok {
		cfg.Bi.IsStrict = v
	}
	if v, ok := lookupBool(prefix, "BI_GAP_AS_KL"); ok {
		cfg.Bi.GapAsKl = v
	}
	if v, ok := lookupBool(prefix, "BI_END_IS_PEAK"); ok {
		cfg.Bi.EndIsPeak = v
	}
	if v, ok := lookupBool(prefix, "BI_ALLOW_SUB_PEAK"); ok {
		cfg.Bi.AllowSubPeak = v
	}

	if v, ok := lookupBool(prefix, "SEG_LEFT_METHOD_PEAK"); ok && v {
		cfg.Seg.LeftMethod = seg.LeftPeak
	}

	if v, ok := lookupBool(prefix, "ZS_NEED_COMBINE"); ok {
		cfg.Zs.NeedCombine = v
	}
	if v, ok := lookupBool(prefix, "ZS_ONE_BI_ZS"); ok {
		cfg.Zs.OneBiZs = v
	}
	if v, ok := lookupString(prefix, "ZS_ALGO"); ok {
		switch strings.ToLower(v) {
		case "normal":
			cfg.Zs.Algo = zs.AlgoNormal
		case "over_seg", "overseg":
			cfg.Zs.Algo = zs.AlgoOverSeg
		case "auto":
			cfg.Zs.Algo = zs.AlgoAuto
		}
	}
	if v, ok := lookupString(prefix, "ZS_COMBINE_MODE"); ok {
		switch strings.ToLower(v) {
		case "zs":
			cfg.Zs.Combine = zs.CombineZs
		case "peak":
			cfg.Zs.Combine = zs.CombinePeak
		}
	}

	overlayPointConfig(prefix, "BSP", &cfg.Bsp)
	overlayPointConfig(prefix, "SEG_BSP", &cfg.SegBsp)

	return cfg
}

// overlayPointConfig applies the shared buy/sell-point knobs to both
// sides of one layer's configuration.
func overlayPointConfig(prefix, section string, cfg *bsp.Config) {
	apply := func(f func(*bsp.PointConfig)) {
		f(&cfg.BConf)
		f(&cfg.SConf)
	}

	if v, ok := lookupFloat(prefix, section+"_DIVERGENCE_RATE"); ok {
		apply(func(c *bsp.PointConfig) { c.DivergenceRate = v })
	}
	if v, ok := lookupInt(prefix, section+"_MIN_ZS_CNT"); ok {
		apply(func(c *bsp.PointConfig) { c.MinZsCnt = v })
	}
	if v, ok := lookupBool(prefix, section+"_ONLY_MULTIBI_ZS"); ok {
		apply(func(c *bsp.PointConfig) { c.Bsp1OnlyMultibiZs = v })
	}
	if v, ok := lookupFloat(prefix, section+"_MAX_BS2_RATE"); ok {
		apply(func(c *bsp.PointConfig) { c.MaxBs2Rate = v })
	}
	if v, ok := lookupString(prefix, section+"_MACD_ALGO"); ok {
		if algo, found := parseMacdAlgo(v); found {
			apply(func(c *bsp.PointConfig) { c.MacdAlgo = algo })
		}
	}
	if v, ok := lookupBool(prefix, section+"_BS1_PEAK"); ok {
		apply(func(c *bsp.PointConfig) { c.Bs1Peak = v })
	}
	if v, ok := lookupBool(prefix, section+"_FOLLOW_1"); ok {
		apply(func(c *bsp.PointConfig) { c.Bsp2Follow1 = v; c.Bsp3Follow1 = v })
	}
	if v, ok := lookupBool(prefix, section+"_BSP2S_FOLLOW_2"); ok {
		apply(func(c *bsp.PointConfig) { c.Bsp2sFollow2 = v })
	}
	if v, ok := lookupBool(prefix, section+"_BSP3_PEAK"); ok {
		apply(func(c *bsp.PointConfig) { c.Bsp3Peak = v })
	}
	if v, ok := lookupInt(prefix, section+"_MAX_BSP2S_LV"); ok {
		apply(func(c *bsp.PointConfig) { c.MaxBsp2sLv = v })
	}
	if v, ok := lookupBool(prefix, section+"_STRICT_BSP3"); ok {
		apply(func(c *bsp.PointConfig) { c.StrictBsp3 = v })
	}
	if v, ok := lookupString(prefix, section+"_TARGET_TYPES"); ok {
		if types := parseTargetTypes(v); len(types) > 0 {
			apply(func(c *bsp.PointConfig) { c.TargetTypes = types })
		}
	}
}

func parseMacdAlgo(v string) (lineiface.MacdAlgo, bool) {
	switch strings.ToLower(v) {
	case "area":
		return lineiface.MacdArea, true
	case "peak":
		return lineiface.MacdPeak, true
	case "full_area", "fullarea":
		return lineiface.MacdFullArea, true
	case "diff":
		return lineiface.MacdDiff, true
	case "slope":
		return lineiface.MacdSlope, true
	case "amp":
		return lineiface.MacdAmp, true
	}
	return 0, false
}

func parseTargetTypes(v string) []bsp.Type {
	var out []bsp.Type
	for _, tok := range strings.Split(v, ",") {
		switch strings.ToUpper(strings.TrimSpace(tok)) {
		case "T1", "1":
			out = append(out, bsp.T1)
		case "T1P", "1P":
			out = append(out, bsp.T1P)
		case "T2", "2":
			out = append(out, bsp.T2)
		case "T2S", "2S":
			out = append(out, bsp.T2S)
		case "T3A", "3A":
			out = append(out, bsp.T3A)
		case "T3B", "3B":
			out = append(out, bsp.T3B)
		}
	}
	return out
}

func lookupBool(prefix, key string) (bool, bool) {
	raw, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func lookupInt(prefix, key string) (int, bool) {
	raw, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupFloat(prefix, key string) (float64, bool) {
	raw, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupString(prefix, key string) (string, bool) {
	raw, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + key)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
