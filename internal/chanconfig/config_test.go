package chanconfig

import (
	"math"
	"testing"

	"chanalyzer/internal/bsp"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/seg"
	"chanalyzer/internal/zs"
)

func TestDefaultMatchesPerLayerDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Bi.IsStrict {
		t.Errorf("expected bi default IsStrict=true")
	}
	if cfg.Zs.Algo != zs.AlgoNormal {
		t.Errorf("expected zs default AlgoNormal, got %v", cfg.Zs.Algo)
	}
	if !math.IsInf(cfg.Bsp.BConf.DivergenceRate, 1) {
		t.Errorf("expected the default divergence rate to be the free pass (+Inf)")
	}
	if cfg.Bsp.BConf.MacdAlgo != lineiface.MacdPeak {
		t.Errorf("expected the stroke layer to default to the peak metric")
	}
	if cfg.SegBsp.BConf.MacdAlgo != lineiface.MacdSlope {
		t.Errorf("expected the segment layer to default to the slope metric")
	}
	if cfg.SegBsp.BConf.Bsp1OnlyMultibiZs {
		t.Errorf("expected the segment layer to count every pivot by default")
	}
	if !cfg.Bsp.BConf.HasTarget(bsp.T3B) {
		t.Errorf("expected every point kind targeted by default")
	}
}

func TestFromEnvOverlaysOnlySetVars(t *testing.T) {
	t.Setenv("CHANALYZER_BI_IS_STRICT", "false")
	t.Setenv("CHANALYZER_BSP_DIVERGENCE_RATE", "0.9")
	t.Setenv("CHANALYZER_BSP_MACD_ALGO", "area")
	t.Setenv("CHANALYZER_BSP_TARGET_TYPES", "T1,T2")
	t.Setenv("CHANALYZER_ZS_ALGO", "auto")

	cfg := FromEnv("CHANALYZER")

	if cfg.Bi.IsStrict {
		t.Errorf("expected BI_IS_STRICT=false to override the default")
	}
	if cfg.Bsp.BConf.DivergenceRate != 0.9 || cfg.Bsp.SConf.DivergenceRate != 0.9 {
		t.Errorf("expected BSP_DIVERGENCE_RATE to apply to both sides")
	}
	if cfg.Bsp.BConf.MacdAlgo != lineiface.MacdArea {
		t.Errorf("expected BSP_MACD_ALGO=area to apply")
	}
	if cfg.Bsp.BConf.HasTarget(bsp.T3A) || !cfg.Bsp.BConf.HasTarget(bsp.T2) {
		t.Errorf("expected BSP_TARGET_TYPES to narrow the target set")
	}
	if cfg.Zs.Algo != zs.AlgoAuto {
		t.Errorf("expected ZS_ALGO=auto to apply")
	}
	// Untouched knobs and layers keep their defaults.
	if cfg.Seg.LeftMethod != seg.LeftAll {
		t.Errorf("expected seg defaults untouched")
	}
	if !math.IsInf(cfg.SegBsp.BConf.DivergenceRate, 1) {
		t.Errorf("expected the segment layer's divergence rate untouched")
	}
}

func TestFromEnvIgnoresUnparsableValue(t *testing.T) {
	t.Setenv("CHANALYZER_BI_GAP_AS_KL", "not-a-bool")
	t.Setenv("CHANALYZER_BSP_MIN_ZS_CNT", "many")
	cfg := FromEnv("CHANALYZER")
	if cfg.Bi.GapAsKl != false {
		t.Errorf("expected unparsable env value to leave the default untouched")
	}
	if cfg.Bsp.BConf.MinZsCnt != 1 {
		t.Errorf("expected unparsable MIN_ZS_CNT to leave the default untouched")
	}
}
