package lightbake

import "fmt"

// RunMode selects which outputs a run produces.
type RunMode int

const (
	// ModeAnalyzeOnly scores and dumps; nothing is baked.
	ModeAnalyzeOnly RunMode = iota
	// ModeUpdateAssets bakes without touching the level file.
	ModeUpdateAssets
	// ModeFinal bakes and hands off to level patching.
	ModeFinal
)

var runModeNames = [...]string{"analyze-only", "update-assets", "final"}

func (m RunMode) String() string {
	if m.Valid() {
		return runModeNames[m]
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

func (m RunMode) Valid() bool { return m >= ModeAnalyzeOnly && m <= ModeFinal }

// Bakes reports whether the mode builds a BakeResult.
func (m RunMode) Bakes() bool { return m == ModeUpdateAssets || m == ModeFinal }

// PatchesLevel reports whether downstream level patching follows the bake.
func (m RunMode) PatchesLevel() bool { return m == ModeFinal }

// ParseRunMode accepts the canonical names plus the short command aliases.
func ParseRunMode(s string) (RunMode, error) {
	switch s {
	case "analyze-only", "analyze", "draft":
		return ModeAnalyzeOnly, nil
	case "update-assets", "update":
		return ModeUpdateAssets, nil
	case "final":
		return ModeFinal, nil
	}
	return 0, fmt.Errorf("unknown run mode %q (want analyze-only, update-assets or final)", s)
}

func (m RunMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid run mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *RunMode) UnmarshalText(b []byte) error {
	v, err := ParseRunMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
