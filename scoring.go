package lightbake

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type ScoreSubject int

const (
	ScoreLight ScoreSubject = iota
	ScoreCluster
)

func (s ScoreSubject) String() string {
	switch s {
	case ScoreLight:
		return "light"
	case ScoreCluster:
		return "cluster"
	default:
		return fmt.Sprintf("ScoreSubject(%d)", int(s))
	}
}

func (s ScoreSubject) MarshalYAML() (any, error) { return s.String(), nil }

// ScoreRecord rates how faithfully a light or cluster is represented.
// Score is in (0,1]; 1 is a perfect match.
type ScoreRecord struct {
	Subject        ScoreSubject `yaml:"subject"`
	ID             string       `yaml:"id"`
	EnergyError    float64      `yaml:"energy_error"`
	ShapeDeviation float64      `yaml:"shape_deviation"`
	Saturated      bool         `yaml:"saturated"`
	Clipped        bool         `yaml:"clipped"`
	Score          float64      `yaml:"score"`
}

func (r *ScoreRecord) finish() {
	r.Score = 1 / (1 + r.EnergyError + r.ShapeDeviation)
	if r.Saturated {
		r.Score *= 0.5
	}
}

// ScoreLights compares every unified light against its legacy curve.
func ScoreLights(lights []UnifiedLight, entities []LightEntity, cfg Config) []ScoreRecord {
	out := make([]ScoreRecord, len(lights))
	for i := range lights {
		out[i] = ScoreLightAgainst(&lights[i], &entities[lights[i].Source], cfg)
	}
	return out
}

// ScoreLightAgainst measures the unified falloff against brightness*A(d)
// on log-spaced distances between 1 and the effective radius.
func ScoreLightAgainst(u *UnifiedLight, e *LightEntity, cfg Config) ScoreRecord {
	rec := ScoreRecord{Subject: ScoreLight, ID: u.ID, Clipped: u.RadiusClamped}

	legacy := func(d float64) float64 { return e.Brightness * e.Attenuation.At(d) }
	n := cfg.ScoreSampleCount
	lo, hi := 1.0, math.Max(u.EffectiveRadius, 2)
	ds := make([]float64, n)
	for k := range ds {
		ds[k] = lo * math.Pow(hi/lo, float64(k)/float64(n-1))
	}

	var legacyInt, unifiedInt float64
	for k := 1; k < n; k++ {
		h := ds[k] - ds[k-1]
		legacyInt += 0.5 * h * (legacy(ds[k]) + legacy(ds[k-1]))
		unifiedInt += 0.5 * h * (u.Falloff(ds[k]) + u.Falloff(ds[k-1]))
	}
	rec.EnergyError = relDiff(unifiedInt, legacyInt)

	lref, uref := legacy(cfg.ReferenceDistance), u.Falloff(cfg.ReferenceDistance)
	if lref > 0 && uref > 0 && !math.IsInf(lref, 0) {
		var sq float64
		for _, d := range ds {
			sq += math.Pow(relDiff(u.Falloff(d)/uref, legacy(d)/lref), 2)
		}
		rec.ShapeDeviation = math.Sqrt(sq / float64(n))
	} else {
		rec.ShapeDeviation = 1
	}

	rec.Saturated = u.Falloff(cfg.MinEffectiveRadius) > cfg.PeakOutput*cfg.HDROverbright
	rec.finish()
	return rec
}

var axisDirections = [6]mgl64.Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// ScoreClusters compares each cluster row with the members evaluated
// directly, averaged over the six axis directions around the centroid.
func ScoreClusters(clusters []Cluster, lights []UnifiedLight, cfg Config) []ScoreRecord {
	out := make([]ScoreRecord, len(clusters))
	for i := range clusters {
		out[i] = ScoreClusterRow(&clusters[i], lights, cfg)
	}
	return out
}

func ScoreClusterRow(c *Cluster, lights []UnifiedLight, cfg Config) ScoreRecord {
	rec := ScoreRecord{Subject: ScoreCluster, ID: c.Key.String()}
	for _, i := range c.MemberIdx {
		rec.Clipped = rec.Clipped || lights[i].RadiusClamped
	}

	limit := cfg.PeakOutput * cfg.HDROverbright
	var absErr, refSum float64
	for k, row := range c.Samples {
		d := c.SampleDistance(k)
		var ref float64
		for _, dir := range axisDirections {
			p := c.Centroid.Add(dir.Mul(d))
			for _, i := range c.MemberIdx {
				ref += lights[i].Contribution(p)
			}
		}
		ref /= float64(len(axisDirections))

		absErr += math.Abs(row - ref)
		refSum += ref
		rec.ShapeDeviation = math.Max(rec.ShapeDeviation, relDiff(row, ref))
		if d >= cfg.MinEffectiveRadius && row > limit {
			rec.Saturated = true
		}
	}
	if refSum > 0 {
		rec.EnergyError = absErr / refSum
	} else if absErr > 0 {
		rec.EnergyError = 1
	}
	rec.finish()
	return rec
}

// relDiff is |a-b| / max(|a|,|b|), 0 when both are 0.
func relDiff(a, b float64) float64 {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 0
	}
	if math.IsInf(m, 0) {
		if a == b {
			return 0
		}
		return 1
	}
	return math.Abs(a-b) / m
}
