package lightbake

import (
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// BakeOptions names the generated assets.
type BakeOptions struct {
	MapName  string
	Template string // base material the stubs include
}

const (
	defaultMapName  = "level"
	defaultTemplate = "pbr/lightbake_base"
)

// BakeRow is one LUT row: a cluster's attenuation curve.
type BakeRow struct {
	ClusterIndex int
	Key          uuid.UUID
	Extent       float64
	Samples      []float32
	Score        float64
}

// MaterialStub describes a patch material pointing a surface at its row.
type MaterialStub struct {
	Name     string
	Template string
	LUTPath  string
	Row      int
	// Lit is the fraction of member lights switched on at level start.
	Lit float64
}

type ScriptEntry struct {
	LightID       string
	Cluster       int
	InitiallyDark bool
	Named         bool
}

// ScriptTable maps lights to their cluster rows for runtime toggling.
type ScriptTable struct {
	MapName    string
	Entries    []ScriptEntry // sorted by light id
	DarkLights []string
}

// Lookup returns the cluster row of a light.
func (s *ScriptTable) Lookup(lightID string) (int, bool) {
	i, ok := slices.BinarySearchFunc(s.Entries, lightID, func(e ScriptEntry, id string) int {
		return strings.Compare(e.LightID, id)
	})
	if !ok {
		return -1, false
	}
	return s.Entries[i].Cluster, true
}

// BakeResult is the in-memory LUT layout handed to the texture serializer.
type BakeResult struct {
	Width     int // samples per row
	Height    int // row capacity
	Rows      []BakeRow
	Materials []MaterialStub
	Script    ScriptTable
}

// Texels flattens the rows into Width*Height values, unused rows zeroed.
func (b *BakeResult) Texels() []float32 {
	out := make([]float32, b.Width*b.Height)
	for _, r := range b.Rows {
		copy(out[r.ClusterIndex*b.Width:], r.Samples)
	}
	return out
}

// BuildBake lays the clusters out as LUT rows. It fails without a result
// when the clusters do not fit the layout.
func BuildBake(clusters []Cluster, lights []UnifiedLight, scores []ScoreRecord, cfg Config, opts BakeOptions) (*BakeResult, error) {
	if len(clusters) > cfg.MaxClusters {
		return nil, &BakeError{Kind: ClusterCountExceeded, Actual: len(clusters), Max: cfg.MaxClusters}
	}
	if opts.MapName == "" {
		opts.MapName = defaultMapName
	}
	if opts.Template == "" {
		opts.Template = defaultTemplate
	}

	res := &BakeResult{
		Width:     cfg.LUTSampleCount,
		Height:    cfg.MaxClusters,
		Rows:      make([]BakeRow, len(clusters)),
		Materials: make([]MaterialStub, len(clusters)),
		Script:    ScriptTable{MapName: opts.MapName},
	}
	lutPath := path.Join("lightbake", opts.MapName, "lut")

	for i := range clusters {
		c := &clusters[i]
		if len(c.Samples) != cfg.LUTSampleCount {
			return nil, &BakeError{Kind: SampleCountMismatch, ClusterID: c.Index, Actual: len(c.Samples), Max: cfg.LUTSampleCount}
		}
		row := BakeRow{
			ClusterIndex: c.Index,
			Key:          c.Key,
			Extent:       c.SampleExtent,
			Samples:      make([]float32, len(c.Samples)),
		}
		for k, s := range c.Samples {
			row.Samples[k] = float32(s)
		}
		if i < len(scores) {
			row.Score = scores[i].Score
		}
		res.Rows[i] = row

		lit := 0
		for _, li := range c.MemberIdx {
			u := &lights[li]
			if u.InitiallyDark {
				res.Script.DarkLights = append(res.Script.DarkLights, u.ID)
			} else {
				lit++
			}
			res.Script.Entries = append(res.Script.Entries, ScriptEntry{
				LightID:       u.ID,
				Cluster:       c.Index,
				InitiallyDark: u.InitiallyDark,
				Named:         u.Named,
			})
		}
		res.Materials[i] = MaterialStub{
			Name:     path.Join("lightbake", opts.MapName, "cluster_"+c.Key.String()[:8]),
			Template: opts.Template,
			LUTPath:  lutPath,
			Row:      c.Index,
			Lit:      float64(lit) / float64(len(c.MemberIdx)),
		}
	}
	slices.SortFunc(res.Script.Entries, func(a, b ScriptEntry) int { return strings.Compare(a.LightID, b.LightID) })
	slices.Sort(res.Script.DarkLights)
	return res, nil
}
