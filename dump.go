package lightbake

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// DumpRecord is one cluster in the diagnostics listing.
type DumpRecord struct {
	ClusterID      int         `yaml:"cluster_id"`
	Key            string      `yaml:"key"`
	MemberLightIDs []string    `yaml:"member_light_ids,flow"`
	Centroid       [3]float64  `yaml:"centroid,flow"`
	Radius         float64     `yaml:"radius"`
	Power          float64     `yaml:"power"`
	Score          ScoreRecord `yaml:"score"`
}

// Dump is the listing produced for analyze runs. Building it touches
// neither the level file nor the bake output.
type Dump struct {
	Clusters    []DumpRecord  `yaml:"clusters"`
	Lights      []ScoreRecord `yaml:"lights,omitempty"`
	Diagnostics []string      `yaml:"diagnostics,omitempty"`
}

// BuildDump assembles the listing ordered by cluster id. clusterScores must
// be index aligned with clusters; lightScores may be nil.
func BuildDump(clusters []Cluster, clusterScores, lightScores []ScoreRecord, diags Diagnostics) *Dump {
	d := &Dump{Clusters: make([]DumpRecord, len(clusters)), Lights: lightScores}
	for i := range clusters {
		c := &clusters[i]
		rec := DumpRecord{
			ClusterID:      c.Index,
			Key:            c.Key.String(),
			MemberLightIDs: c.Members,
			Centroid:       [3]float64(c.Centroid),
			Radius:         c.Radius,
			Power:          c.Power,
		}
		if i < len(clusterScores) {
			rec.Score = clusterScores[i]
		}
		d.Clusters[i] = rec
	}
	for _, e := range diags {
		d.Diagnostics = append(d.Diagnostics, e.Error())
	}
	return d
}

func (d *Dump) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return enc.Close()
}

// WriteText renders the clusters as a table followed by the diagnostics.
func (d *Dump) WriteText(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "MEMBERS", "CENTROID", "RADIUS", "SCORE", "FLAGS")
	for _, r := range d.Clusters {
		t.Row(
			strconv.Itoa(r.ClusterID),
			strings.Join(r.MemberLightIDs, ","),
			fmt.Sprintf("%.1f %.1f %.1f", r.Centroid[0], r.Centroid[1], r.Centroid[2]),
			fmt.Sprintf("%.2f", r.Radius),
			fmt.Sprintf("%.3f", r.Score.Score),
			flags(r.Score),
		)
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d clusters, %d lights\n", len(d.Clusters), len(d.Lights)); err != nil {
		return err
	}
	for _, msg := range d.Diagnostics {
		if _, err := fmt.Fprintf(w, "warning: %s\n", msg); err != nil {
			return err
		}
	}
	return nil
}

func flags(r ScoreRecord) string {
	var f []string
	if r.Saturated {
		f = append(f, "saturated")
	}
	if r.Clipped {
		f = append(f, "clipped")
	}
	return strings.Join(f, ",")
}
