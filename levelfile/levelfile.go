// Package levelfile reads the YAML level description: the light entities
// and the brush geometry they are traced against.
package levelfile

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/gekko3d/lightbake"
	"github.com/gekko3d/lightbake/geometry"
)

const (
	defaultInnerCone  = 30.0
	defaultOuterCone  = 45.0
	defaultExponent   = 1.0
	defaultBrightness = 200.0
)

type Level struct {
	Name    string     `yaml:"name"`
	Lights  []LightDef `yaml:"lights"`
	Brushes []BrushDef `yaml:"brushes"`
}

type Vec3 [3]float64

// LightDef is one light as written in the file. Direction may be given as a
// vector or as editor angles (pitch yaw roll); Light is the editor's
// "r g b brightness" string and fills Color and Brightness when set.
type LightDef struct {
	ID            string                `yaml:"id"`
	Shape         string                `yaml:"shape"`
	Origin        Vec3                  `yaml:"origin"`
	Direction     *Vec3                 `yaml:"direction,omitempty"`
	Angles        *Vec3                 `yaml:"angles,omitempty"`
	Pitch         *float64              `yaml:"pitch,omitempty"`
	Light         string                `yaml:"light,omitempty"`
	Color         *Vec3                 `yaml:"color,omitempty"`
	Brightness    *float64              `yaml:"brightness,omitempty"`
	Attenuation   lightbake.Attenuation `yaml:"attenuation"`
	Width         float64               `yaml:"width,omitempty"`
	Height        float64               `yaml:"height,omitempty"`
	InnerCone     *float64              `yaml:"inner_cone,omitempty"`
	OuterCone     *float64              `yaml:"outer_cone,omitempty"`
	Exponent      *float64              `yaml:"exponent,omitempty"`
	Bidirectional bool                  `yaml:"bidirectional,omitempty"`
	InitiallyDark bool                  `yaml:"initially_dark,omitempty"`
	Named         bool                  `yaml:"named,omitempty"`
}

// BrushDef is either a box (Min/Max) or a list of faces, each three points.
type BrushDef struct {
	ID       int       `yaml:"id"`
	Min      *Vec3     `yaml:"min,omitempty"`
	Max      *Vec3     `yaml:"max,omitempty"`
	Faces    [][3]Vec3 `yaml:"faces,omitempty"`
	Passable bool      `yaml:"passable,omitempty"`
}

// Load reads and converts a level file.
func Load(path string) (*Level, []lightbake.LightEntity, *geometry.World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read level: %w", err)
	}
	lvl, err := Parse(data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if lvl.Name == "" {
		base := path[strings.LastIndexAny(path, `/\`)+1:]
		lvl.Name = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}
	entities, err := lvl.Entities()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	world, err := lvl.World()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return lvl, entities, world, nil
}

func Parse(data []byte) (*Level, error) {
	var lvl Level
	if err := yaml.Unmarshal(data, &lvl); err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	return &lvl, nil
}

// Entities converts the light definitions in file order. Values the
// unification stage judges (attenuation, sizes) are passed through as
// written.
func (l *Level) Entities() ([]lightbake.LightEntity, error) {
	out := make([]lightbake.LightEntity, 0, len(l.Lights))
	for i, d := range l.Lights {
		e, err := d.entity()
		if err != nil {
			return nil, fmt.Errorf("light #%d (%q): %w", i, d.ID, err)
		}
		if e.ID == "" {
			e.ID = "light_" + strconv.Itoa(i)
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *LightDef) entity() (lightbake.LightEntity, error) {
	e := lightbake.LightEntity{
		ID:            d.ID,
		Position:      mgl64.Vec3(d.Origin),
		Color:         [3]float64{1, 1, 1},
		Brightness:    defaultBrightness,
		Attenuation:   d.Attenuation,
		Width:         d.Width,
		Height:        d.Height,
		InnerCone:     orDefault(d.InnerCone, defaultInnerCone),
		OuterCone:     orDefault(d.OuterCone, defaultOuterCone),
		SpotExponent:  orDefault(d.Exponent, defaultExponent),
		Bidirectional: d.Bidirectional,
		InitiallyDark: d.InitiallyDark,
		Named:         d.Named,
	}

	switch strings.ToLower(d.Shape) {
	case "", "point":
		e.Shape = lightbake.LightShapePoint
	case "spot":
		e.Shape = lightbake.LightShapeSpot
	case "area", "rect":
		e.Shape = lightbake.LightShapeArea
	default:
		return e, fmt.Errorf("unknown shape %q", d.Shape)
	}

	if d.Light != "" {
		c, b, err := ParseColorIntensity(d.Light)
		if err != nil {
			return e, err
		}
		e.Color, e.Brightness = c, b
	}
	if d.Color != nil {
		e.Color = *d.Color
	}
	if d.Brightness != nil {
		e.Brightness = *d.Brightness
	}

	switch {
	case d.Direction != nil:
		e.Direction = mgl64.Vec3(*d.Direction)
	case d.Angles != nil || d.Pitch != nil:
		var a Vec3
		if d.Angles != nil {
			a = *d.Angles
		}
		e.Direction = AnglesToDir(a, d.Pitch)
	default:
		e.Direction = mgl64.Vec3{0, 0, -1}
	}
	return e, nil
}

// ParseColorIntensity reads "r g b [brightness]" with 0-255 channels.
// Brightness defaults to 200.
func ParseColorIntensity(s string) ([3]float64, float64, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 && len(fields) != 4 {
		return [3]float64{}, 0, fmt.Errorf("light %q: want \"r g b [brightness]\"", s)
	}
	var v [4]float64
	v[3] = defaultBrightness
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return [3]float64{}, 0, fmt.Errorf("light %q: %w", s, err)
		}
		v[i] = x
	}
	return [3]float64{v[0] / 255, v[1] / 255, v[2] / 255}, v[3], nil
}

// AnglesToDir converts editor angles (pitch yaw roll, degrees) to a unit
// vector. In the angles triple a pitch of -90 points up, so it is negated;
// an explicit pitch key is used as is.
func AnglesToDir(angles Vec3, pitch *float64) mgl64.Vec3 {
	p := -angles[0]
	if pitch != nil {
		p = *pitch
	}
	pr, yr := mgl64.DegToRad(p), mgl64.DegToRad(angles[1])
	v := mgl64.Vec3{math.Cos(pr) * math.Cos(yr), math.Cos(pr) * math.Sin(yr), math.Sin(pr)}
	for k := range v {
		if math.Abs(v[k]) < 1e-4 {
			v[k] = 0
		}
	}
	return v
}

// World builds the brush geometry.
func (l *Level) World() (*geometry.World, error) {
	brushes := make([]geometry.Brush, 0, len(l.Brushes))
	for i, d := range l.Brushes {
		var b geometry.Brush
		switch {
		case d.Min != nil && d.Max != nil:
			b = geometry.NewBoxBrush(d.ID, mgl64.Vec3(*d.Min), mgl64.Vec3(*d.Max))
		case len(d.Faces) > 0:
			faces := make([][3]mgl64.Vec3, len(d.Faces))
			for k, f := range d.Faces {
				faces[k] = [3]mgl64.Vec3{mgl64.Vec3(f[0]), mgl64.Vec3(f[1]), mgl64.Vec3(f[2])}
			}
			var err error
			if b, err = geometry.NewBrushFromPoints(d.ID, faces); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("brush #%d (id %d): needs min/max or faces", i, d.ID)
		}
		b.Passable = d.Passable
		brushes = append(brushes, b)
	}
	return geometry.NewWorld(brushes)
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
