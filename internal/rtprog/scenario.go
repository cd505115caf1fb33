// Public domain.

package rtprog

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/soniakeys/unit"
	"gopkg.in/yaml.v3"

	"github.com/soniakeys/rtpath/internal/rtabs"
	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtbatch"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtinteg"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
)

// Scenario is a 1D simulation read from a YAML file, clear sky unless
// Particles is given.  Profiles are given per pressure level.
type Scenario struct {
	Atmosphere Atmosphere `yaml:"atmosphere"`
	Surface    struct {
		Temperature float64 `yaml:"temperature" validate:"gt=0"`
		Emissivity  float64 `yaml:"emissivity" validate:"gte=0,lte=1"`
	} `yaml:"surface"`
	Sensor Sensor `yaml:"sensor"`

	Frequency []float64 `yaml:"frequency" validate:"min=1,dive,gt=0"` // Hz
	Stokes    int       `yaml:"stokes" validate:"min=1,max=4"`
	VAlong    float64   `yaml:"v_along"` // m/s, sensor velocity along the LOS

	Lines     []Line    `yaml:"lines" validate:"dive"`
	Continuum []float64 `yaml:"continuum" validate:"dive,gte=0"`
	Zeeman    float64   `yaml:"zeeman"`
	Faraday   float64   `yaml:"faraday"`

	Jacobian []Target `yaml:"jacobian" validate:"dive"`

	Particles *Particles `yaml:"particles"`
	// Aux lists auxiliary quantities to output per line-of-sight.
	Aux    []string `yaml:"aux" validate:"dive,oneof='Radiative background' 'Optical depth' Transmission"`
	GeoPos string   `yaml:"geo_pos" validate:"omitempty,oneof=end lowest"`
}

// Particles is a cloud box of gray particles.  Paths pass through it.
type Particles struct {
	Cloudbox [2]int         `yaml:"cloudbox"` // lowest and highest level
	Types    []ParticleType `yaml:"types" validate:"min=1,dive"`
}

// ParticleType is a gray particle type, cross sections in m2.
type ParticleType struct {
	Ext float64   `yaml:"ext" validate:"gte=0"`
	Abs float64   `yaml:"abs" validate:"gte=0,ltefield=Ext"`
	PND []float64 `yaml:"pnd" validate:"min=2,dive,gte=0"` // m-3 per level
}

// Atmosphere holds the profiles of a scenario.  Lengths are in m,
// temperatures in K, wind in m/s and the magnetic field in T.  NLTE holds
// one temperature profile per NLTE level.
type Atmosphere struct {
	GeoidRadius     float64     `yaml:"geoid_radius" validate:"gt=0"`
	SurfaceAltitude float64     `yaml:"surface_altitude"`
	Pressure        []float64   `yaml:"pressure" validate:"min=2,decreasing,dive,gt=0"`
	Altitude        []float64   `yaml:"altitude" validate:"min=2"`
	Temperature     []float64   `yaml:"temperature" validate:"min=2,dive,gt=0"`
	Species         []Species   `yaml:"species" validate:"dive"`
	NLTE            [][]float64 `yaml:"nlte" validate:"dive,dive,gt=0"`
	Wind            Vector      `yaml:"wind"`
	Magnetic        Vector      `yaml:"magnetic"`
}

// Species is one absorbing species.
type Species struct {
	Name string    `yaml:"name" validate:"required"`
	VMR  []float64 `yaml:"vmr" validate:"min=2,dive,gte=0"`
}

// Vector holds optional east, north and up profiles.
type Vector struct {
	U []float64 `yaml:"u"`
	V []float64 `yaml:"v"`
	W []float64 `yaml:"w"`
}

// Sensor is the sensor position and lines of sight, angles in degrees.
type Sensor struct {
	Altitude float64   `yaml:"altitude"` // m
	Za       float64   `yaml:"za" validate:"gte=0,lte=180"`
	DZa      []float64 `yaml:"dza"` // offsets of the lines of sight
	// Jitter is the standard deviation of a random error added to each
	// offset.
	Jitter      float64 `yaml:"jitter" validate:"gte=0"`
	Transmitter float64 `yaml:"transmitter" validate:"gte=0"` // altitude, m, 0 for none
	DefocusDZa  float64 `yaml:"defocus_dza" validate:"gte=0"` // 0 for .001
}

// Line is a scenario spectral line.
type Line struct {
	Species int     `yaml:"species" validate:"gte=0"`
	F0      float64 `yaml:"f0" validate:"gt=0"`
	S       float64 `yaml:"s" validate:"gte=0"`
	Gamma   float64 `yaml:"gamma" validate:"gt=0"`
	N       float64 `yaml:"n"`
	// NLTELevel is the index of the NLTE temperature profile of the line,
	// absent for a line in LTE.
	NLTELevel *int `yaml:"nlte_level" validate:"omitempty,gte=0"`
}

// Target is a scenario Jacobian target.
type Target struct {
	Kind    string    `yaml:"kind" validate:"required,oneof=temperature wind_along wind_u wind_v wind_w mag_u mag_v mag_w species"`
	Method  string    `yaml:"method" validate:"required,oneof=analytical provider perturbation flux skip"`
	Species int       `yaml:"species" validate:"gte=0"`
	Unit    string    `yaml:"unit" validate:"omitempty,oneof=rel vmr nd"`
	Grid    []float64 `yaml:"grid" validate:"min=1,decreasing"` // Pa
}

var kinds = map[string]rtjac.Kind{
	"temperature": rtjac.Temperature,
	"wind_along":  rtjac.WindAlong,
	"wind_u":      rtjac.WindU,
	"wind_v":      rtjac.WindV,
	"wind_w":      rtjac.WindW,
	"mag_u":       rtjac.MagU,
	"mag_v":       rtjac.MagV,
	"mag_w":       rtjac.MagW,
	"species":     rtjac.Species,
}

var methods = map[string]rtjac.Method{
	"analytical":   rtjac.Analytical,
	"provider":     rtjac.FromProvider,
	"perturbation": rtjac.Perturbation,
	"flux":         rtjac.Flux,
	"skip":         rtjac.Skip,
}

// validate checks scenario tags.  It is created in init with the custom
// "decreasing" validation.
var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("decreasing", validateDecreasing); err != nil {
		panic(err)
	}
}

// validateDecreasing reports whether a []float64 field is strictly
// decreasing.
func validateDecreasing(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().([]float64)
	return ok && rtgrid.StrictlyDecreasing(v)
}

// ReadScenario decodes and validates a scenario.
func ReadScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario: empty file")
		}
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	return &s, nil
}

// profile returns v as a 1D field, or an empty field for empty v.
func profile(name string, v []float64, np int) (rtgrid.Field3, error) {
	if len(v) == 0 {
		return rtgrid.Field3{}, nil
	}
	if len(v) != np {
		return rtgrid.Field3{}, fmt.Errorf("scenario: %s: expected %d levels, got %d",
			name, np, len(v))
	}
	return rtgrid.Profile(v), nil
}

// Build returns the pipeline and block for s with run options opt.
func (s *Scenario) Build(opt *Options) (*rtbatch.Pipeline, *rtbatch.Block, error) {
	a := &s.Atmosphere
	np := len(a.Pressure)
	atm := &rtpath.Atmosphere{
		Dim:      1,
		PGrid:    a.Pressure,
		ZSurface: [][]float64{{a.SurfaceAltitude}},
		RGeoid:   a.GeoidRadius,
	}
	fs := &rtatm.Fields{}
	var err error
	for _, f := range []struct {
		name string
		v    []float64
		dst  *rtgrid.Field3
	}{
		{"altitude", a.Altitude, &atm.Z},
		{"temperature", a.Temperature, &fs.T},
		{"wind u", a.Wind.U, &fs.WindU},
		{"wind v", a.Wind.V, &fs.WindV},
		{"wind w", a.Wind.W, &fs.WindW},
		{"magnetic u", a.Magnetic.U, &fs.MagU},
		{"magnetic v", a.Magnetic.V, &fs.MagV},
		{"magnetic w", a.Magnetic.W, &fs.MagW},
	} {
		if *f.dst, err = profile(f.name, f.v, np); err != nil {
			return nil, nil, err
		}
	}
	for _, sp := range a.Species {
		v, err := profile("species "+sp.Name, sp.VMR, np)
		if err != nil {
			return nil, nil, err
		}
		fs.VMR = append(fs.VMR, v)
	}
	for i, t := range a.NLTE {
		v, err := profile(fmt.Sprint("nlte level ", i), t, np)
		if err != nil {
			return nil, nil, err
		}
		fs.NLTE = append(fs.NLTE, v)
	}

	gas := &rtabs.Gas{Continuum: s.Continuum, Zeeman: s.Zeeman, Faraday: s.Faraday}
	for i, l := range s.Lines {
		if l.Species >= len(a.Species) {
			return nil, nil, fmt.Errorf("scenario: line %d: species %d, expected "+
				"0 to %d", i, l.Species, len(a.Species)-1)
		}
		gl := rtabs.Line{Species: l.Species, F0: l.F0, S: l.S, Gamma: l.Gamma,
			N: l.N, Level: -1}
		if l.NLTELevel != nil {
			if *l.NLTELevel >= len(a.NLTE) {
				return nil, nil, fmt.Errorf("scenario: line %d: nlte level %d, "+
					"%d levels given", i, *l.NLTELevel, len(a.NLTE))
			}
			gl.Level = *l.NLTELevel
		}
		gas.Lines = append(gas.Lines, gl)
	}

	var ts *rtjac.Set
	if opt.Jacobian && len(s.Jacobian) > 0 {
		ts = rtjac.NewSet()
		ts.Perturb = opt.Perturb
		for _, t := range s.Jacobian {
			u := t.Unit
			if t.Kind == "species" && u == "" {
				u = rtjac.UnitRel
			}
			ts.Targets = append(ts.Targets, rtjac.Target{Kind: kinds[t.Kind],
				Method: methods[t.Method], Species: t.Species, Unit: u, Grid: t.Grid})
		}
	}

	policy := rtpath.StepPolicy{LMax: opt.LMax}
	if s.Sensor.Transmitter > 0 {
		policy.Transmitter = a.GeoidRadius + s.Sensor.Transmitter
	}
	var gray *rtabs.GrayParticles
	var pnd []rtgrid.Field3
	if pa := s.Particles; pa != nil {
		atm.Cloudbox = &rtpath.Cloudbox{P: pa.Cloudbox}
		policy.ThroughCloudbox = true
		gray = &rtabs.GrayParticles{}
		for i, pt := range pa.Types {
			v, err := profile(fmt.Sprint("particle type ", i), pt.PND, np)
			if err != nil {
				return nil, nil, err
			}
			pnd = append(pnd, v)
			gray.Ext = append(gray.Ext, pt.Ext)
			gray.Abs = append(gray.Abs, pt.Abs)
		}
	}
	dza := s.Sensor.DefocusDZa
	if dza == 0 {
		dza = .001
	}
	pl := &rtbatch.Pipeline{
		Atm:    atm,
		Fields: fs,
		Policy: policy,
		Engine: rtpropmat.Engine{
			Provider: gas,
			Opts: rtpropmat.Options{Stokes: s.Stokes, VAlong: s.VAlong,
				Workers: opt.Workers},
		},
		Targets: ts,
		Background: &rtinteg.Background{SurfaceT: s.Surface.Temperature,
			SurfaceEmissivity: s.Surface.Emissivity},
		Unit:    opt.Unit,
		Defocus: opt.Defocus,
		DZa:     unit.AngleFromDeg(dza),
		Aux:     s.Aux,
		GeoPos:  s.GeoPos,
	}
	if gray != nil {
		pl.Particles = gray
		pl.PND = pnd
	}
	b := &rtbatch.Block{
		Dim: 1,
		Pos: rtpath.Pos{Z: s.Sensor.Altitude},
		LOS: rtgeom.NewLOS(s.Sensor.Za, 0),
		F:   s.Frequency,
	}
	if opt.rnd == nil {
		opt.seed()
	}
	for _, d := range s.Sensor.DZa {
		d += s.Sensor.Jitter * opt.rnd.NormFloat64()
		b.DLOS = append(b.DLOS, rtgeom.NewLOS(d, 0))
	}
	return pl, b, nil
}
