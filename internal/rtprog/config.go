// Public domain.

package rtprog

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	xrand "golang.org/x/exp/rand"

	"github.com/soniakeys/rtpath/internal/rtbatch"
	"github.com/soniakeys/rtpath/internal/rtinteg"
	"github.com/soniakeys/rtpath/internal/rtjac"
)

// Options are the run options set by the config file.
type Options struct {
	Headings   bool
	Jacobian   bool
	Unit       string
	Workers    int     // 0 for GOMAXPROCS
	LMax       float64 // m, 0 for no limit
	Perturb    rtjac.Perturbations
	Defocus    string
	Repeatable bool

	rnd *xrand.Rand
}

// DefaultOptions returns the options used without a config file.
func DefaultOptions() *Options {
	return &Options{
		Headings:   true,
		Jacobian:   true,
		Unit:       rtinteg.UnitPlanckBT,
		LMax:       10e3,
		Perturb:    rtjac.DefaultPerturbations,
		Repeatable: true,
	}
}

// seed seeds the jitter random source, with a fixed seed for repeatable
// runs.
func (opt *Options) seed() {
	opt.rnd = xrand.New(&xrand.PCGSource{})
	if opt.Repeatable {
		opt.rnd.Seed(3)
	} else {
		opt.rnd.Seed(uint64(time.Now().UnixNano()))
	}
}

var (
	rxUnit    = regexp.MustCompile(`^unit[ \t]+(.+?)[ \t]*$`)
	rxWorkers = regexp.MustCompile(`^workers[ \t]+(\d+)[ \t]*$`)
	rxLMax    = regexp.MustCompile(`^lmax[ \t]+(\S+)[ \t]*$`)
	rxPerturb = regexp.MustCompile(`^perturb[ \t]+(t|wind|mag)[ \t]*=[ \t]*(\S+)[ \t]*$`)
	rxDefocus = regexp.MustCompile(`^defocus[ \t]+(\S+)[ \t]*$`)
)

// ReadConfig reads config file keywords from r, starting from the
// default options.  Blank lines and lines starting with # are ignored.
func ReadConfig(r io.Reader) (*Options, error) {
	opt := DefaultOptions()
	bad := func(ls string, err error) error {
		return fmt.Errorf("%w\nConfig file line: %s", err, ls)
	}
	for lr := bufio.NewReader(r); ; {
		l, isPre, err := lr.ReadLine()
		switch {
		case err == io.EOF:
			return opt, nil
		case err != nil:
			return nil, err
		case isPre:
			return nil, fmt.Errorf("unexpected long line in config file")
		case len(l) == 0:
			continue
		case l[0] == '#':
			continue
		}
		ls := string(l)
		switch ls {
		case "headings":
			opt.Headings = true
			continue
		case "noheadings":
			opt.Headings = false
			continue
		case "jacobian":
			opt.Jacobian = true
			continue
		case "nojacobian":
			opt.Jacobian = false
			continue
		case "repeatable":
			opt.Repeatable = true
			continue
		case "random":
			opt.Repeatable = false
			continue
		}
		if m := rxUnit.FindStringSubmatch(ls); m != nil {
			switch m[1] {
			case rtinteg.UnitRadiance, rtinteg.UnitRJBT, rtinteg.UnitPlanckBT,
				rtinteg.UnitWavelength, rtinteg.UnitWavenumber:
				opt.Unit = m[1]
			default:
				return nil, bad(ls, fmt.Errorf("unknown unit %q", m[1]))
			}
			continue
		}
		if m := rxWorkers.FindStringSubmatch(ls); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, bad(ls, err)
			}
			opt.Workers = n
			continue
		}
		if m := rxLMax.FindStringSubmatch(ls); m != nil {
			x, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, bad(ls, err)
			}
			if x < 0 {
				return nil, bad(ls, fmt.Errorf("lmax must be >= 0"))
			}
			opt.LMax = x
			continue
		}
		if m := rxPerturb.FindStringSubmatch(ls); m != nil {
			x, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return nil, bad(ls, err)
			}
			if x <= 0 {
				return nil, bad(ls, fmt.Errorf("perturbation must be > 0"))
			}
			switch m[1] {
			case "t":
				opt.Perturb.Temperature = x
			case "wind":
				opt.Perturb.Wind = x
			default:
				opt.Perturb.Magnetic = x
			}
			continue
		}
		if m := rxDefocus.FindStringSubmatch(ls); m != nil {
			switch m[1] {
			case rtbatch.DefocusGeneral, rtbatch.DefocusSat2Sat:
				opt.Defocus = m[1]
			default:
				return nil, bad(ls, fmt.Errorf("unknown defocusing method %q", m[1]))
			}
			continue
		}
		return nil, fmt.Errorf("unrecognized line in config file: %s", ls)
	}
}
