// Public domain.

// Package rtprog is the rtpath command.
package rtprog

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/soniakeys/exit"

	"github.com/soniakeys/rtpath/internal/rtbatch"
	"github.com/soniakeys/rtpath/internal/rtbin"
	"github.com/soniakeys/rtpath/internal/rtmetrics"
)

const versionString = "rtpath version 0.1 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	if cl.v {
		os.Exit(0)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	w := bufio.NewWriter(os.Stdout)
	err := run(ctx, cl, w)
	if fErr := w.Flush(); err == nil {
		err = fErr
	}
	if err != nil {
		exit.Log(err)
	}
}

type commandLine struct {
	dc         string // config file
	do         string // result file
	dm         string // metrics file
	dd         string // log level
	fnScenario string
	v          bool // -v option
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dh := flag.Bool("h", false, "")
	dv := flag.Bool("v", false, "")
	flag.StringVar(&cl.dc, "c", "", "")
	flag.StringVar(&cl.do, "o", "", "")
	flag.StringVar(&cl.dm, "m", "", "")
	flag.StringVar(&cl.dd, "d", "warn", "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: rtpath [options] <scenario>    simulate spectra for a scenario file
       rtpath [options] -             simulate a scenario read from stdin
       rtpath -h                      display help and quick reference
       rtpath -v                      display version and copyright

Options:
       -c <config-file>
       -o <result-file>
       -m <metrics-file>
       -d <log level>    debug, info, warn or error

Default:
       -d=warn
`)
	}
	flag.Parse()
	switch {
	case *dh:
		printHelp()
		os.Exit(0)
	case *dv:
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		cl.v = true
	case flag.NArg() != 1:
		flag.Usage()
		os.Exit(1)
	}
	cl.fnScenario = flag.Arg(0)
	return &cl
}

// run simulates the scenario of cl, writing the spectrum table to w.
func run(ctx context.Context, cl *commandLine, w io.Writer) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cl.dd)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	opt, err := readConfig(cl.dc)
	if err != nil {
		return err
	}
	s, err := readScenario(cl.fnScenario)
	if err != nil {
		return err
	}
	pl, b, err := s.Build(opt)
	if err != nil {
		return err
	}
	pl.Log = log
	log.Info("scenario", "file", cl.fnScenario, "nlos", b.NLOS(), "nf", len(b.F),
		"targets", pl.Targets.Len())

	start := time.Now()
	o := &rtbatch.Orchestrator{Workers: opt.Workers, Log: log}
	out, err := o.Run(ctx, pl, b)
	if err != nil {
		return err
	}
	log.Info("done", "elapsed", time.Since(start))

	if opt.Headings {
		printHeadings(w, opt, out)
	}
	printSpectra(w, out, b)
	if opt.Jacobian && pl.Targets.Len() > 0 {
		printJacobians(w, out, b, pl.Targets)
	}
	printAux(w, out, b, pl.Aux)
	if out.GeoPos != nil {
		printGeoPos(w, out)
	}

	if cl.do != "" {
		r := rtbin.FromOutput(out, b, pl.Targets, pl.Aux)
		r.Created = time.Now()
		r.Scenario = cl.fnScenario
		r.Unit = opt.Unit
		if err := rtbin.WriteFile(cl.do, r); err != nil {
			return err
		}
	}
	if cl.dm != "" {
		if err := writeMetrics(cl.dm); err != nil {
			return err
		}
	}
	return nil
}

func readConfig(fn string) (*Options, error) {
	if fn == "" {
		return DefaultOptions(), nil
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConfig(f)
}

func readScenario(fn string) (*Scenario, error) {
	if fn == "-" {
		return ReadScenario(os.Stdin)
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadScenario(f)
}

func writeMetrics(fn string) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()
	return rtmetrics.WriteText(f)
}

func printHelp() {
	fmt.Println(`
Rtpath traces propagation paths through a 1D atmosphere and integrates the
polarized radiative transfer equation along them.  Input is a YAML scenario
file with the atmosphere, absorption lines, sensor and Jacobian targets.
Output is the spectrum of each line-of-sight and, optionally, Jacobians.

Config file keywords:
   headings
   noheadings
   jacobian
   nojacobian
   unit <1|RJBT|PlanckBT|W/(m^2 m sr)|W/(m^2 m-1 sr)>
   workers <n>
   lmax <m>
   perturb t|wind|mag = <x>
   defocus general|sat2sat
   repeatable
   random

For full documentation:
   go doc github.com/soniakeys/rtpath`)
}
