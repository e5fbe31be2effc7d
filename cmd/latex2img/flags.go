package main

import (
	"errors"
	"io"

	flag "github.com/spf13/pflag"
)

// ErrInvalidFlag reports a flag value rejected before config validation.
var ErrInvalidFlag = errors.New("invalid flag value")

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// logFlags holds structured log output flags.
type logFlags struct {
	file   string
	format string
}

// inputFlags holds document discovery flags.
type inputFlags struct {
	extensions []string
	assets     string
	dryRun     bool
}

// renderToolFlags holds TeX toolchain flags.
type renderToolFlags struct {
	grammars []string
	workers  int
	timeout  string
	dpi      int
	force    bool
}

// rewriteFlags holds document rewriting flags.
type rewriteFlags struct {
	policy       string
	noProvenance bool
	html         bool
}

// renderFlags holds all flags for the render command.
type renderFlags struct {
	common  commonFlags
	log     logFlags
	input   inputFlags
	tools   renderToolFlags
	rewrite rewriteFlags

	// changed reports whether a flag was set on the command line.
	changed func(name string) bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs and timing")
}

// addLogFlags adds log output flags to a FlagSet.
func addLogFlags(fs *flag.FlagSet, f *logFlags) {
	fs.StringVar(&f.file, "log-file", "", "append debug logs to this file")
	fs.StringVar(&f.format, "log-format", "json", "log file format: json, text")
}

// addInputFlags adds discovery flags to a FlagSet.
func addInputFlags(fs *flag.FlagSet, f *inputFlags) {
	fs.StringSliceVar(&f.extensions, "ext", nil, "document extensions to scan (repeatable)")
	fs.StringVarP(&f.assets, "assets", "a", "", "image directory, relative to the input root")
	fs.BoolVar(&f.dryRun, "dry-run", false, "print what would be rendered, change nothing")
}

// addRenderToolFlags adds TeX toolchain flags to a FlagSet.
func addRenderToolFlags(fs *flag.FlagSet, f *renderToolFlags) {
	fs.StringSliceVarP(&f.grammars, "grammar", "g", nil, "delimiter grammars: display, escaped-bracket, bracket (repeatable)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel workers (0 = auto)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-formula timeout (e.g., 30s, 2m)")
	fs.IntVar(&f.dpi, "dpi", 0, "image resolution (50-2400)")
	fs.BoolVar(&f.force, "force", false, "re-render images that already exist")
}

// addRewriteFlags adds rewriting flags to a FlagSet.
func addRewriteFlags(fs *flag.FlagSet, f *rewriteFlags) {
	fs.StringVar(&f.policy, "policy", "", "replace every copy of a span (all) or only its own (first)")
	fs.BoolVar(&f.noProvenance, "no-provenance", false, "omit the fenced LaTeX source after each image")
	fs.BoolVar(&f.html, "html", false, "write an HTML preview next to each rewritten document")
}

// parseRenderFlags parses render command flags and returns positional args.
func parseRenderFlags(args []string, stderr io.Writer) (*renderFlags, []string, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &renderFlags{}

	addCommonFlags(fs, &f.common)
	addLogFlags(fs, &f.log)
	addInputFlags(fs, &f.input)
	addRenderToolFlags(fs, &f.tools)
	addRewriteFlags(fs, &f.rewrite)

	fs.Usage = func() { printRenderUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	f.changed = fs.Changed

	return f, fs.Args(), nil
}

// configFlags holds flags for the config command.
type configFlags struct {
	common commonFlags
}

// parseConfigFlags parses config command flags.
func parseConfigFlags(args []string, stderr io.Writer) (*configFlags, error) {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &configFlags{}
	addCommonFlags(fs, &f.common)
	fs.Usage = func() { printConfigUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	config string
	json   bool
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, stderr io.Writer) (*doctorFlags, error) {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &doctorFlags{}
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVar(&f.json, "json", false, "output results as JSON")
	fs.Usage = func() { printDoctorUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}
