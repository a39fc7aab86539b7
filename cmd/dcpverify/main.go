// dcpverify checks one or more packages and reports everything it
// finds. The exit status is 0 when no errors were found (warnings and
// Bv2.1 violations are reported but do not fail the run), 1 on any
// error, and 2 on usage problems.
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"cinekit.dev/dcp"
	"cinekit.dev/dcp/verify"
)

// config mirrors the command line flags so a site can keep its schema
// directory in one place.
type config struct {
	XSDDir string `yaml:"xsd_dir"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("dcpverify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	xsdDir := fs.String("xsd", "", "directory holding the XML schemas; empty skips schema validation")
	configPath := fs.String("config", "", "YAML configuration file")
	quiet := fs.BoolP("quiet", "q", false, "print nothing, only set the exit status")
	verbose := fs.BoolP("verbose", "v", false, "report each stage as it runs")
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: dcpverify [flags] <DCP directory or file> ...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(errOut, "read config: %v\n", err)
			return 2
		}
		var cfg config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(errOut, "parse config: %v\n", err)
			return 2
		}
		if *xsdDir == "" {
			*xsdDir = cfg.XSDDir
		}
	}

	// Arguments may be package directories or files inside them.
	var dirs, files []string
	for _, a := range fs.Args() {
		st, err := os.Stat(a)
		if err != nil {
			fmt.Fprintf(errOut, "stat %s: %v\n", a, err)
			return 2
		}
		if st.IsDir() {
			dirs = append(dirs, a)
		} else {
			files = append(files, a)
		}
	}
	dirs = append(dirs, dcp.DirectoriesFromFiles(files)...)
	if len(dirs) == 0 {
		fmt.Fprintln(errOut, "no DCP directories found in the arguments")
		return 2
	}

	var stage func(string, string)
	if *verbose {
		stage = func(activity, path string) {
			fmt.Fprintf(errOut, "%s %s\n", activity, path)
		}
	}

	notes := verify.Verify(dirs, stage, nil, verify.Options{XSDDir: *xsdDir})

	var errors, rest int
	for _, n := range notes {
		switch n.Severity {
		case verify.SeverityError:
			errors++
		default:
			rest++
		}
		if !*quiet {
			fmt.Fprintf(out, "%s: %s\n", label(n.Severity), verify.NoteString(n))
		}
	}
	if !*quiet {
		fmt.Fprintf(out, "%d error(s), %d other note(s)\n", errors, rest)
	}

	if errors > 0 {
		return 1
	}
	return 0
}

func label(s verify.Severity) string {
	switch s {
	case verify.SeverityError:
		return "Error"
	case verify.SeverityBv21Error:
		return "Bv2.1 error"
	default:
		return "Warning"
	}
}
