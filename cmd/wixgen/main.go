package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kolide/kit/logutil"
	"github.com/kolide/kit/version"
	"github.com/kolide/wixgen/pkg/config"
)

func runVersion(args []string) error {
	version.PrintFull()
	return nil
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Flags may also be set with %s_ environment variables, or a -config file.\n", config.EnvVarPrefix)
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "USAGE\n")
	fmt.Fprintf(os.Stderr, "  %s <mode> --help\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "MODES\n")
	fmt.Fprintf(os.Stderr, "  generate        Generate a wix component fragment from a directory tree\n")
	fmt.Fprintf(os.Stderr, "  update-product  Set the product id and version in a wix source file\n")
	fmt.Fprintf(os.Stderr, "  compile         Generate, patch, and build an msi with candle and light\n")
	fmt.Fprintf(os.Stderr, "  version         Print full version information\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "VERSION\n")
	fmt.Fprintf(os.Stderr, "  %s\n", version.Version().Version)
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		logutil.Fatal(logutil.NewCLILogger(true), "msg", "loading dotenv file", "err", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var run func([]string) error
	switch strings.ToLower(os.Args[1]) {
	case "version":
		run = runVersion
	case "generate":
		run = runGenerate
	case "update-product":
		run = runUpdateProduct
	case "compile":
		run = runCompile
	default:
		usage()
		os.Exit(1)
	}

	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
