package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"octvol/internal/logger"
	"octvol/pkg/config"
	"octvol/pkg/vol"
)

const usage = `Usage: octvol [-config file] <command> [flags] <file.vol>...

Commands:
  info         print header fields and volume statistics as YAML
  crop         crop volumes around the thickness grid centre
  export       write the reference image and B-scans as images
  init-config  write a default configuration file
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line in args and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("octvol", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "octvol.yaml", "Configuration file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	command, rest := global.Arg(0), global.Args()[1:]
	if command == "init-config" {
		return runInitConfig(rest, *configPath, stdout, stderr)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	level := logger.LogInfo
	if cfg.Output.Verbose {
		level = logger.LogDebug
	}
	a := &app{
		cfg:    cfg,
		log:    logger.New(level, stderr, stderr),
		stdout: stdout,
	}

	switch command {
	case "info":
		return a.runInfo(rest, stderr)
	case "crop":
		return a.runCrop(rest, stderr)
	case "export":
		return a.runExport(rest, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n", command)
		global.Usage()
		return 2
	}
}

func runInitConfig(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Fprintf(stderr, "Configuration file %s already exists (use -force to overwrite)\n", configPath)
		return 1
	}
	if err := config.CreateDefaultConfigFile(configPath); err != nil {
		fmt.Fprintf(stderr, "Failed to create configuration: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Default configuration written to %s\n", configPath)
	return 0
}

// inputFiles returns the positional arguments, rejecting anything that is
// not a .vol file
func inputFiles(fs *flag.FlagSet) ([]string, error) {
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("no input files")
	}
	var bad []string
	for _, p := range fs.Args() {
		if !vol.HasExtension(p) {
			bad = append(bad, p)
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("not a .vol file: %s", strings.Join(bad, ", "))
	}
	return fs.Args(), nil
}
