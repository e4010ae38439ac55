package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/VladMinzatu/xarch-symbols/internal/analyzer"
	"github.com/VladMinzatu/xarch-symbols/internal/exporter"
	"github.com/VladMinzatu/xarch-symbols/internal/symbolizer"
)

const appName = "xarch-symbols"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func demangleModeNames() []string {
	names := make([]string, 0, len(symbolizer.DemangleModes))
	for _, m := range symbolizer.DemangleModes {
		names = append(names, string(m))
	}
	return names
}

func run(args []string, stdout, stderr io.Writer) int {
	var cfg analyzer.Config
	// --help exits through Terminate; keep that code instead of exiting here
	exitCode := -1
	helpRequested := false

	app := kingpin.New(appName, "Extract function symbols from object files and match them across architectures.").
		UsageWriter(stderr).
		ErrorWriter(stderr).
		Terminate(func(code int) { exitCode = code })
	app.HelpFlag.Short('h').PreAction(func(*kingpin.ParseContext) error {
		helpRequested = true
		return nil
	})
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.Verbose)
	app.Flag("color", "Colorize the report.").Default("true").BoolVar(&cfg.Color)

	symbolsCmd := app.Command("analyze-symbols", "Analyze function symbols of object files and match them across architectures.")
	demangle := symbolsCmd.Flag("demangle", "Demangling preset.").Default(string(symbolizer.DemangleDefault)).Enum(demangleModeNames()...)
	exports := symbolsCmd.Flag("export", "Additionally write the results, examples: pprof=./matches.pb.gz, otlp=./matches.otlp").Strings()
	elfFiles := symbolsCmd.Arg("elf-files", "Object files to analyze.").Required().Strings()

	profrawCmd := app.Command("analyze-profraw", "Analyze raw profile files.")
	profrawFiles := profrawCmd.Arg("profraw-files", "Raw profile files to analyze.").Required().Strings()

	parsedCmd, err := app.Parse(args)
	if helpRequested && exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		// kingpin has already printed usage for a missing command
		if !errors.Is(err, kingpin.ErrCommandNotSpecified) {
			fmt.Fprintf(stderr, "%s: error: %v\n", appName, err)
			app.Usage(args)
		}
		return 1
	}
	if exitCode >= 0 {
		return exitCode
	}
	setupLogging(stderr, cfg.Verbose)

	switch parsedCmd {
	case symbolsCmd.FullCommand():
		cfg.Mode = analyzer.AnalyzeSymbols
		cfg.InputPaths = *elfFiles
		cfg.Demangle = symbolizer.DemangleMode(*demangle)
		for _, raw := range *exports {
			e, err := analyzer.ParseExport(raw)
			if err != nil {
				fmt.Fprintf(stderr, "%s: error: %v\n", appName, err)
				app.Usage(args)
				return 1
			}
			cfg.Exports = append(cfg.Exports, e)
		}
	case profrawCmd.FullCommand():
		cfg.Mode = analyzer.AnalyzeProfraw
		cfg.InputPaths = *profrawFiles
	}

	reader := symbolizer.NewExtractor(symbolizer.NewDemangler(cfg.Demangle))
	reporter := exporter.NewConsole(stdout, stderr, cfg.Color)
	a, err := analyzer.New(cfg, reader, reporter)
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", appName, err)
		app.Usage(args)
		return 1
	}

	sum, err := a.Run()
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", appName, err)
		app.Usage([]string{parsedCmd})
		return 1
	}
	if sum.Failures != nil {
		slog.Debug("Analysis finished with failures", "error", sum.Failures)
	}
	return 0
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
