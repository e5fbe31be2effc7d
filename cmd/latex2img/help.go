package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: latex2img <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Replace math in markdown documents with rendered images")
	fmt.Fprintln(w, "  doctor     Check the TeX toolchain and environment")
	fmt.Fprintln(w, "  config     Print the effective configuration as YAML")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'latex2img help <command>' for details on a specific command.")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: latex2img render [input] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render math spans to PNG images and rewrite documents to reference them.")
	fmt.Fprintln(w, "Spans that fail to render are left as they are and reported.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  input    Document or directory (optional if config has input.root)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --ext <ext>           Document extensions to scan (default: .md, .markdown)")
	fmt.Fprintln(w, "  -a, --assets <dir>        Image directory, relative to the input root (default: assets)")
	fmt.Fprintln(w, "      --dry-run             Print what would be rendered, change nothing")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Rendering:")
	fmt.Fprintln(w, "  -g, --grammar <name>      Delimiters: display ($$..$$), escaped-bracket (\\[..\\]),")
	fmt.Fprintln(w, "                            bracket ([..], opt-in); repeatable")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel workers (0 = auto)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-formula timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w, "      --dpi <n>             Image resolution (50-2400, default: 300)")
	fmt.Fprintln(w, "      --force               Re-render images that already exist")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Rewriting:")
	fmt.Fprintln(w, "      --policy <s>          all: replace every copy of a span; first: only its own")
	fmt.Fprintln(w, "      --no-provenance       Omit the fenced LaTeX source after each image")
	fmt.Fprintln(w, "      --html                Write an HTML preview next to each rewritten document")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs and timing")
	fmt.Fprintln(w, "      --log-file <path>     Append debug logs to a file")
	fmt.Fprintln(w, "      --log-format <s>      Log file format: json, text (default: json)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  LATEX2IMG_CONFIG, LATEX2IMG_INPUT_DIR, LATEX2IMG_ASSETS_DIR, LATEX2IMG_TIMEOUT,")
	fmt.Fprintln(w, "  LATEX2IMG_COMPILER, LATEX2IMG_CONVERTER, LATEX2IMG_DPI, LATEX2IMG_GRAMMARS,")
	fmt.Fprintln(w, "  LATEX2IMG_EXTENSIONS, LATEX2IMG_POLICY, LATEX2IMG_WORKERS, LATEX2IMG_LOG_FILE")
	fmt.Fprintln(w, "  Flags override environment variables, which override the config file.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes:")
	fmt.Fprintln(w, "  0  success (formulas that failed to render are reported, not fatal)")
	fmt.Fprintln(w, "  1  unexpected error")
	fmt.Fprintln(w, "  2  invalid flags or config")
	fmt.Fprintln(w, "  3  a document or the image directory could not be read or written")
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: latex2img doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check that latex, dvipng and the required TeX packages are installed.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file naming the tools to check")
	fmt.Fprintln(w, "      --json                Output results as JSON")
}

// printConfigUsage prints usage for the config command.
func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: latex2img config [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the configuration a render would use, after environment overrides.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case "render":
		printRenderUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "config":
		printConfigUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: latex2img version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: latex2img help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "unknown command: %s\n\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
