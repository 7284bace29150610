// biocorectl is the command-line interface over the biometric DID core.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/fractionestate/decentralized-did/internal/logging"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var (
	configPath  = flag.String("config", "", "path to config file")
	noColor     = flag.Bool("no-color", false, "disable colored output")
	showVersion = flag.Bool("version", false, "show version information")
	quiet       = flag.Bool("q", false, "suppress banner")
)

// ANSI color codes
type colors struct {
	Reset   string
	Bold    string
	Dim     string
	Red     string
	Green   string
	Yellow  string
	Blue    string
	Magenta string
	Cyan    string
	White   string
}

var c colors

func initColors() {
	if *noColor || os.Getenv("NO_COLOR") != "" || !isTerminal() {
		c = colors{}
		return
	}

	c = colors{
		Reset:   "\033[0m",
		Bold:    "\033[1m",
		Dim:     "\033[2m",
		Red:     "\033[31m",
		Green:   "\033[32m",
		Yellow:  "\033[33m",
		Blue:    "\033[34m",
		Magenta: "\033[35m",
		Cyan:    "\033[36m",
		White:   "\033[37m",
	}
}

func isTerminal() bool {
	if runtime.GOOS == "windows" {
		return os.Getenv("TERM") != "" || os.Getenv("WT_SESSION") != ""
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

const banner = `
%s          ╔╗ ╦╔═╗╔═╗╔═╗╦═╗╔═╗%s
%s          ╠╩╗║║ ║║  ║ ║╠╦╝║╣ %s
%s          ╚═╝╩╚═╝╚═╝╚═╝╩╚═╚═╝%s%sctl%s
%s    ──────────────────────────────────%s
%s       Decentralized biometric DIDs%s

`

func printBanner() {
	fmt.Fprintf(os.Stderr, banner,
		c.Cyan+c.Bold, c.Reset,
		c.Cyan+c.Bold, c.Reset,
		c.Cyan+c.Bold, c.Reset, c.Dim, c.Reset,
		c.Dim, c.Reset,
		c.Dim, c.Reset,
	)
}

func printVersion() {
	fmt.Printf("%sbiocorectl%s %s%s%s\n", c.Bold, c.Reset, c.Cyan, Version, c.Reset)
	fmt.Printf("  %sBuild%s       %s\n", c.Dim, c.Reset, BuildTime)
	fmt.Printf("  %sCommit%s      %s\n", c.Dim, c.Reset, Commit)
	fmt.Printf("  %sPlatform%s    %s/%s\n", c.Dim, c.Reset, runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  %sGo%s          %s\n", c.Dim, c.Reset, runtime.Version())
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s ERROR %s %s\n", c.Bold, c.Red, c.Reset, msg)
}

func printSection(title string) {
	fmt.Printf("\n%s%s %s %s\n\n", c.Bold, c.Cyan, title, c.Reset)
}

func main() {
	defer logging.RecoverPanic()
	flag.Parse()
	initColors()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		if !*quiet {
			printBanner()
		}
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	if !*quiet && cmd != "help" && cmd != "version" {
		printBanner()
	}

	switch cmd {
	case "enroll":
		cmdEnroll(flag.Args()[1:])
	case "verify":
		cmdVerify(flag.Args()[1:])
	case "revoke":
		cmdRevoke(flag.Args()[1:])
	case "rotate":
		cmdRotate(flag.Args()[1:])
	case "inspect-bundle":
		if flag.NArg() < 2 {
			printError("Usage: biocorectl inspect-bundle <bundle.json>")
			os.Exit(1)
		}
		cmdInspectBundle(flag.Arg(1))
	case "help":
		if !*quiet {
			printBanner()
		}
		usage()
	case "version":
		printVersion()
	default:
		printError(fmt.Sprintf("Unknown command: %s", cmd))
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%sUSAGE%s
    biocorectl [options] <command> [arguments]

%sCOMMANDS%s
    %senroll%s   <captures.json>           Enroll a new identity from finger captures
    %sverify%s   <captures.json> <bundle>  Verify captures reproduce a bundle's DID
    %srevoke%s   <bundle.json> <signer>    Revoke an enrolled bundle
    %srotate%s   <old-master> <old-fk> <new-fk>
                                    Rotate one finger's key contribution
    %sinspect-bundle%s <bundle.json>       Print a bundle's contents
    %shelp%s                    Show this help message
    %sversion%s                 Show version information

%sOPTIONS%s
    -config <path>   Path to config file (default: platform config dir)
    -no-color        Disable colored output
    -q               Suppress banner

%senroll OPTIONS%s
    -network <tag>      Network tag: mainnet, testnet, preview, preprod (default mainnet)
    -controller <addr>  Controller address; repeatable, at least one required
    -storage <mode>     Helper storage mode: inline or filesystem (default from config)
    -parity             Attach BCH parity-assisted recovery helpers
    -out <path>         Write the resulting bundle here (default stdout)
    -register           Register the resulting bundle in the local duplicate index
                        (backend selected by the config file's registry_backend: jsonl or sqlite)

%sverify OPTIONS%s
    -network <tag>      Network tag the bundle was enrolled under (default mainnet)

%sEXAMPLES%s
    biocorectl enroll captures.json -controller addr1abc... -out bundle.json -register
    biocorectl verify captures.json bundle.json
    biocorectl revoke bundle.json addr1abc... -out bundle.json
    biocorectl inspect-bundle bundle.json

`,
		c.Bold+c.White, c.Reset,
		c.Bold+c.White, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Cyan, c.Reset,
		c.Bold+c.White, c.Reset,
		c.Bold+c.White, c.Reset,
		c.Bold+c.White, c.Reset,
		c.Bold+c.White, c.Reset,
	)
}
