package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/migadu/procsieve/config"
	"github.com/migadu/procsieve/convert"
	"github.com/migadu/procsieve/helpers"
	"github.com/migadu/procsieve/logger"
	"github.com/migadu/procsieve/sieve"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "translate":
		handleTranslate()
	case "validate":
		handleValidate()
	case "version", "--version", "-v":
		fmt.Printf("procsieve %s\n", Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`PROCSIEVE - procmail to Sieve translator

Usage:
  procsieve <command> [options]

Commands:
  translate  Translate a user's .forward and .procmailrc files to Sieve
  validate   Check an existing Sieve script against the engine's extensions
  version    Print the version
  help       Show this help message

Examples:
  procsieve translate --user helen --domain example.org
  procsieve translate --home /home/helen --output helen.sieve
  procsieve validate helen.sieve

Use 'procsieve <command> --help' for more information about a command.
`)
}

func handleTranslate() {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)

	configPath := fs.String("config", "procsieve.toml", "Path to TOML configuration file")
	user := fs.String("user", "", "Account whose rule files to translate (default: current user)")
	home := fs.String("home", "", "Home directory holding the rule files (default: the account's)")
	inbox := fs.String("inbox", "", "Default inbox path, relative to home unless absolute (overrides config)")
	domain := fs.String("domain", "", "Email domain for qualifying bare addresses (overrides config)")
	provenance := fs.Bool("provenance", true, "Emit comments naming each source file (overrides config)")
	output := fs.String("output", "", "Write the script to this file instead of stdout")
	validate := fs.Bool("validate", false, "Load the generated script with the Sieve interpreter (overrides config)")

	fs.Usage = func() {
		fmt.Printf(`Translate a user's .forward and .procmailrc files to Sieve

Reads .forward+EXTENSION files, .forward, and .procmailrc from the user's
home directory and emits one equivalent Sieve script. Constructs with no
Sieve equivalent become inert, visibly marked placeholders; if any were
needed the exit status is 1 even though a complete script was produced.

Usage:
  procsieve translate [options]

Options:
  --user string    Account whose rule files to translate (default: current user)
  --home string    Home directory holding the rule files (default: the account's)
  --inbox string   Default inbox path, relative to home unless absolute (default: /var/mail/USER)
  --domain string  Email domain for qualifying bare addresses
  --provenance     Emit comments naming each source file (default: true)
  --output string  Write the script to this file instead of stdout
  --validate       Load the generated script with the Sieve interpreter
  --config string  Path to TOML configuration file (default: procsieve.toml)

Examples:
  procsieve translate --user helen --domain example.org
  procsieve translate --home /home/helen --output helen.sieve --validate
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(fs, *configPath)

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	opts := convert.Options{
		User:        *user,
		Home:        *home,
		Inbox:       cfg.Translate.Inbox,
		EmailDomain: cfg.Translate.EmailDomain,
		SearchPath:  cfg.Translate.Path,
		Provenance:  cfg.Translate.ProvenanceComments,
	}
	if isFlagSet(fs, "inbox") {
		opts.Inbox = *inbox
	}
	if isFlagSet(fs, "domain") {
		opts.EmailDomain = *domain
	}
	if isFlagSet(fs, "provenance") {
		opts.Provenance = *provenance
	}

	result, err := convert.Run(opts)
	if err != nil {
		logger.Fatal("Translation failed", "error", err)
	}

	for _, problem := range result.Problems {
		logger.Warn("Construct not translatable", "problem", problem)
	}

	doValidate := cfg.Sieve.Validate
	if isFlagSet(fs, "validate") {
		doValidate = *validate
	}
	if doValidate && result.Script != "" {
		unvalidatable, err := sieve.CheckScript(result.Script, result.Requires)
		if err != nil {
			logger.Fatal("Generated script failed validation", "error", err)
		}
		if len(unvalidatable) > 0 {
			logger.Warn("Generated script requires extensions the validator cannot check",
				"extensions", strings.Join(unvalidatable, ", "))
		}
	}
	if exts := cfg.Sieve.EnabledExtensions; len(exts) > 0 {
		if missing := missingExtensions(result.Requires, exts); len(missing) > 0 {
			logger.Warn("Generated script requires extensions the target engine does not enable",
				"extensions", strings.Join(missing, ", "))
		}
	}

	if result.Script != "" {
		logger.Info("Translation complete",
			"bytes", len(result.Script),
			"requires", strings.Join(result.Requires, ","),
			"problems", len(result.Problems),
			"hash", helpers.HashContent([]byte(result.Script)))
	} else {
		logger.Info("No rule files produced any commands")
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(result.Script), 0644); err != nil {
			logger.Fatal("Failed to write output file", "path", *output, "error", err)
		}
	} else if _, err := os.Stdout.WriteString(result.Script); err != nil {
		logger.Fatal("Failed to write script", "error", err)
	}

	if len(result.Problems) > 0 {
		os.Exit(1)
	}
}

func handleValidate() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)

	configPath := fs.String("config", "procsieve.toml", "Path to TOML configuration file")

	fs.Usage = func() {
		fmt.Printf(`Check an existing Sieve script

Loads the script with the Sieve interpreter, restricted to the extensions
named in the configuration's sieve.enabled_extensions (all of them when the
list is empty).

Usage:
  procsieve validate [options] <script.sieve>

Options:
  --config string  Path to TOML configuration file (default: procsieve.toml)

Examples:
  procsieve validate helen.sieve
  procsieve validate --config /etc/procsieve.toml helen.sieve
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fmt.Printf("Error: exactly one script file is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	scriptPath := fs.Arg(0)

	cfg := loadConfig(fs, *configPath)

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := sieve.ValidateExtensions(cfg.Sieve.EnabledExtensions); err != nil {
		logger.Fatal("Invalid sieve.enabled_extensions", "error", err)
	}

	text, err := os.ReadFile(scriptPath)
	if err != nil {
		logger.Fatal("Failed to read script", "path", scriptPath, "error", err)
	}

	extensions := cfg.Sieve.EnabledExtensions
	if len(extensions) == 0 {
		extensions = sieve.GoSieveSupportedExtensions
	}
	if err := sieve.ValidateScript(string(text), extensions); err != nil {
		logger.Error("Script failed validation", "path", scriptPath, "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s: OK\n", scriptPath)
}

// loadConfig reads the TOML config, tolerating a missing default file but
// not a missing explicitly named one.
func loadConfig(fs *flag.FlagSet, configPath string) config.Config {
	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(configPath, &cfg); err != nil {
		if os.IsNotExist(err) {
			if isFlagSet(fs, "config") {
				fmt.Fprintf(os.Stderr, "ERROR: specified configuration file '%s' not found\n", configPath)
				os.Exit(1)
			}
			// Default config file absent: defaults plus flags apply.
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
	}
	return cfg
}

// isFlagSet checks whether a flag was explicitly set on the command line
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// missingExtensions returns the required capabilities absent from enabled.
func missingExtensions(required, enabled []string) []string {
	enabledMap := make(map[string]bool)
	for _, ext := range enabled {
		enabledMap[ext] = true
	}
	var missing []string
	for _, ext := range required {
		if !enabledMap[ext] {
			missing = append(missing, ext)
		}
	}
	return missing
}
