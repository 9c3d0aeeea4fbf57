package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/autonoc/autonoc/internal/analysis"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/pipeline"
	"github.com/autonoc/autonoc/internal/probe"
	"github.com/autonoc/autonoc/internal/sanitize"
)

// version is set by ldflags at build time.
var version = "dev"

var (
	stageColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

func verdictColor(v analysis.Verdict) *color.Color {
	switch v {
	case analysis.VerdictNormal:
		return okColor
	case analysis.VerdictCritical:
		return failColor
	default:
		return warnColor
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// cliLogger keeps pipeline logging on stderr and out of the rendered
// output unless -v raises the level.
func cliLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func defaultPort(transport string) int {
	switch transport {
	case "winrm":
		return 5985
	default:
		return 22
	}
}

func main() {
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "autonoc",
		Short: "single-cycle network device diagnostics",
		Long: `autonoc connects to one network device, runs a fixed diagnostic command
cycle, scrubs credentials and addresses from the transcript, and asks a
model for a health verdict.`,
	}

	rootCmd.AddCommand(newRunCmd(), newSanitizeCmd(), newProbeCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		flagTransport    string
		flagHost         string
		flagPort         int
		flagUsername     string
		flagPassword     string
		flagEnableSecret string
		flagKeyFile      string
		flagCommands     []string
		flagAPIURL       string
		flagAPIKey       string
		flagModel        string
		flagTimeout      time.Duration
		flagRaw          bool
		flagVerbose      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one diagnostic cycle against a device",
		Long: `Connects to the target, executes the diagnostic command cycle, prints
the sanitized transcript and the analysis report. Exit code 0 on success,
2 when only the analysis degraded (transcripts still printed), 1 on a
connection or system failure.

Examples:
  autonoc run --host 10.0.0.5 --username admin --password secret
  autonoc run --transport winrm --host 10.0.0.9 --username Administrator --password secret
  AUTONOC_PASSWORD=secret autonoc run --host 10.0.0.5 --username admin --raw`,
		Run: func(cmd *cobra.Command, args []string) {
			host := firstNonEmpty(flagHost, os.Getenv("AUTONOC_HOST"))
			if host == "" {
				fmt.Fprintln(os.Stderr, "run: --host is required (env: AUTONOC_HOST)")
				os.Exit(1)
			}
			username := firstNonEmpty(flagUsername, os.Getenv("AUTONOC_USERNAME"))
			if username == "" {
				fmt.Fprintln(os.Stderr, "run: --username is required (env: AUTONOC_USERNAME)")
				os.Exit(1)
			}
			if flagPort == 0 {
				flagPort = defaultPort(flagTransport)
			}

			creds := device.Credentials{
				Username:     username,
				Password:     firstNonEmpty(flagPassword, os.Getenv("AUTONOC_PASSWORD")),
				EnableSecret: firstNonEmpty(flagEnableSecret, os.Getenv("AUTONOC_ENABLE_SECRET")),
				Passphrase:   os.Getenv("AUTONOC_KEY_PASSPHRASE"),
			}
			if flagKeyFile != "" {
				key, err := os.ReadFile(flagKeyFile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "run: cannot read key file: %v\n", err)
					os.Exit(1)
				}
				creds.PrivateKey = string(key)
			}

			logger := cliLogger(flagVerbose)
			sanitizer := sanitize.New()
			analyzer := analysis.NewClient(analysis.Options{
				BaseURL: firstNonEmpty(flagAPIURL, os.Getenv("AUTONOC_ANALYSIS_BASE_URL")),
				APIKey:  firstNonEmpty(flagAPIKey, os.Getenv("AUTONOC_ANALYSIS_API_KEY"), os.Getenv("GEMINI_API_KEY")),
				Model:   firstNonEmpty(flagModel, os.Getenv("AUTONOC_ANALYSIS_MODEL")),
			}, logger)
			dialers := pipeline.Dialers{
				SSH:   device.NewSSHDialer(device.SSHOptions{ConnectTimeout: flagTimeout}),
				WinRM: device.NewWinRMDialer(device.WinRMOptions{ConnectTimeout: flagTimeout}),
			}
			pipe := pipeline.New(dialers, sanitizer, analyzer, logger)

			req := pipeline.Request{
				Target: device.Target{
					Transport: device.Transport(flagTransport),
					Host:      host,
					Port:      flagPort,
				},
				Credentials: creds,
			}
			if len(flagCommands) > 0 {
				req.Commands = device.Specs(flagCommands...)
			}

			observe := func(ev pipeline.StageEvent) {
				line := stageColor.Sprintf("[%s]", ev.Stage)
				if ev.Detail != "" {
					line += " " + dimColor.Sprint(ev.Detail)
				}
				fmt.Fprintln(os.Stderr, line)
			}

			res := pipe.Run(cmd.Context(), req, observe)
			renderResult(res, flagRaw)

			switch {
			case res.Stage == pipeline.StageDone:
				os.Exit(0)
			case res.Degraded:
				os.Exit(2)
			default:
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&flagTransport, "transport", "ssh", "device transport: ssh or winrm")
	cmd.Flags().StringVar(&flagHost, "host", "", "target host (env: AUTONOC_HOST)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "target port (default 22 for ssh, 5985 for winrm)")
	cmd.Flags().StringVar(&flagUsername, "username", "", "login username (env: AUTONOC_USERNAME)")
	cmd.Flags().StringVar(&flagPassword, "password", "", "login password (env: AUTONOC_PASSWORD)")
	cmd.Flags().StringVar(&flagEnableSecret, "enable-secret", "", "privileged mode secret (env: AUTONOC_ENABLE_SECRET)")
	cmd.Flags().StringVar(&flagKeyFile, "key-file", "", "SSH private key file (passphrase env: AUTONOC_KEY_PASSPHRASE)")
	cmd.Flags().StringArrayVar(&flagCommands, "command", nil, "command to run instead of the default cycle (repeatable)")
	cmd.Flags().StringVar(&flagAPIURL, "api-url", "", "analysis endpoint base URL (env: AUTONOC_ANALYSIS_BASE_URL)")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "analysis API key (env: AUTONOC_ANALYSIS_API_KEY, GEMINI_API_KEY)")
	cmd.Flags().StringVar(&flagModel, "model", "", "analysis model name (env: AUTONOC_ANALYSIS_MODEL)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "connection timeout")
	cmd.Flags().BoolVar(&flagRaw, "raw", false, "print the raw transcript instead of the sanitized one")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	return cmd
}

// renderResult prints the collected artifacts. The sanitized transcript
// is the default view; --raw switches to the unscrubbed one.
func renderResult(res *pipeline.Result, raw bool) {
	if res.Raw == "" {
		failColor.Fprintf(os.Stderr, "FAILED (%s)\n", res.Failure)
		if res.Err != nil {
			fmt.Fprintln(os.Stderr, res.Err.Error())
		}
		return
	}

	fmt.Println()
	if raw {
		fmt.Println(dimColor.Sprint("--- raw transcript ---"))
		fmt.Println(res.Raw)
	} else {
		fmt.Println(dimColor.Sprint("--- sanitized transcript ---"))
		fmt.Println(res.Sanitized)
		if len(res.Triggered) > 0 {
			cats := make([]string, 0, len(res.Triggered))
			for _, c := range res.Triggered {
				cats = append(cats, string(c))
			}
			warnColor.Fprintf(os.Stderr, "redacted: %s\n", strings.Join(cats, ", "))
		}
	}

	if res.Report != nil {
		fmt.Println(dimColor.Sprint("--- report ---"))
		fmt.Printf("%s %s\n", "Verdict:", verdictColor(res.Report.Verdict).Sprint(string(res.Report.Verdict)))
		fmt.Println(res.Report.Narrative)
	}
	if res.Degraded && res.Err != nil {
		warnColor.Fprintf(os.Stderr, "analysis degraded: %v\n", res.Err)
	}
}

func newSanitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize [file]",
		Short: "scrub credentials and addresses from text",
		Long: `Applies the redaction rule table to a file (or stdin) and writes the
sanitized text to stdout. Triggered rule categories go to stderr so the
output stays pipeable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			result := sanitize.New().Apply(string(data))
			fmt.Print(result.Text)

			if len(result.Triggered) > 0 {
				cats := make([]string, 0, len(result.Triggered))
				for _, c := range result.Triggered {
					cats = append(cats, string(c))
				}
				warnColor.Fprintf(os.Stderr, "redacted: %s\n", strings.Join(cats, ", "))
			} else {
				dimColor.Fprintln(os.Stderr, "nothing redacted")
			}
			return nil
		},
	}
	return cmd
}

func newProbeCmd() *cobra.Command {
	var (
		flagProtocol      string
		flagHost          string
		flagPort          int
		flagUsername      string
		flagPassword      string
		flagCommunity     string
		flagSecurityName  string
		flagSecurityLevel string
		flagAuthProtocol  string
		flagAuthPassword  string
		flagPrivProtocol  string
		flagPrivPassword  string
		flagTimeout       time.Duration
		flagVerbose       bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "validate credentials against a device",
		Long: `Runs a single protocol handshake against the target and reports whether
the credentials work. Exit code 0 when reachable, 1 when not.

Examples:
  autonoc probe --protocol ssh --host 10.0.0.5 --username admin --password secret
  autonoc probe --protocol snmp-v2c --host 10.0.0.5 --community public`,
		Run: func(cmd *cobra.Command, args []string) {
			if flagPort == 0 {
				switch probe.Protocol(flagProtocol) {
				case probe.ProtocolSNMPv2c, probe.ProtocolSNMPv3:
					flagPort = 161
				default:
					flagPort = defaultPort(flagProtocol)
				}
			}

			req := probe.Request{
				Protocol: probe.Protocol(flagProtocol),
				Host:     firstNonEmpty(flagHost, os.Getenv("AUTONOC_HOST")),
				Port:     flagPort,
				Credentials: probe.Credentials{
					Username:      firstNonEmpty(flagUsername, os.Getenv("AUTONOC_USERNAME")),
					Password:      firstNonEmpty(flagPassword, os.Getenv("AUTONOC_PASSWORD")),
					Community:     flagCommunity,
					SecurityName:  flagSecurityName,
					SecurityLevel: flagSecurityLevel,
					AuthProtocol:  flagAuthProtocol,
					AuthPassword:  flagAuthPassword,
					PrivProtocol:  flagPrivProtocol,
					PrivPassword:  flagPrivPassword,
				},
			}

			prober := probe.New(flagTimeout, sanitize.New(), cliLogger(flagVerbose))
			res, err := prober.Probe(context.Background(), req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "probe: %v\n", err)
				os.Exit(1)
			}

			if res.OK {
				okColor.Printf("OK %s\n", res.Protocol)
				if res.Hostname != "" {
					fmt.Printf("hostname: %s\n", res.Hostname)
				}
				if res.Detail != "" {
					fmt.Println(res.Detail)
				}
				os.Exit(0)
			}
			failColor.Printf("FAILED %s\n", res.Protocol)
			if res.Error != "" {
				fmt.Fprintln(os.Stderr, res.Error)
			}
			os.Exit(1)
		},
	}

	cmd.Flags().StringVar(&flagProtocol, "protocol", "ssh", "probe protocol: ssh, winrm, snmp-v2c or snmp-v3")
	cmd.Flags().StringVar(&flagHost, "host", "", "target host (env: AUTONOC_HOST)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "target port (defaults per protocol)")
	cmd.Flags().StringVar(&flagUsername, "username", "", "login username (env: AUTONOC_USERNAME)")
	cmd.Flags().StringVar(&flagPassword, "password", "", "login password (env: AUTONOC_PASSWORD)")
	cmd.Flags().StringVar(&flagCommunity, "community", "", "SNMPv2c community string")
	cmd.Flags().StringVar(&flagSecurityName, "security-name", "", "SNMPv3 security name")
	cmd.Flags().StringVar(&flagSecurityLevel, "security-level", "", "SNMPv3 level: noAuthNoPriv, authNoPriv or authPriv")
	cmd.Flags().StringVar(&flagAuthProtocol, "auth-protocol", "", "SNMPv3 auth protocol (MD5, SHA, ...)")
	cmd.Flags().StringVar(&flagAuthPassword, "auth-password", "", "SNMPv3 auth password")
	cmd.Flags().StringVar(&flagPrivProtocol, "priv-protocol", "", "SNMPv3 privacy protocol (DES, AES, ...)")
	cmd.Flags().StringVar(&flagPrivPassword, "priv-password", "", "SNMPv3 privacy password")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "handshake timeout")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print autonoc version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autonoc %s\n", version)
		},
	}
}
