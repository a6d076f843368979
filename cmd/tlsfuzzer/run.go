package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/capture"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/config"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/errors"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/harness"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/logging"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/report"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/scenario"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

type runFlags struct {
	host          string
	port          int
	configPath    string
	quickStart    bool
	ecdhe         bool
	ems           bool
	cipher        string
	num           int
	seed          int64
	runOnly       []string
	exclude       []string
	expectFailure []string
	pcapFile      string
	logFile       string
	verbose       bool
	debug         bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fuzzing harness against a server",
		Long: `Generate the conversation population for the configured offer, execute it
against the target, and classify every conversation.

Each fuzzed conversation corrupts one field of a ClientHello and requires the
server to answer with the matching alert and close the connection. The sanity
conversation runs first and last to confirm the unmodified exchange still
works.

Known server bugs are tolerated via expected failures: a failure listed with
--expect-failure (or in the config file) counts as XFAIL, and the run stays
green. If such a conversation passes instead, it counts as XPASS and the run
fails, so stale entries surface.`,
		Example: `  # Run everything against a local server
  tlsfuzzer run --host localhost --port 4433

  # Sample 100 fuzzed conversations with a fixed seed
  tlsfuzzer run --host 10.0.0.50 --num 100 --seed 7

  # Offer ECDHE with extended master secret
  tlsfuzzer run --host 10.0.0.50 --ecdhe --ems

  # Tolerate a known bug, requiring the message to match
  tlsfuzzer run --host 10.0.0.50 \
    --expect-failure 'fuzz session ID length to 4=unexpected message'

  # Capture the full record exchange
  tlsfuzzer run --host 10.0.0.50 --pcap run.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			cfg, err := loadRunConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.Target.Host == "" {
				return missingFlagError(cmd, "--host")
			}
			summary, err := executeRun(cfg, flags, os.Stdout, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}
			if !summary.Clean() {
				os.Exit(1)
			}
			return nil
		},
	}

	addRunFlags(cmd, flags)
	return cmd
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().StringVar(&flags.host, "host", "", "Target server hostname or IP (required)")
	cmd.Flags().IntVar(&flags.port, "port", 4433, "Target TCP port (default 4433)")
	cmd.Flags().StringVar(&flags.configPath, "config", "tlsfuzzer.yaml", "Harness config file (default \"tlsfuzzer.yaml\")")
	cmd.Flags().BoolVar(&flags.quickStart, "quick-start", false, "Auto-generate default config if missing (zero-config usage)")
	cmd.Flags().BoolVar(&flags.ecdhe, "ecdhe", false, "Offer ECDHE key exchange instead of RSA")
	cmd.Flags().BoolVar(&flags.ems, "ems", false, "Offer the extended_master_secret extension")
	cmd.Flags().StringVar(&flags.cipher, "cipher", "", "Cipher suite name override (e.g. TLS_RSA_WITH_AES_256_CBC_SHA)")
	cmd.Flags().IntVar(&flags.num, "num", 0, "Fuzzed conversations to run, sampled without replacement (0 = all)")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "Sampling seed (0 = derive from the clock)")
	cmd.Flags().StringArrayVar(&flags.runOnly, "run-only", nil, "Run only the named conversation (repeatable)")
	cmd.Flags().StringArrayVar(&flags.exclude, "exclude", nil, "Exclude the named conversation (repeatable)")
	cmd.Flags().StringArrayVar(&flags.expectFailure, "expect-failure", nil, "Expected failure as name[=message substring] (repeatable)")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Capture the record exchange to a PCAP file (e.g., run.pcap)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path (default: stdout/stderr only)")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output")
}

// loadRunConfig loads the config file and layers the command-line
// overrides on top.
func loadRunConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(flags.configPath); err == nil || flags.quickStart {
		cfg, err = config.Load(flags.configPath, flags.quickStart)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.CreateDefaultConfig()
		cfg.Target.Host = ""
	}

	if flags.host != "" {
		cfg.Target.Host = flags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Target.Port = flags.port
	}
	if flags.ecdhe {
		cfg.Protocol.KeyExchange = config.KeyExchangeECDHE
	}
	if flags.ems {
		cfg.Protocol.ExtendedMasterSecret = true
	}
	if flags.cipher != "" {
		cfg.Protocol.CipherOverride = flags.cipher
	}
	if cmd.Flags().Changed("num") {
		cfg.Run.SampleLimit = flags.num
	}
	if cmd.Flags().Changed("seed") {
		cfg.Run.Seed = flags.seed
	}
	if flags.pcapFile != "" {
		cfg.PcapOut = flags.pcapFile
	}
	return cfg, nil
}

// buildParams resolves the scenario parameters from the config.
func buildParams(cfg *config.Config) (scenario.Params, error) {
	p := scenario.Params{
		Host:      cfg.Target.Host,
		Port:      cfg.Target.Port,
		ECDHE:     cfg.Protocol.KeyExchange == config.KeyExchangeECDHE,
		EMS:       cfg.Protocol.ExtendedMasterSecret,
		SkipRules: cfg.SkipRules,
	}
	if cfg.Protocol.CipherOverride != "" {
		cs, ok := spec.CipherSuiteByName(cfg.Protocol.CipherOverride)
		if !ok {
			return p, fmt.Errorf("unknown cipher suite %q", cfg.Protocol.CipherOverride)
		}
		p.Cipher = cs
		p.ECDHE = cs.Ephemeral()
	}
	return p, nil
}

// parseExpectedFailures merges the config entries and the
// name[=substring] command-line values.
func parseExpectedFailures(cfg *config.Config, flagValues []string) map[string]string {
	out := make(map[string]string)
	for _, xf := range cfg.ExpectedFailures {
		out[xf.Name] = xf.Message
	}
	for _, v := range flagValues {
		name, msg, _ := strings.Cut(v, "=")
		out[name] = msg
	}
	return out
}

// executeRun assembles the harness and runs the population. onResult is
// optional and feeds the interactive view.
func executeRun(cfg *config.Config, flags *runFlags, out io.Writer, onResult func(report.Result)) (*report.Summary, error) {
	level := logging.LogLevelInfo
	if flags.verbose {
		level = logging.LogLevelVerbose
	}
	if flags.debug {
		level = logging.LogLevelDebug
	}
	logFile := flags.logFile
	if logFile == "" {
		logFile = cfg.Logging.LogFile
	}
	logger, err := logging.NewLogger(level, logFile)
	if err != nil {
		return nil, err
	}
	defer logger.Close()
	out = logger.TranscriptWriter(out)

	params, err := buildParams(cfg)
	if err != nil {
		return nil, err
	}
	pop, err := scenario.BuildPopulation(params)
	if err != nil {
		return nil, err
	}

	var pcap *capture.Writer
	if cfg.PcapOut != "" {
		pcap, err = capture.NewWriter(cfg.PcapOut, cfg.Target.Port)
		if err != nil {
			return nil, err
		}
		defer pcap.Close()
	}

	newClient := func() client.Client {
		var opts []client.Option
		if pcap != nil {
			pcap.NextFlow()
			opts = append(opts, client.WithRecorder(pcap))
		}
		return client.New(opts...)
	}

	seed := cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.LogStartup(cfg.Target.Host, cfg.Target.Port, pop.Len(), cfg.Run.SampleLimit, flags.configPath)

	ctrl, err := harness.New(harness.Options{
		RunOnly:          flags.runOnly,
		Exclude:          flags.exclude,
		ExpectedFailures: parseExpectedFailures(cfg, flags.expectFailure),
		SampleLimit:      cfg.Run.SampleLimit,
		Rand:             rand.New(rand.NewSource(seed)),
		NewClient:        newClient,
		Timeout:          time.Duration(cfg.Run.ReceiveTimeoutMs) * time.Millisecond,
		OnResult:         onResult,
		Logger:           logger,
		Out:              out,
	})
	if err != nil {
		return nil, err
	}

	summary, err := ctrl.Run(context.Background(), pop)
	if err != nil {
		return nil, errors.WrapNetworkError(err, cfg.Target.Host, cfg.Target.Port)
	}
	return summary, nil
}
