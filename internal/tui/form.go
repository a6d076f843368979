package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
)

// RunOptions collects the interactive run parameters.
type RunOptions struct {
	Host        string
	Port        int
	KeyExchange string
	EMS         bool
	SampleLimit int
	Seed        int64
}

// RunForm prompts for run options, starting from the given defaults.
func RunForm(defaults RunOptions) (RunOptions, error) {
	host := defaults.Host
	port := strconv.Itoa(defaults.Port)
	keyExchange := defaults.KeyExchange
	ems := defaults.EMS
	sampleLimit := strconv.Itoa(defaults.SampleLimit)
	seed := strconv.FormatInt(defaults.Seed, 10)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target host").
				Description("Hostname or IP of the server under test.").
				Key("host").
				Value(&host).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("host is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Port").
				Description("TCP port (default 4433).").
				Key("port").
				Value(&port).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("Key exchange").
				Description("What the generated hellos offer.").
				Key("key_exchange").
				Options(
					huh.NewOption("RSA", "rsa"),
					huh.NewOption("ECDHE", "ecdhe"),
				).
				Value(&keyExchange),
			huh.NewConfirm().
				Title("Extended master secret").
				Description("Offer the extended_master_secret extension.").
				Key("ems").
				Value(&ems),
			huh.NewInput().
				Title("Sample limit").
				Description("Fuzzed conversations to run (0 = all).").
				Key("sample_limit").
				Value(&sampleLimit).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Seed").
				Description("Sampling seed (0 = derive from the clock).").
				Key("seed").
				Value(&seed),
		),
	)

	if err := form.Run(); err != nil {
		return RunOptions{}, err
	}

	out := RunOptions{Host: host, KeyExchange: keyExchange, EMS: ems}
	out.Port, _ = strconv.Atoi(port)
	out.SampleLimit, _ = strconv.Atoi(sampleLimit)
	out.Seed, _ = strconv.ParseInt(seed, 10, 64)
	return out, nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative number")
	}
	return nil
}
