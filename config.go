package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zerotrace/sanitize"
)

const (
	envPrefix    = "ZEROTRACE"
	maxBlockSize = 1 << 30
	sectorSize   = 512
)

// bindFlags exposes every flag of cmd through a fresh viper instance, so
// each one may also be set as ZEROTRACE_<FLAG_NAME>.
func bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if berr := v.BindPFlag(f.Name, f); berr != nil {
			err = errors.Wrapf(berr, "bind flag %s", f.Name)
		}
	})
	return v, err
}

type logConfig struct {
	Level string
	File  string
}

func loadLogConfig(v *viper.Viper) logConfig {
	return logConfig{Level: v.GetString("log-level"), File: v.GetString("log-file")}
}

// runConfig is shared by wipe and batch.
type runConfig struct {
	Mode          sanitize.Mode
	Verify        bool
	VerifySkipped bool
	BlockSize     int
	UI            bool
	Log           logConfig
}

type wipeConfig struct {
	runConfig
	Device string
	Volume string
}

type verifyConfig struct {
	Device    string
	Expect    byte
	BlockSize int
	Log       logConfig
}

type batchConfig struct {
	runConfig
	Jobs []jobSpec
}

// jobSpec is one DEVICE[:VOLUME] target of a batch.
type jobSpec struct {
	Device string
	Volume string
}

func loadRunConfig(v *viper.Viper) (runConfig, error) {
	mode, err := sanitize.ParseMode(v.GetString("mode"))
	if err != nil {
		return runConfig{}, err
	}
	bs, err := parseBlockSize(v.GetString("block-size"))
	if err != nil {
		return runConfig{}, err
	}
	return runConfig{
		Mode:          mode,
		Verify:        v.GetBool("verify"),
		VerifySkipped: v.GetBool("verify-skipped"),
		BlockSize:     bs,
		UI:            v.GetBool("ui"),
		Log:           loadLogConfig(v),
	}, nil
}

func (c runConfig) Validate() error {
	if c.VerifySkipped && !c.Verify {
		return errors.New("--verify-skipped requires --verify")
	}
	if c.VerifySkipped && c.Mode != sanitize.ModeSelectivePurge {
		return errors.Newf("--verify-skipped only applies to %s", sanitize.ModeSelectivePurge)
	}
	return nil
}

func loadWipeConfig(v *viper.Viper) (wipeConfig, error) {
	rc, err := loadRunConfig(v)
	if err != nil {
		return wipeConfig{}, err
	}
	cfg := wipeConfig{
		runConfig: rc,
		Device:    normalizeDevicePath(strings.TrimSpace(v.GetString("device"))),
		Volume:    normalizeVolume(strings.TrimSpace(v.GetString("volume"))),
	}
	return cfg, cfg.Validate()
}

func (c wipeConfig) Validate() error {
	if c.Device == "" {
		return errors.New("--device is required")
	}
	return c.runConfig.Validate()
}

func loadVerifyConfig(v *viper.Viper) (verifyConfig, error) {
	bs, err := parseBlockSize(v.GetString("block-size"))
	if err != nil {
		return verifyConfig{}, err
	}
	expect, err := parseByte(v.GetString("expect"))
	if err != nil {
		return verifyConfig{}, err
	}
	cfg := verifyConfig{
		Device:    normalizeDevicePath(strings.TrimSpace(v.GetString("device"))),
		Expect:    expect,
		BlockSize: bs,
		Log:       loadLogConfig(v),
	}
	if cfg.Device == "" {
		return cfg, errors.New("--device is required")
	}
	return cfg, nil
}

func loadBatchConfig(v *viper.Viper) (batchConfig, error) {
	rc, err := loadRunConfig(v)
	if err != nil {
		return batchConfig{}, err
	}
	cfg := batchConfig{runConfig: rc}
	for _, raw := range v.GetStringSlice("job") {
		js, err := parseJob(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Jobs = append(cfg.Jobs, js)
	}
	return cfg, cfg.Validate()
}

func (c batchConfig) Validate() error {
	if len(c.Jobs) == 0 {
		return errors.New("at least one --job is required")
	}
	if c.UI {
		return errors.New("the full-screen UI is not available in batch mode")
	}
	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if seen[j.Device] {
			return errors.Newf("device %s listed more than once", j.Device)
		}
		seen[j.Device] = true
	}
	return c.runConfig.Validate()
}

// parseJob splits DEVICE[:VOLUME] at the first colon.
func parseJob(s string) (jobSpec, error) {
	dev, vol, _ := strings.Cut(strings.TrimSpace(s), ":")
	dev = normalizeDevicePath(strings.TrimSpace(dev))
	if dev == "" {
		return jobSpec{}, errors.Newf("job %q has no device", s)
	}
	return jobSpec{Device: dev, Volume: normalizeVolume(strings.TrimSpace(vol))}, nil
}

// parseBlockSize accepts humanised sizes ("16MiB", "4M", "65536").
func parseBlockSize(s string) (int, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid block size %q", s)
	}
	if n == 0 || n%sectorSize != 0 {
		return 0, errors.Newf("block size %s must be a positive multiple of %d", humanize.IBytes(n), sectorSize)
	}
	if n > maxBlockSize {
		return 0, errors.Newf("block size %s exceeds %s", humanize.IBytes(n), humanize.IBytes(maxBlockSize))
	}
	return int(n), nil
}

// parseByte accepts 0xNN, 0NN octal or decimal.
func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid byte value %q", s)
	}
	return byte(n), nil
}
