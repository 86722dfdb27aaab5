// zerotrace overwrites block devices with fixed pattern plans and proves
// the result by reading it back.
//
// Modes:
//
//	test             one zero block at offset 0
//	clear            0x00 over the whole device
//	purge            0x00, 0xFF, pseudorandom over the whole device
//	selective-purge  the purge passes over regions holding data only
//
// Every destructive command asks for CONFIRM on stdin first.
package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"zerotrace/sanitize"
	"zerotrace/tui"
)

const exitInterrupted = 130

func main() {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr, env: platformEnv(), exit: os.Exit}
	os.Exit(a.run(os.Args[1:]))
}

// app carries the process streams so commands can be driven from tests.
type app struct {
	in     *os.File
	out    io.Writer
	errOut io.Writer
	env    jobEnv
	exit   func(int)
}

func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.Execute()
	return a.report(err)
}

// report prints err with its hints and returns the process exit code.
func (a *app) report(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(a.errOut, "error: %v\n", err)
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(a.errOut, "hint: %s\n", h)
	}
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zerotrace",
		Short:         "Selective block-scan secure erase for disks and images",
		Long:          "Overwrite a device with a fixed pass plan, skipping regions that already read as zero in selective mode, and verify the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(a.wipeCmd(), a.verifyCmd(), a.batchCmd(), a.deviceCmd())
	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "debug|info|warn|error")
	cmd.Flags().String("log-file", "", "also write JSON log lines to this file")
}

func addRunFlags(cmd *cobra.Command) {
	modes := make([]string, 0, 4)
	for _, m := range sanitize.Modes() {
		modes = append(modes, string(m))
	}
	cmd.Flags().String("mode", string(sanitize.ModeClear), strings.Join(modes, "|"))
	cmd.Flags().Bool("verify", false, "read the device back after writing and compare every byte")
	cmd.Flags().Bool("verify-skipped", false, "with selective-purge, also verify that skipped regions still read as zero")
	cmd.Flags().String("block-size", "16MiB", "region size, a multiple of 512 bytes")
	addLogFlags(cmd)
}

func (a *app) wipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe --device <path> [--mode clear]",
		Short: "Overwrite a device with a pass plan [DESTRUCTIVE]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadWipeConfig(v)
			if err != nil {
				return err
			}
			return a.runWipe(cfg)
		},
	}
	cmd.Flags().String("device", "", "target device (/dev/sdb, /dev/disk2, \\\\.\\PhysicalDrive1 or a drive number)")
	cmd.Flags().String("volume", "", "mounted volume on the device to lock and dismount first (mount point, E:, or NONE)")
	cmd.Flags().Bool("ui", false, "full-screen progress map")
	addRunFlags(cmd)
	return cmd
}

func (a *app) runWipe(cfg wipeConfig) error {
	console := newMuteWriter(a.errOut)
	log, flush, err := newLogger(cfg.Log, console)
	if err != nil {
		return err
	}
	defer flush()

	plan, err := sanitize.PlanFor(cfg.Mode, rand.Uint64())
	if err != nil {
		return err
	}
	disp := &display{
		enabled:   cfg.UI,
		title:     fmt.Sprintf("ZEROTRACE - %s - %s", cfg.Device, strings.ToUpper(string(cfg.Mode))),
		blockSize: cfg.BlockSize,
		console:   console,
		log:       log,
	}
	defer disp.Close()

	intr := a.interruptible(log, disp.Close, flush)
	defer intr.stop()
	disp.onStop = func() { intr.fire("stop requested from the UI") }

	target := cfg.Device
	if cfg.Volume != "" {
		target += " (volume " + cfg.Volume + ")"
	}
	job := sanitize.Job{
		Target:  cfg.Device,
		Plan:    plan,
		Confirm: a.confirmer([]string{target}, plan, log),
		Open: func() (sanitize.Device, error) {
			dev, err := a.env.open(cfg.Device)
			if err == nil {
				disp.start(dev)
			}
			return dev, err
		},
	}
	if cfg.Volume != "" {
		job.Volume = a.env.lock(cfg.Volume, log)
	}

	res, err := sanitize.Execute(job, sanitize.Options{
		BlockSize:     cfg.BlockSize,
		Verify:        cfg.Verify,
		VerifySkipped: cfg.VerifySkipped,
		EndOfDevice:   isEndOfDevice,
		Logger:        log,
		Observer:      sanitize.Observers{sanitize.NewMilestones(log, sanitize.MilestoneEvery), disp},
		OnState:       disp.SetState,
	})
	disp.Close()
	printSummary(a.out, cfg.Device, plan, res)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errIncomplete
	}
	return nil
}

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify --device <path> [--expect 0x00]",
		Short: "Check that every byte of a device equals one value (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadVerifyConfig(v)
			if err != nil {
				return err
			}
			return a.runVerify(cfg)
		},
	}
	cmd.Flags().String("device", "", "device or image to read")
	cmd.Flags().String("expect", "0x00", "expected byte value")
	cmd.Flags().String("block-size", "16MiB", "read size, a multiple of 512 bytes")
	addLogFlags(cmd)
	return cmd
}

func (a *app) runVerify(cfg verifyConfig) error {
	log, flush, err := newLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	defer flush()
	log = log.With(zap.String("device", cfg.Device))

	dev, err := openReadOnlyDevice(cfg.Device)
	if err != nil {
		return errors.WithHint(
			&sanitize.Error{Kind: sanitize.DeviceOpenFailure, Err: err},
			"raw device access needs root or Administrator")
	}
	defer dev.Close()

	length := int64(-1)
	if s, ok := dev.(sanitize.Sizer); ok {
		if n, lerr := s.Length(); lerr == nil {
			length = n
		} else {
			log.Warn("length query failed, reading until exhaustion", zap.Error(lerr))
		}
	}
	log.Info("verification started", zap.String("expect", fmt.Sprintf("0x%02X", cfg.Expect)), zap.Int64("length", length))

	res := sanitize.NewVerifier(dev, cfg.BlockSize).
		VerifyByte(make([]byte, cfg.BlockSize), cfg.Expect, sanitize.Region{Length: length})
	printVerification(a.out, &res)
	if !res.Success {
		return res.Failure()
	}
	log.Info("verification passed", zap.String("verified", humanize.IBytes(uint64(res.BytesVerified))))
	return nil
}

func (a *app) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch --job <device[:volume]> --job ... [--mode clear]",
		Short: "Run one pass plan over several devices in parallel [DESTRUCTIVE]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadBatchConfig(v)
			if err != nil {
				return err
			}
			return a.runBatch(cfg)
		},
	}
	cmd.Flags().StringArray("job", nil, "DEVICE[:VOLUME], repeatable")
	addRunFlags(cmd)
	return cmd
}

func (a *app) runBatch(cfg batchConfig) error {
	log, flush, err := newLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	defer flush()

	plan, err := sanitize.PlanFor(cfg.Mode, rand.Uint64())
	if err != nil {
		return err
	}
	targets := make([]string, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		targets[i] = j.Device
		if j.Volume != "" {
			targets[i] += " (volume " + j.Volume + ")"
		}
	}
	if err := a.confirmer(targets, plan, log)(); err != nil {
		log.Warn("confirmation rejected, nothing written")
		return err
	}

	intr := a.interruptible(log, flush)
	defer intr.stop()

	results, err := runJobs(cfg.Jobs, plan, sanitize.Options{
		BlockSize:     cfg.BlockSize,
		Verify:        cfg.Verify,
		VerifySkipped: cfg.VerifySkipped,
		EndOfDevice:   isEndOfDevice,
		Logger:        log,
	}, a.env)
	for _, r := range results {
		printSummary(a.out, r.Job.Device, plan, r.Result)
		if r.Err != nil {
			fmt.Fprintf(a.out, "  Error:        %v\n", r.Err)
		}
	}
	return err
}

// confirmer returns the confirmation gate for targets. The prompt always
// reads stdin; there is no flag to bypass it.
func (a *app) confirmer(targets []string, plan sanitize.Plan, log *zap.Logger) func() error {
	return func() error {
		if !term.IsTerminal(int(a.in.Fd())) {
			log.Warn("stdin is not a terminal, reading confirmation from redirected input")
		}
		fmt.Fprintf(a.errOut, "\nWARNING: %s will irreversibly overwrite:\n", plan)
		for _, t := range targets {
			fmt.Fprintf(a.errOut, "  %s\n", t)
		}
		fmt.Fprintf(a.errOut, "Type %s to proceed: ", sanitize.ConfirmToken)
		return sanitize.ReadConfirmation(a.in)
	}
}

// interrupt terminates the process on SIGINT/SIGTERM or a UI stop. Device
// contents are indeterminate afterwards.
type interrupt struct {
	once    sync.Once
	sig     chan os.Signal
	done    chan struct{}
	log     *zap.Logger
	cleanup []func()
	exit    func(int)
}

func (a *app) interruptible(log *zap.Logger, cleanup ...func()) *interrupt {
	i := &interrupt{
		sig:     make(chan os.Signal, 1),
		done:    make(chan struct{}),
		log:     log,
		cleanup: cleanup,
		exit:    a.exit,
	}
	signal.Notify(i.sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-i.sig:
			i.fire("received " + s.String())
		case <-i.done:
		}
	}()
	return i
}

func (i *interrupt) fire(reason string) {
	i.once.Do(func() {
		i.log.Error("run interrupted, device contents are indeterminate", zap.String("reason", reason))
		for _, c := range i.cleanup {
			c()
		}
		i.exit(exitInterrupted)
	})
}

func (i *interrupt) stop() {
	signal.Stop(i.sig)
	close(i.done)
}

// display drives the optional full-screen UI. It starts once the device is
// open, when its length is known.
type display struct {
	enabled   bool
	title     string
	blockSize int
	console   *muteWriter
	log       *zap.Logger
	onStop    func()

	ui      *tui.UI
	tracker *tui.Tracker
	closed  atomic.Bool
}

func (d *display) start(dev sanitize.Device) {
	if !d.enabled || d.ui != nil {
		return
	}
	length := int64(-1)
	if s, ok := dev.(sanitize.Sizer); ok {
		if n, err := s.Length(); err == nil {
			length = n
		}
	}
	ui, err := tui.NewUI()
	if err != nil {
		d.log.Warn("full-screen UI unavailable, continuing with console output", zap.Error(err))
		return
	}
	d.console.Mute(true)
	ui.SetTitle(d.title)
	size := "unknown (walking to exhaustion)"
	if length >= 0 {
		size = humanize.IBytes(uint64(length))
	}
	ui.SetSummaryLines([]string{
		fmt.Sprintf("Size: %s   Block: %s   Regions: %d", size, humanize.IBytes(uint64(d.blockSize)), sanitize.RegionCount(length, d.blockSize)),
		"Press q, Esc or Ctrl-C to abort",
	})
	d.ui = ui
	d.tracker = tui.NewTracker(ui, d.blockSize, length)
	go func() {
		<-ui.Stopped()
		if !d.closed.Load() && d.onStop != nil {
			d.onStop()
		}
	}()
}

func (d *display) Observe(ev sanitize.Event) {
	if d.tracker != nil && !d.closed.Load() {
		d.tracker.Observe(ev)
	}
}

func (d *display) SetState(s sanitize.State) {
	if d.tracker != nil && !d.closed.Load() {
		d.tracker.SetState(s)
	}
}

func (d *display) Close() {
	if d.closed.Swap(true) {
		return
	}
	if d.ui != nil {
		d.ui.Close()
	}
	d.console.Mute(false)
}

func printSummary(w io.Writer, device string, plan sanitize.Plan, res *sanitize.RunResult) {
	if res == nil {
		return
	}
	length := humanize.IBytes(uint64(res.Length))
	if !res.LengthKnown {
		length += " (walked to exhaustion)"
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Device:         %s\n", device)
	fmt.Fprintf(w, "Plan:           %s\n", plan)
	fmt.Fprintf(w, "Length:         %s\n", length)
	fmt.Fprintf(w, "Regions:        %d visited, %d skipped, %d written, %d failed\n",
		res.RegionsVisited, res.RegionsSkipped, res.RegionsWritten, res.RegionsFailed)
	fmt.Fprintf(w, "Bytes written:  %s\n", humanize.IBytes(uint64(res.BytesWritten)))
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  failed region %d+%d: %v\n", f.Region.Offset, f.Region.Length, f.Err)
	}
	if res.Verification != nil {
		printVerification(w, res.Verification)
	}
	result := "SUCCESS"
	if !res.OK() {
		result = "FAILED"
	}
	fmt.Fprintf(w, "Result:         %s\n", result)
}

func printVerification(w io.Writer, v *sanitize.VerificationResult) {
	switch {
	case v.Success:
		fmt.Fprintf(w, "Verification:   passed, %s checked\n", humanize.IBytes(uint64(v.BytesVerified)))
	case v.Err != nil:
		fmt.Fprintf(w, "Verification:   FAILED after %s: %v\n", humanize.IBytes(uint64(v.BytesVerified)), v.Err)
	default:
		fmt.Fprintf(w, "Verification:   FAILED at offset %d: observed 0x%02X, expected 0x%02X\n",
			v.MismatchOffset, v.Observed, v.Expected)
	}
}

func (a *app) deviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device discovery (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List whole-disk devices that can be passed to --device",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := discoverDevices()
			if err != nil {
				return err
			}
			a.printDeviceList(infos, listAll)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include partitions and other non-whole devices")

	var infoPath string
	infoCmd := &cobra.Command{
		Use:   "info --path <mountpoint or device>",
		Short: "Show the device behind a mount point or device path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.printDeviceInfo(strings.TrimSpace(infoPath))
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "mount point (/media/usb) or device path (/dev/sdb1)")
	_ = infoCmd.MarkFlagRequired("path")

	deviceCmd.AddCommand(listCmd, infoCmd)
	return deviceCmd
}

func (a *app) printDeviceList(infos []deviceInfo, all bool) {
	w := a.out
	fmt.Fprintf(w, "OS: %s\n", runtime.GOOS)
	fmt.Fprintln(w, "Read-only listing. Nothing is written.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Whole-disk devices (usable with --device):")
	fmt.Fprintf(w, "  %-22s  %-14s  %-20s  %-10s\n", "Path", "Type", "Serial", "Size")
	found := false
	for _, d := range infos {
		if !d.Compatible {
			continue
		}
		kind, serial, size := deviceDetails(d.Path)
		fmt.Fprintf(w, "  %-22s  %-14s  %-20s  %-10s\n", d.Path, kind, serial, size)
		found = true
	}
	if !found {
		fmt.Fprintln(w, "  <none detected>")
	}
	if all {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Other devices (not whole disks):")
		for _, d := range infos {
			if !d.Compatible {
				fmt.Fprintf(w, "  %s  (%s)\n", d.Path, d.Reason)
			}
		}
	}
	if mounts := listMounts(); len(mounts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Mounted volumes (pass with --volume to lock before wiping):")
		fmt.Fprintf(w, "  %-24s  %-12s  %-22s  %-10s\n", "Mount", "FS", "Device", "Size")
		for _, m := range mounts {
			fmt.Fprintf(w, "  %-24s  %-12s  %-22s  %-10s\n", m.MountPoint, m.FSType, m.Device, humanize.IBytes(uint64(max(m.SizeBytes, 0))))
		}
	}
}

func (a *app) printDeviceInfo(path string) error {
	if path == "" {
		return errors.New("--path is required")
	}
	dev, mnt, err := resolvePathToDevice(path)
	if err != nil {
		return err
	}
	whole := wholeDeviceOf(dev)
	w := a.out
	fmt.Fprintln(w, "Path info")
	fmt.Fprintf(w, "  Input:   %s\n", path)
	fmt.Fprintf(w, "  Device:  %s\n", dev)
	if mnt != "" {
		fmt.Fprintf(w, "  Mounted: %s\n", mnt)
	}
	fmt.Fprintf(w, "  Whole:   %s\n", whole)
	if n, err := probeLength(whole); err == nil {
		fmt.Fprintf(w, "  Size:    %s (%d bytes)\n", humanize.IBytes(uint64(n)), n)
	}
	for _, m := range mountsOf(listMounts(), whole) {
		fmt.Fprintf(w, "  Volume:  %s on %s (%s)\n", m.Device, m.MountPoint, m.FSType)
	}
	return nil
}
