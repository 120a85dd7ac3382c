// dump978 is a 978 MHz UAT receiver daemon. It demodulates ADS-B downlink
// frames from an RTL-SDR dongle, a recorded sample file, or stdin, and serves
// the decoded traffic as raw frames, JSON, or an incremental TSV report feed.
//
// Exit codes: 64 signals a configuration or usage problem that a supervisor
// should not retry; 2 signals an uncaught internal error; 1 is an ordinary
// runtime failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zberry/dump978/pkg/config"
	"github.com/zberry/dump978/pkg/demod"
	"github.com/zberry/dump978/pkg/dispatch"
	"github.com/zberry/dump978/pkg/output"
	"github.com/zberry/dump978/pkg/report"
	"github.com/zberry/dump978/pkg/sample"
	"github.com/zberry/dump978/pkg/track"
)

const (
	exitFailure  = 1
	exitInternal = 2
	exitNoRetry  = 64
)

// Version information (set by build flags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// usageError marks configuration problems a supervisor should not retry.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

// flags collects command-line overrides that are merged over the config file.
type flags struct {
	configPath string

	stdin        bool
	file         string
	fileThrottle bool
	sdr          string
	sdrGain      int
	format       string

	rawPorts   []string
	jsonPorts  []string
	rawStdout  bool
	jsonStdout bool

	reportStdout   bool
	reportInterval time.Duration

	verbose     bool
	showVersion bool
}

type application struct {
	cfg *config.Config
	log *logrus.Logger

	hub     *dispatch.Dispatch
	tracker *track.Tracker
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	// Decode and dispatch goroutines isolate their own panics; anything that
	// reaches here is an internal error worth the distinct exit code.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("uncaught error: %v", r)
			os.Exit(exitInternal)
		}
	}()

	var f flags

	rootCmd := &cobra.Command{
		Use:   "dump978",
		Short: "978 MHz UAT receiver and decoder",
		Long: `978 MHz UAT receiver and decoder.

Demodulates UAT ADS-B downlink frames from an RTL-SDR dongle, a recorded
sample file, or stdin, tracks the aircraft they describe, and serves the
traffic over TCP as raw frames or decoded JSON.

Example usage:
  dump978 --sdr 0 --sdr-gain 480 --raw-port 30978 --json-port 30979
  dump978 --file capture.cu8 --file-throttle --json-stdout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Printf("dump978 %s (%s)\n", Version, GitCommit)
				return nil
			}
			return run(cmd, &f, log)
		},
	}

	rootCmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVar(&f.stdin, "stdin", false, "Read samples from stdin")
	rootCmd.Flags().StringVar(&f.file, "file", "", "Read samples from a recorded file")
	rootCmd.Flags().BoolVar(&f.fileThrottle, "file-throttle", false, "Pace file playback to realtime")
	rootCmd.Flags().StringVar(&f.sdr, "sdr", "", "Read samples from an RTL-SDR dongle (index or serial)")
	rootCmd.Flags().Lookup("sdr").NoOptDefVal = "0"
	rootCmd.Flags().IntVar(&f.sdrGain, "sdr-gain", 0, "Tuner gain in tenths of a dB (0 for auto)")
	rootCmd.Flags().StringVar(&f.format, "format", "", "Sample format: CU8, CS8, CS16H, or CF32H")
	rootCmd.Flags().StringArrayVar(&f.rawPorts, "raw-port", nil, "Serve raw frames on [host:]port (repeatable)")
	rootCmd.Flags().StringArrayVar(&f.jsonPorts, "json-port", nil, "Serve decoded JSON on [host:]port (repeatable)")
	rootCmd.Flags().BoolVar(&f.rawStdout, "raw-stdout", false, "Write raw frames to stdout")
	rootCmd.Flags().BoolVar(&f.jsonStdout, "json-stdout", false, "Write decoded JSON to stdout")
	rootCmd.Flags().BoolVar(&f.reportStdout, "report-stdout", false, "Write the incremental TSV report feed to stdout")
	rootCmd.Flags().DurationVar(&f.reportInterval, "report-interval", 0, "Report sweep interval")
	rootCmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.Flags().BoolVar(&f.showVersion, "version", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(exitNoRetry)
		}
		os.Exit(exitFailure)
	}
}

func run(cmd *cobra.Command, f *flags, log *logrus.Logger) error {
	if f.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return usageError{err}
	}

	app := &application{cfg: cfg, log: log}
	return app.start()
}

// loadConfig reads the config file and merges command-line overrides on top.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	sources := 0
	if f.stdin {
		sources++
		cfg.Source.Mode = "stdin"
	}
	if f.file != "" {
		sources++
		cfg.Source.Mode = "file"
		cfg.Source.File = f.file
	}
	if cmd.Flags().Changed("sdr") {
		sources++
		cfg.Source.Mode = "sdr"
		cfg.Source.SDRDevice = f.sdr
	}
	if sources > 1 {
		return nil, fmt.Errorf("--stdin, --file, and --sdr are mutually exclusive")
	}

	if cmd.Flags().Changed("file-throttle") {
		cfg.Source.FileThrottle = f.fileThrottle
	}
	if cmd.Flags().Changed("sdr-gain") {
		cfg.Source.SDRGain = f.sdrGain
	}
	if f.format != "" {
		cfg.Source.Format = f.format
	}
	if cmd.Flags().Changed("raw-port") {
		cfg.Output.RawPorts = f.rawPorts
	}
	if cmd.Flags().Changed("json-port") {
		cfg.Output.JSONPorts = f.jsonPorts
	}
	if cmd.Flags().Changed("raw-stdout") {
		cfg.Output.RawStdout = f.rawStdout
	}
	if cmd.Flags().Changed("json-stdout") {
		cfg.Output.JSONStdout = f.jsonStdout
	}
	if cmd.Flags().Changed("report-stdout") {
		cfg.Report.Stdout = f.reportStdout
	}
	if f.reportInterval > 0 {
		cfg.Report.IntervalMillis = int(f.reportInterval / time.Millisecond)
	}

	if cfg.Source.Mode == "" {
		return nil, fmt.Errorf("no sample source selected (use --stdin, --file, or --sdr)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (app *application) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	format, err := sample.ParseFormat(app.cfg.Source.Format)
	if err != nil {
		return usageError{err}
	}

	src, err := app.buildSource(format)
	if err != nil {
		return usageError{err}
	}

	app.hub = dispatch.New(app.log)
	app.tracker = track.NewTracker(
		time.Duration(app.cfg.Report.TimeoutSeconds)*time.Second,
		track.WallClock, app.log)
	app.hub.AddClient(app.tracker.HandleMessages)

	if app.cfg.Output.RawStdout {
		app.hub.AddClient(output.RawSink(os.Stdout, app.log))
	}
	if app.cfg.Output.JSONStdout {
		app.hub.AddClient(output.JSONSink(os.Stdout, app.log))
	}

	listeners, err := app.buildListeners()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l *output.Listener) {
			defer wg.Done()
			l.Serve(ctx)
		}(l)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runReporter(ctx)
	}()

	// Cancel everything on the first shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		app.log.Infof("received %s, shutting down", sig)
		cancel()
	}()

	app.log.WithFields(logrus.Fields{
		"source": app.cfg.Source.Mode,
		"format": format,
	}).Info("starting UAT receiver")

	receiver := demod.NewReceiver(format, app.hub.Dispatch)
	err = src.Run(ctx, receiver.HandleSamples)

	cancel()
	wg.Wait()

	if err != nil {
		return fmt.Errorf("sample source failed: %w", err)
	}
	app.log.Info("sample source finished")
	return nil
}

func (app *application) buildSource(format sample.Format) (sample.Source, error) {
	switch app.cfg.Source.Mode {
	case "stdin":
		return sample.NewStdinSource(os.Stdin, format, nil), nil
	case "file":
		return sample.NewFileSource(app.cfg.Source.File, format, app.cfg.Source.FileThrottle, nil), nil
	case "sdr":
		return sample.NewSDRSource(app.cfg.Source.SDRDevice, app.cfg.Source.SDRGain, nil, app.log), nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", app.cfg.Source.Mode)
	}
}

func (app *application) buildListeners() ([]*output.Listener, error) {
	var listeners []*output.Listener
	for _, spec := range app.cfg.Output.RawPorts {
		ls, err := output.Listen(spec, app.hub, output.NewRawConnection, app.log.WithField("feed", "raw"))
		if err != nil {
			return nil, fmt.Errorf("raw listener %s: %w", spec, err)
		}
		listeners = append(listeners, ls...)
	}
	for _, spec := range app.cfg.Output.JSONPorts {
		ls, err := output.Listen(spec, app.hub, output.NewJSONConnection, app.log.WithField("feed", "json"))
		if err != nil {
			return nil, fmt.Errorf("json listener %s: %w", spec, err)
		}
		listeners = append(listeners, ls...)
	}
	return listeners, nil
}

// runReporter runs the incremental report feed, or just the tracker purge
// sweep when the feed is disabled.
func (app *application) runReporter(ctx context.Context) {
	var out io.Writer = io.Discard
	if app.cfg.Report.Stdout {
		out = os.Stdout
	}
	r := report.New(report.Config{
		Tracker:  app.tracker,
		Out:      out,
		Interval: time.Duration(app.cfg.Report.IntervalMillis) * time.Millisecond,
		Log:      app.log,
	})
	if app.cfg.Report.Stdout {
		r.Run(ctx)
		return
	}

	// No report consumers; only the purge sweep is needed.
	ticker := time.NewTicker(app.tracker.Timeout() / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Purge()
		}
	}
}
