package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/sarchlab/vmkit/datarecording"
	"github.com/sarchlab/vmkit/filesys"
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm/paging"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/monitoring"
	"github.com/sarchlab/vmkit/tracing"
	"github.com/sarchlab/vmkit/vmsim/workload"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envDefaults maps flags to the environment variables that can provide their
// defaults.
var envDefaults = map[string]string{
	"frames":     "VMSIM_FRAMES",
	"swap-pages": "VMSIM_SWAP_PAGES",
	"swap-file":  "VMSIM_SWAP_FILE",
	"processes":  "VMSIM_PROCESSES",
	"pages":      "VMSIM_PAGES",
	"record":     "VMSIM_RECORD",
	"port":       "VMSIM_MONITOR_PORT",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the synthetic workload.",
	Long: `Run starts several processes that load a program, fill a heap ` +
		`larger than physical memory, map a file, grow their stack and ` +
		`fork. Flags not given on the command line fall back to VMSIM_* ` +
		`environment variables, which may come from a .env file.`,
	RunE: runWorkload,
}

func init() {
	addRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(f *pflag.FlagSet) {
	f.Int("frames", 32, "Number of frames in the user pool.")
	f.Uint64("swap-pages", 1024, "Number of pages the swap disk holds.")
	f.String("swap-file", "",
		"Host file used as the swap disk. Swap stays in memory if empty.")
	f.Int("processes", 4, "Number of processes to run concurrently.")
	f.Int("pages", 48, "Number of heap pages each process writes.")
	f.String("record", "",
		"Record every virtual memory event into this SQLite database.")
	f.Bool("trace", false, "Log every virtual memory event.")
	f.Bool("trace-failed", false, "Log failed virtual memory events only.")
	f.Bool("monitor", false, "Serve the live state over HTTP.")
	f.Int("port", 0, "Port of the monitoring server. Random if unset.")
	f.Bool("open", false, "Open the monitoring page in a browser.")
	f.Bool("hold", false,
		"Keep the monitoring server up after the run until interrupted.")
	f.String("env-file", ".env", "File to load VMSIM_* defaults from.")
}

type runOptions struct {
	numFrames    int
	numSwapPages uint64
	swapFile     string
	numProcesses int
	numPages     int
	recordPath   string
	trace        bool
	traceFailed  bool
	monitor      bool
	port         int
	open         bool
	hold         bool
}

// loadEnvDefaults sets the flags that are not given on the command line from
// the environment. A missing env file is not an error.
func loadEnvDefaults(flags *pflag.FlagSet) error {
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return err
	}

	err = godotenv.Load(envFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	for flag, env := range envDefaults {
		value, found := os.LookupEnv(env)
		if !found || flags.Changed(flag) {
			continue
		}

		err := flags.Set(flag, strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}

	return nil
}

func parseRunOptions(flags *pflag.FlagSet) (runOptions, error) {
	var (
		opts runOptions
		errs []error
	)

	get := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	opts.numFrames, err = flags.GetInt("frames")
	get(err)
	opts.numSwapPages, err = flags.GetUint64("swap-pages")
	get(err)
	opts.swapFile, err = flags.GetString("swap-file")
	get(err)
	opts.numProcesses, err = flags.GetInt("processes")
	get(err)
	opts.numPages, err = flags.GetInt("pages")
	get(err)
	opts.recordPath, err = flags.GetString("record")
	get(err)
	opts.trace, err = flags.GetBool("trace")
	get(err)
	opts.traceFailed, err = flags.GetBool("trace-failed")
	get(err)
	opts.monitor, err = flags.GetBool("monitor")
	get(err)
	opts.port, err = flags.GetInt("port")
	get(err)
	opts.open, err = flags.GetBool("open")
	get(err)
	opts.hold, err = flags.GetBool("hold")
	get(err)

	if len(errs) > 0 {
		return opts, errs[0]
	}

	switch {
	case opts.numFrames <= 0:
		return opts, errors.New("--frames must be positive")
	case opts.numSwapPages == 0:
		return opts, errors.New("--swap-pages must be positive")
	case opts.numProcesses <= 0:
		return opts, errors.New("--processes must be positive")
	case opts.numPages < 0:
		return opts, errors.New("--pages must not be negative")
	}

	return opts, nil
}

func createSwapDisk(opts runOptions) (disk.Disk, error) {
	numSectors := opts.numSwapPages * swap.SectorsPerPage

	if opts.swapFile == "" {
		return disk.NewMemDisk("swap", numSectors), nil
	}

	return disk.CreateFileDisk(opts.swapFile, numSectors)
}

func runWorkload(cmd *cobra.Command, _ []string) error {
	err := loadEnvDefaults(cmd.Flags())
	if err != nil {
		return err
	}

	opts, err := parseRunOptions(cmd.Flags())
	if err != nil {
		return err
	}

	swapDisk, err := createSwapDisk(opts)
	if err != nil {
		return err
	}

	if closer, ok := swapDisk.(io.Closer); ok {
		defer closer.Close()
	}

	mgr := paging.MakeBuilder().
		WithNumFrames(opts.numFrames).
		WithSwapDisk(swapDisk).
		Build()

	counter := tracing.NewCountTracer()
	tracing.CollectTrace(mgr, counter)
	flushTraces := attachTracers(mgr, opts)

	runner := workload.NewRunner(mgr, filesys.NewMemFS(), workload.Config{
		NumProcesses: opts.numProcesses,
		NumPages:     opts.numPages,
	})

	var monitor *monitoring.Monitor
	if opts.monitor {
		monitor = startMonitor(mgr, counter, runner, opts)
	}

	res, runErr := runner.Run()
	flushTraces()

	printReport(cmd.OutOrStdout(), res, mgr.Stats(), counter)

	if runErr != nil {
		return runErr
	}

	if monitor != nil && opts.hold {
		waitForInterrupt()
	}

	return nil
}

// attachTracers adds the tracers the options ask for. The returned function
// flushes the recorded events.
func attachTracers(mgr *paging.Manager, opts runOptions) func() {
	if opts.trace || opts.traceFailed {
		logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
		tracing.CollectTrace(mgr,
			tracing.NewLogTracer(logger, !opts.trace))
	}

	if opts.recordPath != "" {
		recorder := datarecording.New(opts.recordPath)
		dbTracer := tracing.NewDBTracer(recorder)
		tracing.CollectTrace(mgr, dbTracer)

		fmt.Fprintf(os.Stderr, "Recording events into %s\n", recorder.Path())

		return dbTracer.Terminate
	}

	return func() {}
}

func startMonitor(
	mgr *paging.Manager,
	counter *tracing.CountTracer,
	runner *workload.Runner,
	opts runOptions,
) *monitoring.Monitor {
	monitor := monitoring.NewMonitor()
	if opts.port != 0 {
		monitor = monitor.WithPortNumber(opts.port)
	}

	monitor.RegisterManager(mgr)
	monitor.RegisterCountTracer(counter)

	bar := monitor.CreateProgressBar("processes", uint64(opts.numProcesses))
	runner.WithProgress(bar)

	url := monitor.StartServer()

	if opts.open {
		err := browser.OpenURL(url)
		if err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	return monitor
}

func waitForInterrupt() {
	fmt.Fprintln(os.Stderr, "Run finished. Press Ctrl-C to stop the monitor.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

func printReport(
	w io.Writer,
	res workload.Result,
	stats paging.Stats,
	counter *tracing.CountTracer,
) {
	fmt.Fprintf(w, "processes:        %d (+%d forks)\n",
		res.NumProcesses, res.NumForks)
	fmt.Fprintf(w, "pages checked:    %d\n", res.NumPagesChecked)
	fmt.Fprintf(w, "frames:           %d (%d free)\n",
		stats.NumFrames, stats.NumFreeFrames)
	fmt.Fprintf(w, "swap slots:       %d (%d used)\n",
		stats.NumSwapSlots, stats.NumUsedSwapSlots)
	fmt.Fprintf(w, "evictions:        %d (%d failed)\n",
		stats.NumEvictions, stats.NumFailedEvictions)

	counts := counter.Counts()
	for _, name := range counter.Names() {
		fmt.Fprintf(w, "%-17s %d\n", name+":", counts[name])
	}
}
