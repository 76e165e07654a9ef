package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/cxlmemsim/cxlmemsim/sim"
)

var (
	runOpts runOptions // flags of `run`

	topoExpanders int // number of expanders `topology` places
)

// envFlags maps environment variables (also read from .env) onto run flags
// that were not set on the command line.
var envFlags = map[string]string{
	"CXLMEMSIM_CONFIG":       "config",
	"CXLMEMSIM_LOG":          "log",
	"CXLMEMSIM_SEED":         "seed",
	"CXLMEMSIM_DB":           "db",
	"CXLMEMSIM_MONITOR_PORT": "monitor-port",
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "cxlmemsim",
	Short:         "CXL memory topology simulator",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// runCmd replays or synthesizes an access stream through the controller
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a memory-access stream through a CXL topology",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnv(cmd); err != nil {
			return err
		}
		level, err := logrus.ParseLevel(runOpts.logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", runOpts.logLevel, err)
		}
		logrus.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := buildConfig(runOpts, cmd.Flags().Changed)
		if err != nil {
			return err
		}
		return runSimulation(cmd.OutOrStdout(), cfg, runOpts)
	},
}

// topologyCmd checks a description and prints the resulting tree
var topologyCmd = &cobra.Command{
	Use:   "topology DESCRIPTION",
	Short: "Validate a topology description and print the tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topo := sim.NewTopology(sim.DefaultCongestionLatency, nil)
		tmpl := sim.DefaultConfig().Expanders[0]
		for i := 0; i < topoExpanders; i++ {
			topo.InsertEndPoint(sim.NewExpander(tmpl))
		}
		if err := topo.ConstructTopo(args[0]); err != nil {
			return err
		}
		renderTree(cmd.OutOrStdout(), topo)
		return nil
	},
}

// loadEnv reads .env when present and applies envFlags.
func loadEnv(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	for env, flag := range envFlags {
		val, ok := os.LookupEnv(env)
		if !ok || cmd.Flags().Changed(flag) {
			continue
		}
		if err := cmd.Flags().Set(flag, val); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

// Execute runs the CLI root command and the registered exit handlers.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// init sets up CLI flags and subcommands
func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "YAML configuration; flags override its values")
	f.StringVar(&runOpts.topology, "topology", "(1,(2,3))", "Topology description; leaf N is the N-th expander")
	f.StringVar(&runOpts.capacity, "capacity", "0,20,20,20", "Capacities in MiB: local first, then one per expander")
	f.StringVar(&runOpts.latency, "latency", "100,150,100,150,100,150", "Read,write latency pairs in ns, one pair per expander")
	f.StringVar(&runOpts.bandwidth, "bandwidth", "50,50,50,50,50,50", "Read,write bandwidth pairs in GB/s, one pair per expander")
	f.Float64Var(&runOpts.dramLatency, "dramlatency", 110, "DRAM latency of the host platform in ns")
	f.StringVar(&runOpts.mode, "mode", "p", "Allocation granularity: p (page) or c (cacheline)")
	f.IntVar(&runOpts.interval, "interval", 5, "Epoch length in thousands of time units")

	f.StringVar(&runOpts.allocation, "allocation", "interleave", "Allocation policy: interleave or numa")
	f.StringVar(&runOpts.migration, "migration", "heat-aware", "Migration policy: heat-aware or mglru")
	f.StringVar(&runOpts.paging, "paging", "hugepage", "Paging policy: hugepage or fixed")
	f.StringVar(&runOpts.caching, "caching", "fifo", "Caching policy: fifo or frequency")
	f.Uint64Var(&runOpts.hotThreshold, "hot-threshold", sim.DefaultHotThreshold, "Accesses after which an address counts as hot")

	f.StringVar(&runOpts.tracePath, "trace", "", "Access trace CSV (timestamp,tid,phys_addr,virt_addr,index); synthetic when empty")
	f.IntVar(&runOpts.accesses, "accesses", 100000, "Synthetic accesses to generate when no trace is given")
	f.StringVar(&runOpts.pattern, "pattern", "hotset", "Synthetic pattern: hotset or sequential")
	f.Float64Var(&runOpts.hotFraction, "hot-fraction", 0.8, "Share of synthetic accesses hitting the hot set")
	f.Int64Var(&runOpts.seed, "seed", 42, "Seed for synthetic workloads and expander eviction")

	f.StringVar(&runOpts.db, "db", "", "SQLite file to record epochs and migrations into")
	f.Lookup("db").NoOptDefVal = autoDB
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0, "Serve live counters over HTTP on this port (0 disables)")
	f.StringVar(&runOpts.logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	topologyCmd.Flags().IntVar(&topoExpanders, "expanders", 3, "Number of expanders available to the description")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(topologyCmd)
}
