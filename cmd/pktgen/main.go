package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jihwankim/pktgen/internal/config"
	"github.com/jihwankim/pktgen/internal/control"
	"github.com/jihwankim/pktgen/internal/generator"
	"github.com/jihwankim/pktgen/internal/logging"
	"github.com/jihwankim/pktgen/internal/nic"
	"github.com/jihwankim/pktgen/internal/stats"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "pktgen",
	Short:   "High-rate multi-core UDP/IPv4 packet generator",
	Long:    `pktgen drives a device-under-test at a target line rate with a controlled flow population, distribution, and churn rate.`,
	Version: version,
	RunE:    run,

	// main prints the returned error as the single failure line.
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfigFile  string
	flagTest        bool
	flagTotalFlows  uint32
	flagPktSize     int
	flagTX          int
	flagRX          int
	flagTXCores     int
	flagUnique      bool
	flagSeed        uint64
	flagWarmupMark  bool
	flagDumpFlows   bool
	flagKVSMode     bool
	flagKVSGetRatio float64
	flagDist        string
	flagZipfParam   float64
	flagLogLevel    string
	flagLogFormat   string
	flagMetricsAddr string
)

func init() {
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "", "YAML config file overriding defaults")
	rootCmd.Flags().BoolVar(&flagTest, "test", false, "dry-run: build flows/sequence against a fake NIC, don't send")
	rootCmd.Flags().Uint32Var(&flagTotalFlows, "total-flows", 0, "number of flows in the population")
	rootCmd.Flags().IntVar(&flagPktSize, "pkt-size", 0, "frame size in bytes, including CRC")
	rootCmd.Flags().IntVar(&flagTX, "tx", -1, "TX port index")
	rootCmd.Flags().IntVar(&flagRX, "rx", -1, "RX port index")
	rootCmd.Flags().IntVar(&flagTXCores, "tx-cores", 0, "number of TX worker cores")
	rootCmd.Flags().BoolVar(&flagUnique, "unique-flows", false, "require pairwise-distinct flows at generation time")
	rootCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "PRNG seed; 0 derives from wall-clock time")
	rootCmd.Flags().BoolVar(&flagWarmupMark, "mark-warmup-packets", false, "rewrite IPv4 proto during the warmup window")
	rootCmd.Flags().BoolVar(&flagDumpFlows, "dump-flows-to-file", false, "write flows.pcap before launching workers")
	rootCmd.Flags().BoolVar(&flagKVSMode, "kvs-mode", false, "carry a packed KVS request header in each packet")
	rootCmd.Flags().Float64Var(&flagKVSGetRatio, "kvs-get-ratio", -1, "GET fraction in [0,1] of the per-flow KVS op plan")
	rootCmd.Flags().StringVar(&flagDist, "dist", "", "flow-index distribution: uniform or zipf")
	rootCmd.Flags().Float64Var(&flagZipfParam, "zipf-param", -1, "Zipf skew parameter (>= 0)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagLogFormat, "log-format", "", "text or json")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if flagConfigFile != "" {
		loaded, err := config.Load(flagConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg, cmd)

	log := logging.New(logging.Config{
		Level:  logging.Level(cfg.Logging.Level),
		Format: logging.Format(cfg.Logging.Format),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	var ports generator.Ports
	if flagTest || cfg.TestMode {
		ports = generator.Ports{TX: nic.NewFake(), RX: nic.NewFake()}
	} else {
		txPort, rxPort, err := openRawPorts(cfg)
		if err != nil {
			return err
		}
		defer txPort.Close()
		defer rxPort.Close()
		ports = generator.Ports{TX: txPort, RX: rxPort}
	}

	gen, err := generator.New(cfg, log, ports)
	if err != nil {
		return fmt.Errorf("startup validation failed: %w", err)
	}

	if err := gen.DumpPCAP(); err != nil {
		return fmt.Errorf("pcap dump failed: %w", err)
	}

	seqRes := gen.BuildSequence()
	log.Info("flow-index sequence built", "kind", seqRes.Kind, "covered", seqRes.Covered, "seq_len", len(seqRes.Sequence))

	reg := prometheus.NewRegistry()
	txCollector := stats.NewCollector(reg, ports.TX, "tx")
	rxCollector := stats.NewCollector(reg, ports.RX, "rx")
	lossGauge := stats.NewLossGauge(reg, ports.TX, ports.RX)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", stats.Handler(reg))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server exited", "err", err.Error())
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}
	go sampleLoop(ctx, txCollector, rxCollector, lossGauge)

	gen.Launch(ctx, seqRes.Sequence)

	// Workers launch parked (running=false, rate 0) and wait until the
	// control surface has issued both "start" and a nonzero "rate", same as
	// the interactive cmdline the original drops into once ports and
	// workers are up.
	reader := control.NewReader(gen.Surface, os.Stdin, os.Stdout)
	go func() {
		if err := reader.Run(); err != nil {
			log.Warn("control reader exited", "err", err.Error())
		}
	}()

	<-ctx.Done()
	gen.Stop()
	log.Info("shutdown complete", "total_tx", gen.TotalTX())
	return nil
}

func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("test") {
		cfg.TestMode = flagTest
	}
	if flags.Changed("total-flows") {
		cfg.TotalFlows = flagTotalFlows
	}
	if flags.Changed("pkt-size") {
		cfg.PktSize = flagPktSize
	}
	if flags.Changed("tx") {
		cfg.TXPort = flagTX
	}
	if flags.Changed("rx") {
		cfg.RXPort = flagRX
	}
	if flags.Changed("tx-cores") {
		cfg.TXCores = flagTXCores
	}
	if flags.Changed("unique-flows") {
		cfg.UniqueFlows = flagUnique
	}
	if flags.Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flags.Changed("mark-warmup-packets") {
		cfg.MarkWarmupPackets = flagWarmupMark
	}
	if flags.Changed("dump-flows-to-file") {
		cfg.DumpFlowsToFile = flagDumpFlows
	}
	if flags.Changed("kvs-mode") {
		cfg.KVSMode = flagKVSMode
	}
	if flags.Changed("kvs-get-ratio") {
		cfg.KVSGetRatio = flagKVSGetRatio
	}
	if flags.Changed("dist") {
		cfg.Dist = config.DistKind(flagDist)
	}
	if flags.Changed("zipf-param") {
		cfg.ZipfParam = flagZipfParam
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = flagLogFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}
}
