package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/groundstation/tmtc-broker/command"
	"github.com/groundstation/tmtc-broker/config"
	"github.com/groundstation/tmtc-broker/fop1"
	"github.com/groundstation/tmtc-broker/handler"
	"github.com/groundstation/tmtc-broker/loader"
	"github.com/groundstation/tmtc-broker/pipeline"
	"github.com/groundstation/tmtc-broker/recorder"
	"github.com/groundstation/tmtc-broker/registry"
	"github.com/groundstation/tmtc-broker/service"
	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/telemetry"
	"github.com/groundstation/tmtc-broker/transport"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	brokerAddr  = flag.String("broker-addr", "", "Address the RPC surface would bind, reserved for a future transport binding")
	brokerPort  = flag.Int("broker-port", 8900, "Port the RPC surface would bind, reserved for a future transport binding")
	kbleAddr    = flag.String("kble-addr", "127.0.0.1", "Address of the ground station KBLE radio link bridge")
	kblePort    = flag.Int("kble-port", 8910, "Port of the ground station KBLE radio link bridge")
	tlmCmdDB    = flag.String("tlmcmddb", "", "Path to the telemetry/command database document")
	satConfig   = flag.String("satconfig", "", "Path to the satellite configuration document")
	recorderOut = flag.String("recorder-endpoint", "", "Path to append newline-delimited TCO/TMIV records to; empty disables recording")
	vcid        = flag.Uint("vcid", 0, "Virtual channel ID this broker exchanges commands and telemetry on")
	promPort    = flag.String("prom", ":9090", "Prometheus metrics export address and port")

	ctx, cancel = context.WithCancel(context.Background())
)

// aosTrailerLen is the byte length of the per-VC AOS transfer frame
// trailer this ground segment expects: a bare 4-byte CLCW, with no
// OCF identifier byte or frame error control field in the trailer.
const aosTrailerLen = 4

// fopUpdateInterval matches spec.md §5's "update loop ticks once per
// second" cancellation/timeout guarantee.
const fopUpdateInterval = 1 * time.Second

// statusLogInterval paces the periodic FOP-1 status log, independent
// of the 1Hz retransmit tick.
const statusLogInterval = 30 * time.Second

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	rtx.Must(requireFlag("tlmcmddb", *tlmCmdDB), "missing required flag")
	rtx.Must(requireFlag("satconfig", *satConfig), "missing required flag")

	cfg, err := config.Load(*satConfig)
	rtx.Must(err, "Could not load satellite configuration from %s", *satConfig)

	cmdDefs, tlmDefs, err := loader.Load(*tlmCmdDB)
	rtx.Must(err, "Could not load telemetry/command database from %s", *tlmCmdDB)

	commandReg, err := registry.NewCommandRegistry(cmdDefs, cfg.CmdApidMap, cfg.CmdPrefixMap)
	rtx.Must(err, "Could not build command registry")
	commandRef := registry.NewCommandRegistryRef(commandReg)

	telemetryReg, err := registry.NewTelemetryRegistry(tlmDefs, config.TelemetryApidsByComponent(cfg), cfg.TlmChannelMap)
	rtx.Must(err, "Could not build telemetry registry")
	telemetryRef := registry.NewTelemetryRegistryRef(telemetryReg)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	kble, err := transport.DialKble(ctx, fmt.Sprintf("%s:%d", *kbleAddr, *kblePort))
	rtx.Must(err, "Could not dial KBLE bridge at %s:%d", *kbleAddr, *kblePort)
	defer kble.Close()

	rec := recorder.New(recorderSink())
	onTmivRecordError := func(err error) {
		log.Printf("recorder: dropping telemetry record: %v", err)
	}
	recordHook := recorder.NewRecordHook(rec, onTmivRecordError)

	fop := fop1.New()

	uplinkService := pipeline.NewUplinkService(cfg.TCSCID, uint8(*vcid), commandRef, kble)
	adCommandService := pipeline.NewAdCommandService(cfg.TCSCID, uint8(*vcid), commandRef, fop, kble)

	commandSchemaSetRef := tcotmiv.NewCommandSchemaSetRef(tcotmiv.BuildCommandSchemaSet(commandRef))
	commandSanitize := command.NewSanitizeHook(commandSchemaSetRef)

	uplinkHandle := handler.NewBuilder[tcotmiv.Tco, *struct{}]().
		BeforeHook(commandSanitize).
		BeforeHook(recordHook.TcoHook()).
		Build(uplinkService)
	adUplinkHandle := handler.NewBuilder[tcotmiv.Tco, *pipeline.AdResult]().
		BeforeHook(commandSanitize).
		BeforeHook(recordHook.TcoHook()).
		Build(adCommandService)

	tmivBus := telemetry.NewBus(16)
	lastValues := telemetry.NewLastTmivStore(telemetryRef.HasSchema)
	telemetrySanitize := telemetry.NewSanitizeHook(telemetryRef)
	storeLastTmiv := telemetry.NewStoreLastTmivHook(lastValues)

	tlmHandle := handler.NewBuilder[*tcotmiv.Tmiv, struct{}]().
		BeforeHook(telemetrySanitize).
		BeforeHook(storeLastTmiv).
		BeforeHook(recordHook.TmivHook()).
		Build(tmivBus)

	svc := service.New(cfg.TCSCID, uint8(*vcid), uplinkHandle, adUplinkHandle, fop, kble,
		tmivBus, lastValues, commandRef, telemetryRef)

	reporter := pipeline.NewTelemetryReporter(cfg.AOSSCID, aosTrailerLen, telemetryRef, kble, fop)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := reporter.Run(ctx, tlmHandle); err != nil && ctx.Err() == nil {
			log.Printf("pipeline: telemetry reporter terminated: %v", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		adCommandService.RunRetransmitLoop(ctx, fopUpdateInterval)
	}()
	go func() {
		defer wg.Done()
		logFopStatusLoop(ctx, svc)
	}()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		defer wg.Done()
		reloadOnSighup(ctx, hupCh, commandRef, telemetryRef, commandSchemaSetRef)
	}()

	log.Printf("tmtc-broker: RPC surface reserved at %s:%d (no transport bound); dialed KBLE at %s:%d on vcid %d",
		*brokerAddr, *brokerPort, *kbleAddr, *kblePort, *vcid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("tmtc-broker: received signal %s, shutting down", sig)
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
}

// reloadOnSighup re-reads the telemetry/command database and satellite
// configuration documents from disk on every SIGHUP and swaps freshly
// built registries into commandRef/telemetryRef, logging what changed
// (registry.ReloadCommandRegistry/ReloadTelemetryRegistry diff the new
// schema map against the old one with go-test/deep). The rebuilt
// command schema set is swapped into schemaSetRef too, so
// command.SanitizeHook validates against the reloaded schemas on the
// very next PostCommand/PostAdCommand. A reload that fails to parse or
// build is logged and skipped; the broker keeps running on the
// previous registries, matching spec.md §7's "configuration load
// failure at startup" being the only fatal case — a failed *reload* is
// not fatal.
func reloadOnSighup(ctx context.Context, hupCh <-chan os.Signal, commandRef *registry.CommandRegistryRef, telemetryRef *registry.TelemetryRegistryRef, schemaSetRef *tcotmiv.CommandSchemaSetRef) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			log.Printf("tmtc-broker: received SIGHUP, reloading %s and %s", *tlmCmdDB, *satConfig)
			if err := reloadRegistries(commandRef, telemetryRef, schemaSetRef); err != nil {
				log.Printf("tmtc-broker: reload failed, keeping previous registries: %v", err)
			}
		}
	}
}

func reloadRegistries(commandRef *registry.CommandRegistryRef, telemetryRef *registry.TelemetryRegistryRef, schemaSetRef *tcotmiv.CommandSchemaSetRef) error {
	cfg, err := config.Load(*satConfig)
	if err != nil {
		return fmt.Errorf("loading satellite configuration: %w", err)
	}
	cmdDefs, tlmDefs, err := loader.Load(*tlmCmdDB)
	if err != nil {
		return fmt.Errorf("loading telemetry/command database: %w", err)
	}

	nextCommandReg, err := registry.ReloadCommandRegistry(commandRef.Load(), cmdDefs, cfg.CmdApidMap, cfg.CmdPrefixMap)
	if err != nil {
		return fmt.Errorf("rebuilding command registry: %w", err)
	}
	nextTelemetryReg, err := registry.ReloadTelemetryRegistry(telemetryRef.Load(), tlmDefs, config.TelemetryApidsByComponent(cfg), cfg.TlmChannelMap)
	if err != nil {
		return fmt.Errorf("rebuilding telemetry registry: %w", err)
	}

	commandRef.Store(nextCommandReg)
	telemetryRef.Store(nextTelemetryReg)
	schemaSetRef.Store(tcotmiv.BuildCommandSchemaSet(commandRef))
	return nil
}

// requireFlag returns an error naming name if value is empty.
func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

// recorderSink opens the recorder-endpoint flag's target for append,
// or returns a sink that discards everything if the flag was left
// unset, matching spec.md §7's "Recorder failure — logged; the
// telemetry/command continues through the rest of the pipeline"
// posture for an unconfigured recorder too.
func recorderSink() io.Writer {
	if *recorderOut == "" {
		return io.Discard
	}
	f, err := os.OpenFile(*recorderOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	rtx.Must(err, "Could not open recorder endpoint %s", *recorderOut)
	return f
}

// logFopStatusLoop periodically logs FOP-1's status, giving operators
// visibility into lockout/wait/retransmit state without a dedicated
// status RPC client.
func logFopStatusLoop(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := svc.GetFopStatus()
			nextFSN := "n/a"
			if st.NextFSN != nil {
				nextFSN = fmt.Sprintf("%d", *st.NextFSN)
			}
			log.Printf("fop1: state=%v received_clcw=%v lockout=%v wait=%v retransmit=%v next_expected_fsn=%d next_fsn=%s",
				st.State, st.ReceivedCLCW, st.Lockout, st.Wait, st.Retransmit, st.NextExpectedFSN, nextFSN)
		}
	}
}
