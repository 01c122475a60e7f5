// Command ptpcore is a demo CLI wiring Scanner -> Session -> EventSource ->
// Spool end to end against real cameras on the local network: scan a candidate
// IP set, connect to the first camera found, start event monitoring, and log
// every photo detected and downloaded until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/scanner"
	"github.com/putto11262002/sabaipics-core/session"
	"github.com/putto11262002/sabaipics-core/spool"
)

const (
	ok           = 0
	errBadConfig = 102
	errNoCamera  = 105
)

var (
	configFile = flag.String("config", "", "path to an ini config file (optional; defaults apply otherwise)")
	verbosity  = flag.Int("v", 1, "log verbosity: 0 quiet, 1 info, 2 debug")
)

func main() {
	flag.Parse()

	cfg := defaultAppConfig()
	if *configFile != "" {
		loaded, err := loadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ptpcore: %v\n", err)
			os.Exit(errBadConfig)
		}
		cfg = loaded
	}

	logLevel := cfg.logLevel
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "v" {
			logLevel = logging.Level(*verbosity)
		}
	})
	lg := logging.New("[ptpcore] ", logLevel)

	sp := spool.New(cfg.spoolRoot, uuid.New())

	quit := make(chan struct{})
	var quitOnce sync.Once
	stop := func() { quitOnce.Do(func() { close(quit) }) }
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Printf("received signal %s, shutting down...", sig)
		stop()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-quit
		cancel()
	}()

	sc := scanner.New(cfg.scanner, cfg.session, sp, lg.WithPrefix("[scanner] "))
	sc.OnProgress = func(p scanner.ScanProgress) {
		lg.Infof("wave %d: %d/%d probed, found %v", p.Wave, p.Completed, p.Total, p.Found)
	}

	lg.Infof("scanning %d candidate IPs...", len(cfg.candidateIPs))
	found, err := sc.Scan(ctx, cfg.candidateIPs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptpcore: scan failed: %v\n", err)
		os.Exit(errNoCamera)
	}
	if len(found) == 0 {
		fmt.Fprintln(os.Stderr, "ptpcore: no camera found")
		os.Exit(errNoCamera)
	}

	camera := found[0]
	sess := camera.ExtractSession()
	lg.Infof("connected to %q (connection number %#x)", camera.Name, camera.ConnectionNumber)

	sess.SetDelegate(session.Delegate{
		OnConnect: func() {
			lg.Infof("event monitoring started")
		},
		OnDetectPhoto: func(handle uint32, filename, captureTime string, size uint32) {
			lg.Infof("detected %s (handle %#x, %d bytes, captured %s)", filename, handle, size, captureTime)
		},
		OnCompleteDownload: func(handle uint32, data []byte) {
			lg.Infof("downloaded handle %#x: %d bytes", handle, len(data))
		},
		OnSkipRaw: func(filename string) {
			lg.Infof("skipped RAW file %s", filename)
		},
		OnFail: func(err error) {
			lg.Errorf("session error: %v", err)
		},
		OnDisconnect: func() {
			lg.Infof("session disconnected")
			stop()
		},
	})

	if err := sess.StartEventMonitoring(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ptpcore: start event monitoring: %v\n", err)
		os.Exit(errNoCamera)
	}

	// Any camera left unextracted in the pool is disconnected on cleanup; this
	// run only ever uses the first one found.
	sc.Cleanup()

	<-quit
	sess.Disconnect()
	fmt.Println("bye")
	os.Exit(ok)
}
