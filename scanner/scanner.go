// Package scanner implements parallel candidate-IP probing for PTP/IP cameras
// (spec §4.4): a wave scheduler that retries transient failures across up to
// max_waves attempts, hands off each successfully probed IP as a prepared,
// not-yet-monitoring Session owned by a DiscoveredCamera.
package scanner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ptperr"
	"github.com/putto11262002/sabaipics-core/session"
	"github.com/putto11262002/sabaipics-core/spool"
	"github.com/putto11262002/sabaipics-core/transport"
)

const ptpipPort = 15740

// ScanProgress is reported after every completed IP probe within a wave (spec §9
// supplemented feature 4: a structured progress callback beyond the bare
// fraction spec.md's §4.4 describes).
type ScanProgress struct {
	Wave      int
	Completed int
	Total     int
	Found     []string
}

// Scanner probes a candidate IP set across waves, producing a pool of
// DiscoveredCameras (spec §4.4).
type Scanner struct {
	cfg        Config
	sessionCfg session.Config
	spool      *spool.Spool
	log        *logging.Logger

	// OnProgress, if set, is called synchronously after each completed probe.
	OnProgress func(ScanProgress)

	mu       sync.Mutex
	pool     []*DiscoveredCamera
	cancel   context.CancelFunc
	scanning bool
}

// New creates a Scanner. sessionCfg supplies the client GUID and friendly name
// used for the Init handshake (spec §4.1) and the per-call timeouts each
// prepared Session inherits; sp may be nil, in which case the prepared Sessions
// deliver completed downloads only through their delegate.
func New(cfg Config, sessionCfg session.Config, sp *spool.Spool, log *logging.Logger) *Scanner {
	return &Scanner{cfg: cfg, sessionCfg: sessionCfg, spool: sp, log: log}
}

// Pool returns the cameras discovered so far that have not been extracted or
// disconnected.
func (sc *Scanner) Pool() []*DiscoveredCamera {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]*DiscoveredCamera, len(sc.pool))
	copy(out, sc.pool)
	return out
}

// Scan runs up to cfg.MaxWaves waves over candidateIPs, each wave probing every
// IP concurrently, stopping early the moment any wave yields a discovery (spec
// §4.4: "finding any camera ends wave iteration early... finding >= 1 camera
// ends the wave loop").
func (sc *Scanner) Scan(ctx context.Context, candidateIPs []string) ([]*DiscoveredCamera, error) {
	ctx, cancel := context.WithCancel(ctx)
	sc.mu.Lock()
	sc.cancel = cancel
	sc.scanning = true
	sc.mu.Unlock()
	defer func() {
		sc.mu.Lock()
		sc.scanning = false
		sc.mu.Unlock()
	}()

	excluded := make(map[string]bool)
	var found []*DiscoveredCamera

	for wave := 1; wave <= sc.cfg.MaxWaves; wave++ {
		if wave > 1 {
			select {
			case <-time.After(sc.cfg.WaveDelay):
			case <-ctx.Done():
				return found, nil
			}
		}

		candidates := make([]string, 0, len(candidateIPs))
		for _, ip := range candidateIPs {
			if !excluded[ip] {
				candidates = append(candidates, ip)
			}
		}
		if len(candidates) == 0 {
			break
		}

		waveCtx, waveCancel := context.WithCancel(ctx)
		results := sc.probeWave(waveCtx, wave, candidates, excluded)
		waveCancel()

		for _, r := range results {
			if r.camera != nil {
				found = append(found, r.camera)
			}
		}

		if len(found) > 0 {
			break
		}
	}

	sc.mu.Lock()
	sc.pool = append(sc.pool, found...)
	sc.mu.Unlock()

	return found, nil
}

type probeResult struct {
	ip     string
	camera *DiscoveredCamera
}

// probeWave runs one wave's probes concurrently, reporting progress as each
// completes and cancelling the remaining probes the instant one succeeds (spec
// §4.4: "finding any camera ends wave iteration early").
func (sc *Scanner) probeWave(ctx context.Context, wave int, candidates []string, excluded map[string]bool) []probeResult {
	ctx, cancelRest := context.WithCancel(ctx)
	defer cancelRest()

	type outcome struct {
		ip           string
		camera       *DiscoveredCamera
		nonRetryable bool
	}

	outcomes := make(chan outcome, len(candidates))
	var wg sync.WaitGroup
	for _, ip := range candidates {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			cam, nonRetryable := sc.probeOne(ctx, ip)
			outcomes <- outcome{ip: ip, camera: cam, nonRetryable: nonRetryable}
		}(ip)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var results []probeResult
	completed := 0
	var foundNames []string
	for o := range outcomes {
		completed++
		if o.nonRetryable {
			excluded[o.ip] = true
		}
		if o.camera != nil {
			foundNames = append(foundNames, o.camera.Name)
			results = append(results, probeResult{ip: o.ip, camera: o.camera})
			cancelRest()
		}
		if sc.OnProgress != nil {
			sc.OnProgress(ScanProgress{Wave: wave, Completed: completed, Total: len(candidates), Found: append([]string(nil), foundNames...)})
		}
	}
	return results
}

// probeOne performs the five-stage probe for a single IP (spec §4.4). The
// returned bool reports whether the failure was a non-retryable dial failure
// (stage 1 or stage 3), so the caller can exclude this IP from subsequent waves.
func (sc *Scanner) probeOne(ctx context.Context, ip string) (*DiscoveredCamera, bool) {
	port := sc.cfg.Port
	if port == 0 {
		port = ptpipPort
	}
	addr := fmt.Sprintf("%s:%d", ip, port)

	// Stage 1: TCP connect, command channel.
	cmdConn, err := transport.DialWithRetry(ctx, "tcp", addr, sc.cfg.PerIPTimeout, sc.cfg.MaxRetries, sc.cfg.RetryDelay)
	if err != nil {
		sc.log.Debugf("scanner: %s stage 1 command dial failed: %v", ip, err)
		return nil, !ptperr.Retryable(err) && ptperr.Is(err, ptperr.KindTransport)
	}

	// Stage 2: Init command handshake.
	initRes, err := initCommandChannel(ctx, cmdConn, sc.sessionCfg.ClientGUID, sc.sessionCfg.FriendlyName, sc.cfg.PerIPTimeout)
	if err != nil {
		sc.log.Debugf("scanner: %s stage 2 command init failed: %v", ip, err)
		cmdConn.Close()
		return nil, false
	}

	// Stage 3: TCP connect, event channel.
	evtConn, err := transport.DialWithRetry(ctx, "tcp", addr, sc.cfg.PerIPTimeout, sc.cfg.MaxRetries, sc.cfg.RetryDelay)
	if err != nil {
		sc.log.Debugf("scanner: %s stage 3 event dial failed: %v", ip, err)
		cmdConn.Close()
		return nil, !ptperr.Retryable(err) && ptperr.Is(err, ptperr.KindTransport)
	}

	// Stage 4: Init event handshake.
	if err := initEventChannel(ctx, evtConn, initRes.connectionNumber, sc.cfg.PerIPTimeout); err != nil {
		sc.log.Debugf("scanner: %s stage 4 event init failed: %v", ip, err)
		cmdConn.Close()
		evtConn.Close()
		return nil, false
	}

	// Stage 5: session preparation, the commit point. From here on cancellation
	// is ignored (spec §4.4: "a working session is too valuable to discard").
	commitCtx := context.Background()
	sess := session.New(sc.sessionCfg, sc.spool, session.Delegate{}, sc.log.WithPrefix(fmt.Sprintf("[%s] ", ip)))
	sessionID := randomSessionID()
	if err := sess.PrepareSession(commitCtx, cmdConn, evtConn, initRes.connectionNumber, initRes.cameraName, sessionID); err != nil {
		sc.log.Errorf("scanner: %s stage 5 session preparation failed: %v", ip, err)
		cmdConn.Close()
		evtConn.Close()
		return nil, false
	}

	return newDiscoveredCamera(initRes.cameraName, ip, initRes.connectionNumber, sess), false
}

func randomSessionID() uint32 {
	id := rand.Uint32()
	if id == 0 {
		id = 1
	}
	return id
}

// StopScan cancels every in-flight probe but leaves already-discovered prepared
// sessions in the pool untouched: the caller owns them (spec §4.4 "stop_scan").
func (sc *Scanner) StopScan() {
	sc.mu.Lock()
	cancel := sc.cancel
	sc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cleanup stops any in-flight scan and disconnects every discovered session,
// clearing the pool (spec §4.4 "cleanup").
func (sc *Scanner) Cleanup() {
	sc.StopScan()
	sc.mu.Lock()
	pool := sc.pool
	sc.pool = nil
	sc.mu.Unlock()
	for _, cam := range pool {
		cam.Disconnect()
	}
}
