package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/scanner"
	"github.com/putto11262002/sabaipics-core/session"
)

// appConfig is everything loaded from the ini file, split along the [scanner],
// [session] and [discovery] sections.
type appConfig struct {
	scanner      scanner.Config
	session      session.Config
	spoolRoot    string
	candidateIPs []string
	logLevel     logging.Level
}

func defaultAppConfig() appConfig {
	return appConfig{
		scanner:      scanner.DefaultConfig(),
		session:      session.DefaultConfig("sabaipics-studio"),
		spoolRoot:    ".",
		candidateIPs: defaultCandidateIPs(),
		logLevel:     logging.LevelInfo,
	}
}

// loadConfig reads path with go-ini, falling back to defaultAppConfig for any
// key it does not find (spec §6's enumerated configuration is all optional with
// sensible defaults; nothing here is required to run against a single camera on
// the default hotspot subnet).
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("ptpcore: load config %s: %w", path, err)
	}

	sc := f.Section("scanner")
	cfg.scanner.PerIPTimeout = time.Duration(sc.Key("per_ip_timeout_ms").MustInt(1500)) * time.Millisecond
	cfg.scanner.MaxRetries = sc.Key("max_retries").MustInt(3)
	cfg.scanner.RetryDelay = time.Duration(sc.Key("retry_delay_ms").MustInt(300)) * time.Millisecond
	cfg.scanner.MaxWaves = sc.Key("max_waves").MustInt(3)
	cfg.scanner.WaveDelay = time.Duration(sc.Key("wave_delay_ms").MustInt(1500)) * time.Millisecond
	cfg.scanner.Port = sc.Key("port").MustInt(15740)

	se := f.Section("session")
	cfg.session.FriendlyName = se.Key("friendly_name").MustString(cfg.session.FriendlyName)
	cfg.session.DownloadTimeout = time.Duration(se.Key("command_timeout_s").MustInt(60)) * time.Second
	cfg.session.TransactionReserveBlock = se.Key("transaction_reserve_block").MustInt(32)
	if guidStr := se.Key("client_guid").String(); guidStr != "" {
		if g, err := uuid.Parse(guidStr); err == nil {
			cfg.session.ClientGUID = g
		}
	}

	disc := f.Section("discovery")
	cfg.spoolRoot = disc.Key("spool_root").MustString(cfg.spoolRoot)
	if ranges := disc.Key("candidate_ips").String(); ranges != "" {
		cfg.candidateIPs = splitAndTrim(ranges)
	} else {
		cfg.candidateIPs = defaultCandidateIPs()
	}
	cfg.logLevel = logging.Level(disc.Key("log_level").MustInt(int(logging.LevelInfo)))

	return cfg, nil
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultCandidateIPs enumerates the iOS personal-hotspot subnet spec §6
// names (172.20.10.2..20). No vendor-specific camera-hotspot ranges are
// included; those can only be supplied through the candidate_ips key.
func defaultCandidateIPs() []string {
	var ips []string
	for i := 2; i <= 20; i++ {
		ips = append(ips, fmt.Sprintf("172.20.10.%d", i))
	}
	return ips
}
