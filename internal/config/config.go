package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	DBPath          string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Fusion parameters.
	ClusterRadiusKm   float64
	FusionWindow      time.Duration
	DedupRadiusKm     float64
	DedupCooldown     time.Duration
	PopulationRecency time.Duration
	FusionWorkers     int
	FusionQueueSize   int
	Quorum            domain.QuorumPolicy

	// Per-device ingest rate limit. Zero RPS disables limiting.
	IngestDeviceRPS   float64
	IngestDeviceBurst int

	// Kafka alert fan-out configuration.
	AlertsEnabled   bool
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Official observatory feed poller.
	FeedEnabled  bool
	FeedURL      string
	FeedInterval time.Duration
	FeedTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fusionWindow, err := parseDurationEnv("FUSION_WINDOW", 30*time.Second)
	if err != nil {
		return nil, err
	}
	dedupCooldown, err := parseDurationEnv("DEDUP_COOLDOWN", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	populationRecency, err := parseDurationEnv("POPULATION_RECENCY", time.Hour)
	if err != nil {
		return nil, err
	}
	feedInterval, err := parseDurationEnv("FEED_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDurationEnv("FEED_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	clusterRadius, err := parseFloatEnv("CLUSTER_RADIUS_KM", 20)
	if err != nil {
		return nil, err
	}
	dedupRadius, err := parseFloatEnv("DEDUP_RADIUS_KM", clusterRadius)
	if err != nil {
		return nil, err
	}
	ingestRPS, err := parseFloatEnv("INGEST_DEVICE_RPS", 10)
	if err != nil {
		return nil, err
	}

	workers, err := parseIntEnv("FUSION_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	queueSize, err := parseIntEnv("FUSION_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	ingestBurst, err := parseIntEnv("INGEST_DEVICE_BURST", 30)
	if err != nil {
		return nil, err
	}

	quorum, err := loadQuorumPolicy()
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	alertsEnabled := len(brokers) > 0
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		alertsEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		DBPath:          envOrDefault("DB_PATH", "fusion.db"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ClusterRadiusKm:   clusterRadius,
		FusionWindow:      fusionWindow,
		DedupRadiusKm:     dedupRadius,
		DedupCooldown:     dedupCooldown,
		PopulationRecency: populationRecency,
		FusionWorkers:     workers,
		FusionQueueSize:   queueSize,
		Quorum:            quorum,

		IngestDeviceRPS:   ingestRPS,
		IngestDeviceBurst: ingestBurst,

		AlertsEnabled:   alertsEnabled,
		KafkaBrokers:    brokers,
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "detected-earthquakes"),

		FeedEnabled:  os.Getenv("FEED_ENABLED") == "true",
		FeedURL:      envOrDefault("FEED_URL", "http://udim.koeri.boun.edu.tr/zeqmap/xmlt/son24saat.xml"),
		FeedInterval: feedInterval,
		FeedTimeout:  feedTimeout,
	}

	if cfg.ClusterRadiusKm <= 0 {
		return nil, errors.New("CLUSTER_RADIUS_KM must be positive")
	}
	if cfg.FusionWindow <= 0 {
		return nil, errors.New("FUSION_WINDOW must be positive")
	}
	if cfg.DedupCooldown <= 0 {
		return nil, errors.New("DEDUP_COOLDOWN must be positive")
	}
	if cfg.FusionWorkers < 1 {
		return nil, errors.New("FUSION_WORKERS must be at least 1")
	}
	if cfg.FusionQueueSize < 1 {
		return nil, errors.New("FUSION_QUEUE_SIZE must be at least 1")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ALERTS_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.FeedEnabled && cfg.FeedURL == "" {
		return nil, errors.New("FEED_ENABLED is true but FEED_URL is empty")
	}

	return cfg, nil
}

// loadQuorumPolicy builds the quorum policy from environment overrides on
// top of the reference defaults, then validates it.
func loadQuorumPolicy() (domain.QuorumPolicy, error) {
	p := domain.DefaultQuorumPolicy()

	if s := os.Getenv("QUORUM_TABLE"); s != "" {
		breakpoints, err := parseQuorumTable(s)
		if err != nil {
			return domain.QuorumPolicy{}, fmt.Errorf("QUORUM_TABLE: %w", err)
		}
		p.Breakpoints = breakpoints
	}

	var err error
	if p.BaseRatio, err = parseFloatEnv("QUORUM_BASE_RATIO", p.BaseRatio); err != nil {
		return domain.QuorumPolicy{}, err
	}
	if p.RealismCeilingG, err = parseFloatEnv("REALISM_CEILING_G", p.RealismCeilingG); err != nil {
		return domain.QuorumPolicy{}, err
	}
	if p.SmallAreaPopulation, err = parseIntEnv("SMALL_AREA_POPULATION", p.SmallAreaPopulation); err != nil {
		return domain.QuorumPolicy{}, err
	}
	if p.MinSignalCount, err = parseIntEnv("MIN_SIGNAL_COUNT", p.MinSignalCount); err != nil {
		return domain.QuorumPolicy{}, err
	}

	if err := p.Validate(); err != nil {
		return domain.QuorumPolicy{}, err
	}
	return p, nil
}

// parseQuorumTable parses "5:0.60,20:0.40,100:0.25" into breakpoints.
func parseQuorumTable(s string) ([]domain.QuorumBreakpoint, error) {
	parts := strings.Split(s, ",")
	breakpoints := make([]domain.QuorumBreakpoint, 0, len(parts))
	for _, part := range parts {
		pop, ratio, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("entry %q is not population:ratio", part)
		}
		p, err := strconv.Atoi(pop)
		if err != nil {
			return nil, fmt.Errorf("population %q: %w", pop, err)
		}
		r, err := strconv.ParseFloat(ratio, 64)
		if err != nil {
			return nil, fmt.Errorf("ratio %q: %w", ratio, err)
		}
		breakpoints = append(breakpoints, domain.QuorumBreakpoint{MaxPopulation: p, Ratio: r})
	}
	return breakpoints, nil
}

// --- env helpers ---

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
