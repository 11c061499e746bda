package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	SourcePath string `yaml:"source_path"`
	StorePath  string `yaml:"store_path"`
	StoreGroup string `yaml:"store_group"`
	AllTable   string `yaml:"all_table"`
	HarmTable  string `yaml:"harm_table"`
	OutputPath string `yaml:"output_path"`

	// Harm subset predicate.
	HarmActivity   string `yaml:"harm_activity"`
	HarmExcludeAIC string `yaml:"harm_exclude_aic"`

	// Map document settings.
	MapCenterLat       float64 `yaml:"map_center_lat"`
	MapCenterLon       float64 `yaml:"map_center_lon"`
	MapZoom            int     `yaml:"map_zoom"`
	MapTitle           string  `yaml:"map_title"`
	DrawExportFilename string  `yaml:"draw_export_filename"`

	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Kafka export of the harm subset, disabled when no brokers are set.
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// KafkaEnabled reports whether harm incidents should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	centerLat, err := parseFloat("MAP_CENTER_LAT", "50.90")
	if err != nil {
		return nil, err
	}
	centerLon, err := parseFloat("MAP_CENTER_LON", "-1.40")
	if err != nil {
		return nil, err
	}

	zoom, err := strconv.Atoi(sharedcfg.EnvOrDefault("MAP_ZOOM", "10"))
	if err != nil || zoom < 1 || zoom > 20 {
		return nil, errors.New("invalid MAP_ZOOM: must be an integer between 1 and 20")
	}

	var brokers []string
	if raw := strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		SourcePath: sharedcfg.EnvOrDefault("SOURCE_PATH", "./data/RNLI_Returns_of_Service.geojson"),
		StorePath:  sharedcfg.EnvOrDefault("STORE_PATH", "./data/rnli_data.db"),
		StoreGroup: sharedcfg.EnvOrDefault("STORE_GROUP", "rnli"),
		AllTable:   sharedcfg.EnvOrDefault("ALL_TABLE", "all_data"),
		HarmTable:  sharedcfg.EnvOrDefault("HARM_TABLE", "harm_data"),
		OutputPath: sharedcfg.EnvOrDefault("OUTPUT_PATH", "index.html"),

		HarmActivity:   sharedcfg.EnvOrDefault("HARM_ACTIVITY", "SUSPECTED SELF HARM"),
		HarmExcludeAIC: sharedcfg.EnvOrDefault("HARM_EXCLUDE_AIC", "Hoax and false alarm"),

		MapCenterLat:       centerLat,
		MapCenterLon:       centerLon,
		MapZoom:            zoom,
		MapTitle:           sharedcfg.EnvOrDefault("MAP_TITLE", "Self Harm Map - RNLI Data"),
		DrawExportFilename: sharedcfg.EnvOrDefault("DRAW_EXPORT_FILENAME", "data.geojson"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsTextfile: sharedcfg.EnvOrDefault("METRICS_TEXTFILE", ""),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "harm-incidents"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"SOURCE_PATH", c.SourcePath},
		{"STORE_PATH", c.StorePath},
		{"STORE_GROUP", c.StoreGroup},
		{"ALL_TABLE", c.AllTable},
		{"HARM_TABLE", c.HarmTable},
		{"OUTPUT_PATH", c.OutputPath},
		{"HARM_ACTIVITY", c.HarmActivity},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if c.AllTable == c.HarmTable {
		return errors.New("ALL_TABLE and HARM_TABLE must differ")
	}
	if c.MapCenterLat < -90 || c.MapCenterLat > 90 {
		return errors.New("invalid MAP_CENTER_LAT: must be within [-90, 90]")
	}
	if c.MapCenterLon < -180 || c.MapCenterLon > 180 {
		return errors.New("invalid MAP_CENTER_LON: must be within [-180, 180]")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.New("invalid LOG_FORMAT: must be json or text")
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	return nil
}

func parseFloat(name, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
