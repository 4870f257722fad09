// Package fmsconfig loads runtime configuration for the field server
// using viper, following the same defaults-then-file-then-env layering
// the rest of this codebase's services use.
package fmsconfig

import (
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/field"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

// Config holds every field-server runtime knob.
type Config struct {
	DSAddress string
	TCPPort   int
	UDPInPort int
	UDPOutPort int

	BindRetryInterval    time.Duration
	FieldTickInterval    time.Duration
	RegistryTickInterval time.Duration

	DefaultStationStatusGood bool

	EventName            string
	TournamentLevel      int
	MatchNumber          int
	PlayNumber           int
	InitialTimeRemaining time.Duration

	DBPath string
}

// Load reads configuration from a file (if provided or found in the
// standard search paths) and environment variables, with viper
// defaults underneath both. An empty path searches the standard
// locations, mirroring this codebase's other services.
func Load(configPath string) Config {
	viper.SetDefault("ds_address", "0.0.0.0")
	viper.SetDefault("tcp_port", proto.TCPPort)
	viper.SetDefault("udp_in_port", proto.UDPInboundPort)
	viper.SetDefault("udp_out_port", proto.UDPOutboundPort)
	viper.SetDefault("bind_retry_interval", "15s")
	viper.SetDefault("field_tick_interval", "250ms")
	viper.SetDefault("registry_tick_interval", "500ms")
	// Resolves the open question of what status a station with no
	// configured expected-IP CIDR reports: defaults to the stricter
	// reading (bad, not good) until an operator configures a CIDR.
	viper.SetDefault("default_station_status_good", false)
	viper.SetDefault("event_name", "")
	viper.SetDefault("tournament_level", int(proto.LevelTest))
	viper.SetDefault("match_number", 0)
	viper.SetDefault("play_number", 1)
	viper.SetDefault("initial_time_remaining", "150s")
	viper.SetDefault("db_path", "data/fms.db")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("data")
		viper.AddConfigPath("$HOME/.nevermore-fms")
		viper.AddConfigPath("/etc/nevermore-fms")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("no config file found, using defaults and environment variables")
		} else {
			log.Printf("error reading config file: %v", err)
		}
	} else {
		log.Printf("using config file: %s", viper.ConfigFileUsed())
	}

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return Config{
		DSAddress:                viper.GetString("ds_address"),
		TCPPort:                  viper.GetInt("tcp_port"),
		UDPInPort:                viper.GetInt("udp_in_port"),
		UDPOutPort:               viper.GetInt("udp_out_port"),
		BindRetryInterval:        viper.GetDuration("bind_retry_interval"),
		FieldTickInterval:        viper.GetDuration("field_tick_interval"),
		RegistryTickInterval:     viper.GetDuration("registry_tick_interval"),
		DefaultStationStatusGood: viper.GetBool("default_station_status_good"),
		EventName:                viper.GetString("event_name"),
		TournamentLevel:          viper.GetInt("tournament_level"),
		MatchNumber:              viper.GetInt("match_number"),
		PlayNumber:               viper.GetInt("play_number"),
		InitialTimeRemaining:     viper.GetDuration("initial_time_remaining"),
		DBPath:                   viper.GetString("db_path"),
	}
}

// ToFieldConfig converts the loaded configuration into the field
// package's Config type.
func (c Config) ToFieldConfig() field.Config {
	return field.Config{
		DSAddress:  net.ParseIP(c.DSAddress),
		TCPPort:    c.TCPPort,
		UDPInPort:  c.UDPInPort,
		UDPOutPort: c.UDPOutPort,

		BindRetryInterval:    c.BindRetryInterval,
		FieldTickInterval:    c.FieldTickInterval,
		RegistryTickInterval: c.RegistryTickInterval,

		DefaultStationStatusGood: c.DefaultStationStatusGood,

		InitialEventName:       c.EventName,
		InitialTournamentLevel: proto.TournamentLevelFromByte(uint8(c.TournamentLevel)),
		InitialMatchNumber:     uint16(c.MatchNumber),
		InitialPlayNumber:      uint8(c.PlayNumber),
		InitialTimeRemaining:   c.InitialTimeRemaining,
	}
}

// SaveExampleConfig writes a commented example configuration file,
// mirroring the literal-YAML-template helper the rest of this
// codebase's services provide for operators.
func SaveExampleConfig(path string) error {
	const example = `# Nevermore FMS field server configuration
ds_address: "0.0.0.0"
tcp_port: 1750
udp_in_port: 1160
udp_out_port: 1121
bind_retry_interval: 15s
field_tick_interval: 250ms
registry_tick_interval: 500ms
default_station_status_good: false
event_name: ""
tournament_level: 0
match_number: 0
play_number: 1
initial_time_remaining: 150s
db_path: data/fms.db
`
	return os.WriteFile(path, []byte(example), 0o644)
}
