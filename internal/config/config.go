// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Screen() ScreenConfig
	OCR() OCRConfig
	Input() InputConfig
	Regions() map[string][]float64
	Sizes() map[string][]int
	Scanner() ScannerConfig
	Quantity() QuantityConfig
	Mission() MissionConfig
	WingMining() WingMiningConfig
	Feed() FeedConfig
	Journal() JournalConfig
	Navigation() NavigationConfig
	Station() StationConfig

	// Setters used by CLI flag overrides.
	SetOCREngine(engine string)
	SetWingMiningStateFile(path string)
	SetWingMiningTickInterval(d time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	ScreenCfg     ScreenConfig         `mapstructure:"screen" yaml:"screen"`
	OCRCfg        OCRConfig            `mapstructure:"ocr" yaml:"ocr"`
	InputCfg      InputConfig          `mapstructure:"input" yaml:"input"`
	RegionsCfg    map[string][]float64 `mapstructure:"regions" yaml:"regions"`
	SizesCfg      map[string][]int     `mapstructure:"sizes" yaml:"sizes"`
	ScannerCfg    ScannerConfig        `mapstructure:"scanner" yaml:"scanner"`
	QuantityCfg   QuantityConfig       `mapstructure:"quantity" yaml:"quantity"`
	MissionCfg    MissionConfig        `mapstructure:"mission" yaml:"mission"`
	WingMiningCfg WingMiningConfig     `mapstructure:"wing_mining" yaml:"wing_mining"`
	FeedCfg       FeedConfig           `mapstructure:"feed" yaml:"feed"`
	JournalCfg    JournalConfig        `mapstructure:"journal" yaml:"journal"`
	NavigationCfg NavigationConfig     `mapstructure:"navigation" yaml:"navigation"`
	StationCfg    StationConfig        `mapstructure:"station" yaml:"station"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig          { return c.LoggerCfg }
func (c *Config) Screen() ScreenConfig          { return c.ScreenCfg }
func (c *Config) OCR() OCRConfig                { return c.OCRCfg }
func (c *Config) Input() InputConfig            { return c.InputCfg }
func (c *Config) Regions() map[string][]float64 { return c.RegionsCfg }
func (c *Config) Sizes() map[string][]int       { return c.SizesCfg }
func (c *Config) Scanner() ScannerConfig        { return c.ScannerCfg }
func (c *Config) Quantity() QuantityConfig      { return c.QuantityCfg }
func (c *Config) Mission() MissionConfig        { return c.MissionCfg }
func (c *Config) WingMining() WingMiningConfig  { return c.WingMiningCfg }
func (c *Config) Feed() FeedConfig              { return c.FeedCfg }
func (c *Config) Journal() JournalConfig        { return c.JournalCfg }
func (c *Config) Navigation() NavigationConfig  { return c.NavigationCfg }
func (c *Config) Station() StationConfig        { return c.StationCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetOCREngine(engine string)      { c.OCRCfg.Engine = engine }
func (c *Config) SetWingMiningStateFile(p string) { c.WingMiningCfg.StateFile = p }
func (c *Config) SetWingMiningTickInterval(d time.Duration) {
	c.WingMiningCfg.TickInterval = d
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScreenConfig identifies the game window and the resolution the element
// sizes were measured at.
type ScreenConfig struct {
	// ProcessName locates the game process; WindowTitle picks its main window.
	ProcessName     string `mapstructure:"process_name" yaml:"process_name"`
	WindowTitle     string `mapstructure:"window_title" yaml:"window_title"`
	ReferenceWidth  int    `mapstructure:"reference_width" yaml:"reference_width"`
	ReferenceHeight int    `mapstructure:"reference_height" yaml:"reference_height"`
}

// OCRConfig selects and tunes the text recognition backend.
type OCRConfig struct {
	// Engine is either "tesseract" (local) or "remote" (HTTP OCR server).
	Engine    string        `mapstructure:"engine" yaml:"engine"`
	Language  string        `mapstructure:"language" yaml:"language"`
	ServerURL string        `mapstructure:"server_url" yaml:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Whitelist restricts the tesseract character set. Empty means unrestricted.
	Whitelist string `mapstructure:"whitelist" yaml:"whitelist"`
}

// InputConfig maps UI commands to keys and paces the key stream.
type InputConfig struct {
	Bindings      map[string]string `mapstructure:"bindings" yaml:"bindings"`
	KeysPerSecond float64           `mapstructure:"keys_per_second" yaml:"keys_per_second"`
	Burst         int               `mapstructure:"burst" yaml:"burst"`
	TapHold       time.Duration     `mapstructure:"tap_hold" yaml:"tap_hold"`
}

// ScannerConfig holds the list-scanning tunables.
type ScannerConfig struct {
	SeekTimeout     time.Duration `mapstructure:"seek_timeout" yaml:"seek_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StepDelay       time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	MaxIterations   int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	EndOfListMisses int           `mapstructure:"end_of_list_misses" yaml:"end_of_list_misses"`
}

// QuantityConfig holds the stepper control loop tunables.
type QuantityConfig struct {
	ResetTimeout   time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	MaximumHold    time.Duration `mapstructure:"maximum_hold" yaml:"maximum_hold"`
	MaxCorrections int           `mapstructure:"max_corrections" yaml:"max_corrections"`
}

// CommodityRange is the plausible tonnage window for one commodity.
type CommodityRange struct {
	Name string `mapstructure:"name" yaml:"name"`
	Min  int    `mapstructure:"min" yaml:"min"`
	Max  int    `mapstructure:"max" yaml:"max"`
}

// MissionConfig holds the mission board filters.
type MissionConfig struct {
	NamePatterns       []string         `mapstructure:"name_patterns" yaml:"name_patterns"`
	ExclusionPatterns  []string         `mapstructure:"exclusion_patterns" yaml:"exclusion_patterns"`
	Commodities        []CommodityRange `mapstructure:"commodities" yaml:"commodities"`
	MinReward          int64            `mapstructure:"min_reward" yaml:"min_reward"`
	PrefixThreshold    float64          `mapstructure:"prefix_threshold" yaml:"prefix_threshold"`
	CommodityThreshold float64          `mapstructure:"commodity_threshold" yaml:"commodity_threshold"`
	TextThreshold      float64          `mapstructure:"text_threshold" yaml:"text_threshold"`
	AcceptEventTimeout time.Duration    `mapstructure:"accept_event_timeout" yaml:"accept_event_timeout"`
	ScreenTimeout      time.Duration    `mapstructure:"screen_timeout" yaml:"screen_timeout"`
	ScreenPollInterval time.Duration    `mapstructure:"screen_poll_interval" yaml:"screen_poll_interval"`
}

// WingMiningConfig holds the orchestrator settings.
type WingMiningConfig struct {
	StateFile      string        `mapstructure:"state_file" yaml:"state_file"`
	SettingsFile   string        `mapstructure:"settings_file" yaml:"settings_file"`
	TargetMissions int           `mapstructure:"target_missions" yaml:"target_missions"`
	Cooldown       time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	CargoCapacity  int           `mapstructure:"cargo_capacity" yaml:"cargo_capacity"`
}

// FeedConfig configures the carrier stock snapshot and its ingestion.
type FeedConfig struct {
	SnapshotPath   string        `mapstructure:"snapshot_path" yaml:"snapshot_path"`
	IngestInterval time.Duration `mapstructure:"ingest_interval" yaml:"ingest_interval"`
	// MaxNameDistance bounds the levenshtein distance for commodity canonicalization.
	MaxNameDistance int `mapstructure:"max_name_distance" yaml:"max_name_distance"`
	// WindowProcess is the chat client whose window is captured by the ingester.
	WindowProcess string `mapstructure:"window_process" yaml:"window_process"`
	// StationAliases maps a feed station key to the header spellings that
	// introduce its section in the chat channel.
	StationAliases map[string][]string `mapstructure:"station_aliases" yaml:"station_aliases"`
	// OtherHeaders end the current section without starting a tracked one.
	OtherHeaders []string `mapstructure:"other_headers" yaml:"other_headers"`
}

// JournalConfig points at the game's telemetry journal directory.
type JournalConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Pattern   string `mapstructure:"pattern" yaml:"pattern"`
}

// NavigationConfig configures the external autopilot service.
type NavigationConfig struct {
	AutopilotURL  string        `mapstructure:"autopilot_url" yaml:"autopilot_url"`
	TravelTimeout time.Duration `mapstructure:"travel_timeout" yaml:"travel_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// RequestTimeout applies to each HTTP call to the autopilot.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// StationConfig holds the on-screen labels and pacing of the station menus.
type StationConfig struct {
	ConnectedToLabel  string        `mapstructure:"connected_to_label" yaml:"connected_to_label"`
	MissionBoardLabel string        `mapstructure:"mission_board_label" yaml:"mission_board_label"`
	DepotTabLabel     string        `mapstructure:"depot_tab_label" yaml:"depot_tab_label"`
	MenuDelay         time.Duration `mapstructure:"menu_delay" yaml:"menu_delay"`
	MarketLoadDelay   time.Duration `mapstructure:"market_load_delay" yaml:"market_load_delay"`
	AcceptDelay       time.Duration `mapstructure:"accept_delay" yaml:"accept_delay"`
	PanelTimeout      time.Duration `mapstructure:"panel_timeout" yaml:"panel_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wingminer")
	v.SetDefault("logger.log_file", "wingminer.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 2)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Screen --
	v.SetDefault("screen.process_name", "EliteDangerous64")
	v.SetDefault("screen.window_title", "Elite - Dangerous (CLIENT)")
	v.SetDefault("screen.reference_width", 1920)
	v.SetDefault("screen.reference_height", 1080)

	// -- OCR --
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.server_url", "http://127.0.0.1:8000")
	v.SetDefault("ocr.timeout", "10s")

	// -- Input --
	v.SetDefault("input.bindings", map[string]interface{}{
		"ui_up":     "w",
		"ui_down":   "s",
		"ui_left":   "a",
		"ui_right":  "d",
		"ui_select": "space",
		"ui_back":   "backspace",
	})
	v.SetDefault("input.keys_per_second", 20.0)
	v.SetDefault("input.burst", 1)
	v.SetDefault("input.tap_hold", "50ms")

	// -- Regions (fractions of the client area: left, top, right, bottom) --
	v.SetDefault("regions", map[string]interface{}{
		"missions_list":        []float64{0.06, 0.25, 0.48, 0.8},
		"mission_loaded":       []float64{0.06, 0.25, 0.48, 0.35},
		"mission_board_header": []float64{0.4, 0.1, 0.6, 0.2},
		"mission_depot_tab":    []float64{0.6, 0.15, 0.8, 0.2},
		"commodities_list":     []float64{0.2, 0.2, 0.8, 0.9},
		"commodity_quantity":   []float64{0.4, 0.5, 0.6, 0.6},
		"connected_to":         []float64{0.0, 0.0, 0.3, 0.3},
		"carrier_feed":         []float64{0.0, 0.0, 1.0, 1.0},
	})

	// -- Minimum selected-element sizes at the reference resolution --
	v.SetDefault("sizes", map[string]interface{}{
		"mission_item":   []int{100, 15},
		"commodity_item": []int{100, 15},
	})

	// -- Scanner --
	v.SetDefault("scanner.seek_timeout", "10s")
	v.SetDefault("scanner.poll_interval", "500ms")
	v.SetDefault("scanner.step_delay", "200ms")
	v.SetDefault("scanner.max_iterations", 100)
	v.SetDefault("scanner.end_of_list_misses", 2)

	// -- Quantity --
	v.SetDefault("quantity.reset_timeout", "4s")
	v.SetDefault("quantity.poll_interval", "100ms")
	v.SetDefault("quantity.settle_delay", "500ms")
	v.SetDefault("quantity.maximum_hold", "4s")
	v.SetDefault("quantity.max_corrections", 10)

	// -- Mission --
	v.SetDefault("mission.name_patterns", []string{"Mine", "Mining rush for", "Blast out"})
	v.SetDefault("mission.exclusion_patterns", []string{"Bring us..", "We need...", "Industry Needs..", "Source and return.."})
	v.SetDefault("mission.commodities", []map[string]interface{}{
		{"name": "Gold", "min": 150, "max": 600},
		{"name": "Silver", "min": 300, "max": 705},
		{"name": "Bertrandite", "min": 600, "max": 1000},
		{"name": "Indite", "min": 650, "max": 1200},
	})
	v.SetDefault("mission.min_reward", 40000000)
	v.SetDefault("mission.prefix_threshold", 0.8)
	v.SetDefault("mission.commodity_threshold", 0.7)
	v.SetDefault("mission.text_threshold", 0.6)
	v.SetDefault("mission.accept_event_timeout", "10s")
	v.SetDefault("mission.screen_timeout", "30s")
	v.SetDefault("mission.screen_poll_interval", "250ms")

	// -- Wing Mining --
	v.SetDefault("wing_mining.state_file", "~/.wingminer/wing_mining_state.json")
	v.SetDefault("wing_mining.settings_file", "~/.wingminer/settings.json")
	v.SetDefault("wing_mining.target_missions", 20)
	v.SetDefault("wing_mining.cooldown", "5m")
	v.SetDefault("wing_mining.tick_interval", "1s")
	v.SetDefault("wing_mining.cargo_capacity", 784)

	// -- Feed --
	v.SetDefault("feed.snapshot_path", "~/.wingminer/carrier_feed.json")
	v.SetDefault("feed.ingest_interval", "60s")
	v.SetDefault("feed.max_name_distance", 2)
	v.SetDefault("feed.window_process", "Discord")
	v.SetDefault("feed.station_aliases", map[string]interface{}{
		"BURKIN":  []string{"BURKIN"},
		"DARLTON": []string{"DARLTON", "DARITON"},
	})
	v.SetDefault("feed.other_headers", []string{"WALLY", "BEI", "MALERBA", "PAEMARA", "RUKAVISHNIKOV", "TERMINAL", "SWANSON"})

	// -- Journal --
	v.SetDefault("journal.directory", "~/Saved Games/Frontier Developments/Elite Dangerous")
	v.SetDefault("journal.pattern", "Journal.*.log")

	// -- Navigation --
	v.SetDefault("navigation.autopilot_url", "http://127.0.0.1:8765")
	v.SetDefault("navigation.travel_timeout", "45m")
	v.SetDefault("navigation.poll_interval", "2s")
	v.SetDefault("navigation.request_timeout", "10s")

	// -- Station menus --
	v.SetDefault("station.connected_to_label", "CONNECTED TO")
	v.SetDefault("station.mission_board_label", "MISSION BOARD")
	v.SetDefault("station.depot_tab_label", "MISSION DEPOT")
	v.SetDefault("station.menu_delay", "200ms")
	v.SetDefault("station.market_load_delay", "5s")
	v.SetDefault("station.accept_delay", "5s")
	v.SetDefault("station.panel_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("ocr.server_url", "WINGMINER_OCR_SERVER_URL")
	v.BindEnv("navigation.autopilot_url", "WINGMINER_AUTOPILOT_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ScreenCfg.ReferenceWidth <= 0 || c.ScreenCfg.ReferenceHeight <= 0 {
		return fmt.Errorf("screen.reference_width and screen.reference_height must be positive integers")
	}
	switch c.OCRCfg.Engine {
	case "tesseract":
	case "remote":
		if c.OCRCfg.ServerURL == "" {
			return fmt.Errorf("ocr.server_url is required when ocr.engine is remote")
		}
	default:
		return fmt.Errorf("ocr.engine must be one of tesseract, remote (got %q)", c.OCRCfg.Engine)
	}
	if c.InputCfg.KeysPerSecond <= 0 {
		return fmt.Errorf("input.keys_per_second must be positive")
	}
	for name, r := range c.RegionsCfg {
		if len(r) != 4 {
			return fmt.Errorf("regions.%s must have exactly 4 values", name)
		}
	}
	for name, s := range c.SizesCfg {
		if len(s) != 2 || s[0] <= 0 || s[1] <= 0 {
			return fmt.Errorf("sizes.%s must be two positive integers", name)
		}
	}
	if err := c.ScannerCfg.Validate(); err != nil {
		return fmt.Errorf("scanner configuration invalid: %w", err)
	}
	if c.QuantityCfg.MaxCorrections <= 0 {
		return fmt.Errorf("quantity.max_corrections must be a positive integer")
	}
	if err := c.MissionCfg.Validate(); err != nil {
		return fmt.Errorf("mission configuration invalid: %w", err)
	}
	if c.WingMiningCfg.TargetMissions <= 0 {
		return fmt.Errorf("wing_mining.target_missions must be a positive integer")
	}
	if c.WingMiningCfg.CargoCapacity <= 0 {
		return fmt.Errorf("wing_mining.cargo_capacity must be a positive integer")
	}
	if c.WingMiningCfg.StateFile == "" {
		return fmt.Errorf("wing_mining.state_file is a required configuration field")
	}
	return nil
}

// Validate checks the list-scanning tunables.
func (s *ScannerConfig) Validate() error {
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if s.EndOfListMisses <= 0 {
		return fmt.Errorf("end_of_list_misses must be a positive integer")
	}
	if s.SeekTimeout <= 0 {
		return fmt.Errorf("seek_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the mission filter settings.
func (m *MissionConfig) Validate() error {
	if len(m.NamePatterns) == 0 {
		return fmt.Errorf("name_patterns must not be empty")
	}
	if len(m.Commodities) == 0 {
		return fmt.Errorf("commodities must not be empty")
	}
	for _, c := range m.Commodities {
		if c.Name == "" {
			return fmt.Errorf("commodities entries require a name")
		}
		if c.Min < 0 || c.Max < c.Min {
			return fmt.Errorf("commodity %s has an invalid tonnage range [%d,%d]", c.Name, c.Min, c.Max)
		}
	}
	for _, th := range []float64{m.PrefixThreshold, m.CommodityThreshold, m.TextThreshold} {
		if th < 0.0 || th > 1.0 {
			return fmt.Errorf("match thresholds must be between 0.0 and 1.0")
		}
	}
	return nil
}
