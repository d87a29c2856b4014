package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagMethod    = flag.String("method", "", "Unwrap method: basic, abf or lscm")
	flagSide      = flag.Int("side", 0, "Output atlas resolution in pixels")
	flagPadding   = flag.Int("padding", -1, "Chart border dilation in pixels")
	flagDownscale = flag.Int("downscale", 0, "Internal supersampling factor")
	flagFillHoles = flag.Bool("fill-holes", false, "Inpaint pixels left after dilation")
	flagFormat    = flag.String("format", "", "Atlas image format: png, jpeg or bmp")
	flagCacheSize = flag.Int("cache-size", 0, "Max resident decoded photographs")
	flagWorkers   = flag.Int("workers", 0, "Painting worker count (0 = all cores)")
)

// ParseFlags parses the given command-line arguments. Call this early
// in main(), after the subcommand has been split off.
func ParseFlags(args []string) {
	flag.CommandLine.Parse(args)
}

// ConfigPath returns the explicit config path if provided via -config.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMethod != "" {
		cfg.Texture.Method = *flagMethod
	}
	if *flagSide > 0 {
		cfg.Texture.Side = *flagSide
	}
	if *flagPadding >= 0 {
		cfg.Texture.Padding = *flagPadding
	}
	if *flagDownscale > 0 {
		cfg.Texture.Downscale = *flagDownscale
	}
	if *flagFillHoles {
		cfg.Texture.FillHoles = true
	}
	if *flagFormat != "" {
		cfg.Texture.Format = *flagFormat
	}
	if *flagCacheSize > 0 {
		cfg.Cache.Capacity = *flagCacheSize
	}
	if *flagWorkers > 0 {
		cfg.Texture.Workers = *flagWorkers
	}
}
