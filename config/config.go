// Package config loads the settings of a converter program: the preset of
// the program, overridden by an optional YAML or TOML file and by XRAGE_*
// environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/lanl-asteroid-impact/xrage-format/convert"
	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

const (
	RowIDContinuous = "continuous"
	RowIDPerGroup   = "per-group"
	RowIDNone       = "none"
)

type Config struct {
	Format     string         `mapstructure:"format"`
	Mode       string         `mapstructure:"mode"`
	Fields     []string       `mapstructure:"fields"`
	Timestep   bool           `mapstructure:"timestep"`
	RowID      string         `mapstructure:"rowid"`
	Ceiling    int64          `mapstructure:"ceiling"`
	Dictionary bool           `mapstructure:"dictionary"`
	Metadata   bool           `mapstructure:"metadata"`
	Quantize   QuantizeConfig `mapstructure:"quantize"`
	Codec      CodecConfig    `mapstructure:"codec"`
	Naming     NamingConfig   `mapstructure:"naming"`
}

type QuantizeConfig struct {
	Digits int      `mapstructure:"digits"`
	Fields []string `mapstructure:"fields"`
}

type CodecConfig struct {
	Default string `mapstructure:"default"`
	Keys    string `mapstructure:"keys"`
}

type NamingConfig struct {
	KeyWidth int  `mapstructure:"key_width"`
	KeyGap   int  `mapstructure:"key_gap"`
	Symlinks bool `mapstructure:"symlinks"`
}

var vtuFields = []string{"rho", "prs", "tev", "xdt", "ydt", "zdt", "snd", "grd", "mat", "v02", "v03"}

var presets = map[string]Config{
	"vti2pqt": {
		Format:   "vti",
		Mode:     string(convert.ModePerFile),
		Fields:   []string{"v02", "v03"},
		RowID:    RowIDContinuous,
		Metadata: true,
		Quantize: QuantizeConfig{Digits: 6},
		Codec:    CodecConfig{Default: "none", Keys: "snappy"},
		Naming:   NamingConfig{Symlinks: true},
	},
	"vti2pqtv2a": {
		Format:   "vti",
		Mode:     string(convert.ModeSingle),
		Fields:   []string{"v02", "v03"},
		Timestep: true,
		RowID:    RowIDPerGroup,
		Quantize: QuantizeConfig{Digits: 6},
		Codec:    CodecConfig{Default: "none", Keys: "snappy"},
		Naming:   NamingConfig{KeyWidth: 5},
	},
	"vti2pqtv2b": {
		Format:   "vti",
		Mode:     string(convert.ModePerFile),
		Fields:   []string{"v02", "v03"},
		Timestep: true,
		RowID:    RowIDContinuous,
		Ceiling:  100 * 500 * 500,
		Quantize: QuantizeConfig{Digits: 6},
		Codec:    CodecConfig{Default: "none", Keys: "snappy"},
		Naming:   NamingConfig{KeyWidth: 5},
	},
	"vtu2pqt": {
		Format:     "vtu",
		Mode:       string(convert.ModePerFile),
		Fields:     vtuFields,
		RowID:      RowIDNone,
		Dictionary: true,
		Codec:      CodecConfig{Default: "zstd", Keys: "snappy"},
		Naming:     NamingConfig{Symlinks: true},
	},
	"pqt2pqt": {
		Format:  "parquet",
		Mode:    string(convert.ModeRepack),
		RowID:   RowIDContinuous,
		Ceiling: 31_250_000,
		Codec:   CodecConfig{Default: "none", Keys: "snappy"},
	},
	"zarr2pqt": {
		Format:   "zarr",
		Mode:     string(convert.ModePerFile),
		Fields:   []string{"v02", "v03"},
		RowID:    RowIDContinuous,
		Metadata: true,
		Quantize: QuantizeConfig{Digits: 6},
		Codec:    CodecConfig{Default: "none", Keys: "snappy"},
	},
}

// Programs returns the names of the programs with a preset.
func Programs() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the built-in settings of program.
func Preset(program string) (Config, error) {
	p, ok := presets[program]
	if !ok {
		return Config{}, fmt.Errorf("no preset for program %q", program)
	}
	p.Fields = append([]string(nil), p.Fields...)
	return p, nil
}

// Load returns the preset of program overridden by the file at path, if
// path is not empty, and by the environment: XRAGE_CEILING or
// XRAGE_CODEC_DEFAULT for instance.
func Load(program, path string) (Config, error) {
	preset, err := Preset(program)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("xrage")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, preset)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, p Config) {
	v.SetDefault("format", p.Format)
	v.SetDefault("mode", p.Mode)
	v.SetDefault("fields", append([]string{}, p.Fields...))
	v.SetDefault("timestep", p.Timestep)
	v.SetDefault("rowid", p.RowID)
	v.SetDefault("ceiling", p.Ceiling)
	v.SetDefault("dictionary", p.Dictionary)
	v.SetDefault("metadata", p.Metadata)
	v.SetDefault("quantize.digits", p.Quantize.Digits)
	v.SetDefault("quantize.fields", append([]string{}, p.Quantize.Fields...))
	v.SetDefault("codec.default", p.Codec.Default)
	v.SetDefault("codec.keys", p.Codec.Keys)
	v.SetDefault("naming.key_width", p.Naming.KeyWidth)
	v.SetDefault("naming.key_gap", p.Naming.KeyGap)
	v.SetDefault("naming.symlinks", p.Naming.Symlinks)
}

func (c Config) Validate() error {
	if _, err := convert.LookupFormat(c.Format); err != nil {
		return err
	}
	if _, err := convert.ParseMode(c.Mode); err != nil {
		return err
	}
	switch c.RowID {
	case RowIDContinuous, RowIDPerGroup, RowIDNone:
	default:
		return fmt.Errorf("rowid must be %s, %s or %s, got %q", RowIDContinuous, RowIDPerGroup, RowIDNone, c.RowID)
	}
	if c.Ceiling < 0 {
		return fmt.Errorf("ceiling must not be negative, got %d", c.Ceiling)
	}
	if c.Mode == string(convert.ModeRepack) && c.Ceiling == 0 {
		return fmt.Errorf("mode %s needs a ceiling", c.Mode)
	}
	if c.Mode != string(convert.ModeRepack) && len(c.Fields) == 0 {
		return fmt.Errorf("fields are required in mode %s", c.Mode)
	}
	if _, err := pqt.ParseCodec(c.Codec.Default); err != nil {
		return fmt.Errorf("codec.default: %w", err)
	}
	if _, err := pqt.ParseCodec(c.Codec.Keys); err != nil {
		return fmt.Errorf("codec.keys: %w", err)
	}
	return nil
}

// Options turns c into converter options. c must be valid.
func (c Config) Options() convert.Options {
	def, _ := pqt.ParseCodec(c.Codec.Default)
	keys, _ := pqt.ParseCodec(c.Codec.Keys)
	o := convert.Options{
		Format:         c.Format,
		Mode:           convert.Mode(c.Mode),
		Fields:         c.Fields,
		Timestep:       c.Timestep,
		RowID:          c.RowID != RowIDNone,
		QuantizeDigits: c.Quantize.Digits,
		QuantizeFields: c.Quantize.Fields,
		Ceiling:        c.Ceiling,
		DefaultCodec:   def,
		KeyCodec:       keys,
		Dictionary:     c.Dictionary,
		Metadata:       c.Metadata,
		Naming: convert.NameRule{
			KeyWidth: c.Naming.KeyWidth,
			KeyGap:   c.Naming.KeyGap,
			Symlinks: c.Naming.Symlinks,
		},
	}
	if c.RowID == RowIDPerGroup {
		o.RowIDPolicy = pqt.RowIDPerGroup
	}
	return o
}
