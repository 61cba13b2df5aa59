// Package config loads the heap configuration from a TOML file.
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/QuangTung97/remset"
	"github.com/QuangTung97/remset/heap"
	"github.com/QuangTung97/remset/hotcard"
	"github.com/QuangTung97/remset/logutil"
	"github.com/QuangTung97/remset/memory"
)

// Config ...
type Config struct {
	UseRememberedSet     bool   `toml:"use_remembered_set"`
	AlignedChunkSize     uint64 `toml:"aligned_chunk_size"`
	ReservedSize         uint64 `toml:"reserved_size"`
	LargeObjectThreshold uint64 `toml:"large_object_threshold"`
	VerifyRememberedSet  bool   `toml:"verify_remembered_set"`
	HotCardLimit         int    `toml:"hot_card_limit"`
	HotCardThreshold     uint32 `toml:"hot_card_threshold"`
	LogLevel             string `toml:"log_level"`
}

// Default ...
func Default() Config {
	d := heap.DefaultConfig()
	return Config{
		UseRememberedSet:     d.UseRememberedSet,
		AlignedChunkSize:     uint64(d.AlignedChunkSize),
		ReservedSize:         uint64(d.ReservedSize),
		LargeObjectThreshold: uint64(d.LargeObjectThreshold),
		VerifyRememberedSet:  d.VerifyRememberedSet,
		HotCardLimit:         d.HotCardLimit,
		HotCardThreshold:     d.HotCardThreshold,
		LogLevel:             "info",
	}
}

// Load reads path on top of the defaults. Keys the file sets but Config does
// not know are rejected.
func Load(path string) (Config, error) {
	conf := Default()
	meta, err := toml.DecodeFile(path, &conf)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode config file %s", path)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, errors.Wrapf(err, "config file %s", path)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config file %s", path)
	}
	return conf, nil
}

// Parse is Load for a TOML document in memory.
func Parse(data string) (Config, error) {
	conf := Default()
	meta, err := toml.Decode(data, &conf)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, err
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return errors.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Validate checks the values that can be checked without creating a heap.
func (c Config) Validate() error {
	if !memory.IsPowerOfTwo(uintptr(c.AlignedChunkSize)) {
		return errors.Errorf("aligned_chunk_size %d is not a power of two", c.AlignedChunkSize)
	}
	if c.AlignedChunkSize > remset.MaxAlignedChunkSize {
		return errors.Errorf("aligned_chunk_size %d exceeds %d", c.AlignedChunkSize, remset.MaxAlignedChunkSize)
	}
	if c.ReservedSize == 0 || c.ReservedSize%c.AlignedChunkSize != 0 {
		return errors.Errorf("reserved_size %d is not a positive multiple of aligned_chunk_size %d",
			c.ReservedSize, c.AlignedChunkSize)
	}
	if c.LargeObjectThreshold == 0 || c.LargeObjectThreshold >= c.AlignedChunkSize {
		return errors.Errorf("large_object_threshold %d must be in (0, %d)",
			c.LargeObjectThreshold, c.AlignedChunkSize)
	}
	if c.HotCardLimit < 0 {
		return errors.Errorf("hot_card_limit %d is negative", c.HotCardLimit)
	}
	if c.HotCardLimit > 0 && (c.HotCardThreshold == 0 || c.HotCardThreshold > hotcard.MaxThreshold) {
		return errors.Errorf("hot_card_threshold %d must be in [1, %d]", c.HotCardThreshold, hotcard.MaxThreshold)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level ...
func (c Config) Level() (logrus.Level, error) {
	lvl, err := logutil.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return lvl, nil
}

// Heap ...
func (c Config) Heap() heap.Config {
	return heap.Config{
		UseRememberedSet:     c.UseRememberedSet,
		AlignedChunkSize:     uintptr(c.AlignedChunkSize),
		ReservedSize:         uintptr(c.ReservedSize),
		LargeObjectThreshold: uintptr(c.LargeObjectThreshold),
		VerifyRememberedSet:  c.VerifyRememberedSet,
		HotCardLimit:         c.HotCardLimit,
		HotCardThreshold:     c.HotCardThreshold,
	}
}

// Apply sets the log level of every logger.
func (c Config) Apply() error {
	lvl, err := c.Level()
	if err != nil {
		return err
	}
	logutil.SetLogLevel(lvl)
	return nil
}
