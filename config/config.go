package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var OctojitCacheDir = func() string {
	dir, err := homedir.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".octojit")
}()

type Config struct {
	Codegen   map[string]interface{} `yaml:"codegen"`
	Execution map[string]interface{} `yaml:"execution"`
}

func DefaultConfigPath() string {
	return filepath.Join(OctojitCacheDir, "octojit.yml")
}

func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open file")
	}
	defer f.Close()

	var config Config

	err = yaml.NewDecoder(f).Decode(&config)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode yaml configuration")
	}

	return &config, nil
}

// ReadDefaultConfig reads the configuration from the home directory. A missing file results in an empty configuration.
func ReadDefaultConfig() (*Config, error) {
	config, err := ReadConfig(DefaultConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return config, err
}

type CodegenOptions struct {
	// NullHandlingBypass evaluates projections without null tracking and computes output validity in a separate vectorized pass.
	NullHandlingBypass bool
	// HoistLiterals loads numeric constants from the literal buffer instead of using inline immediates.
	HoistLiterals bool
	// DeviceCount is the number of devices literals get registered for.
	DeviceCount int
	// MemoryPages is the initial size of the module's linear memory.
	MemoryPages uint32
	// MaxMemoryPages caps the linear memory growth.
	MaxMemoryPages uint32
}

func DefaultCodegenOptions() CodegenOptions {
	return CodegenOptions{
		NullHandlingBypass: false,
		HoistLiterals:      true,
		DeviceCount:        1,
		MemoryPages:        16,
		MaxMemoryPages:     16384,
	}
}

func (config *Config) CodegenOptions() (CodegenOptions, error) {
	defaults := DefaultCodegenOptions()
	var out CodegenOptions
	var err error

	if out.NullHandlingBypass, err = GetBool(config.Codegen, "nullHandlingBypass", WithDefault(defaults.NullHandlingBypass)); err != nil {
		return CodegenOptions{}, errors.Wrap(err, "couldn't get nullHandlingBypass")
	}
	if out.HoistLiterals, err = GetBool(config.Codegen, "hoistLiterals", WithDefault(defaults.HoistLiterals)); err != nil {
		return CodegenOptions{}, errors.Wrap(err, "couldn't get hoistLiterals")
	}
	if out.DeviceCount, err = GetInt(config.Codegen, "deviceCount", WithDefault(defaults.DeviceCount)); err != nil {
		return CodegenOptions{}, errors.Wrap(err, "couldn't get deviceCount")
	}
	if out.DeviceCount < 1 {
		return CodegenOptions{}, errors.Errorf("deviceCount must be positive, got %d", out.DeviceCount)
	}
	memoryPages, err := GetInt(config.Codegen, "memoryPages", WithDefault(int(defaults.MemoryPages)))
	if err != nil {
		return CodegenOptions{}, errors.Wrap(err, "couldn't get memoryPages")
	}
	maxMemoryPages, err := GetInt(config.Codegen, "maxMemoryPages", WithDefault(int(defaults.MaxMemoryPages)))
	if err != nil {
		return CodegenOptions{}, errors.Wrap(err, "couldn't get maxMemoryPages")
	}
	if memoryPages < 1 || maxMemoryPages < memoryPages || maxMemoryPages > 65536 {
		return CodegenOptions{}, errors.Errorf("invalid memory limits: %d initial pages, %d max pages", memoryPages, maxMemoryPages)
	}
	out.MemoryPages = uint32(memoryPages)
	out.MaxMemoryPages = uint32(maxMemoryPages)

	return out, nil
}

type ExecutionOptions struct {
	// OutputCapacity is the initial number of rows allocated for the output batch.
	OutputCapacity int
	// HashTablePartitions is the number of partitions join hash tables are built with.
	HashTablePartitions int
	// DumpModulesDirectory, if set, is where compiled modules get written to for debugging.
	DumpModulesDirectory string
}

func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		OutputCapacity:      1024,
		HashTablePartitions: 7,
	}
}

func (config *Config) ExecutionOptions() (ExecutionOptions, error) {
	defaults := DefaultExecutionOptions()
	var out ExecutionOptions
	var err error

	if out.OutputCapacity, err = GetInt(config.Execution, "outputCapacity", WithDefault(defaults.OutputCapacity)); err != nil {
		return ExecutionOptions{}, errors.Wrap(err, "couldn't get outputCapacity")
	}
	if out.OutputCapacity < 1 {
		return ExecutionOptions{}, errors.Errorf("outputCapacity must be positive, got %d", out.OutputCapacity)
	}
	if out.HashTablePartitions, err = GetInt(config.Execution, "hashTablePartitions", WithDefault(defaults.HashTablePartitions)); err != nil {
		return ExecutionOptions{}, errors.Wrap(err, "couldn't get hashTablePartitions")
	}
	if out.HashTablePartitions < 1 {
		return ExecutionOptions{}, errors.Errorf("hashTablePartitions must be positive, got %d", out.HashTablePartitions)
	}
	if out.DumpModulesDirectory, err = GetString(config.Execution, "dumpModulesDirectory", WithDefault(defaults.DumpModulesDirectory)); err != nil {
		return ExecutionOptions{}, errors.Wrap(err, "couldn't get dumpModulesDirectory")
	}

	return out, nil
}
