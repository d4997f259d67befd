package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		wantCodegen   CodegenOptions
		wantExecution ExecutionOptions
		wantErr       bool
	}{
		{
			name: "simple parse",
			path: "fixtures/example.yml",
			wantCodegen: CodegenOptions{
				NullHandlingBypass: true,
				HoistLiterals:      false,
				DeviceCount:        2,
				MemoryPages:        32,
				MaxMemoryPages:     16384,
			},
			wantExecution: ExecutionOptions{
				OutputCapacity:       4096,
				HashTablePartitions:  7,
				DumpModulesDirectory: "/tmp/octojit-modules",
			},
		},
		{
			name:    "invalid type",
			path:    "fixtures/invalid.yml",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ReadConfig(tt.path)
			require.NoError(t, err)

			codegen, err := config.CodegenOptions()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCodegen, codegen)

			execution, err := config.ExecutionOptions()
			require.NoError(t, err)
			assert.Equal(t, tt.wantExecution, execution)
		})
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	config := &Config{}

	codegen, err := config.CodegenOptions()
	require.NoError(t, err)
	assert.Equal(t, DefaultCodegenOptions(), codegen)

	execution, err := config.ExecutionOptions()
	require.NoError(t, err)
	assert.Equal(t, DefaultExecutionOptions(), execution)
}

func TestInvalidMemoryLimits(t *testing.T) {
	config := &Config{
		Codegen: map[string]interface{}{
			"memoryPages":    64,
			"maxMemoryPages": 32,
		},
	}
	_, err := config.CodegenOptions()
	assert.Error(t, err)
}

func TestGetInterfaceNested(t *testing.T) {
	config := map[string]interface{}{
		"outer": map[string]interface{}{
			"inner": 3,
		},
	}
	out, err := GetInt(config, "outer.inner")
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	_, err = GetInt(config, "outer.missing")
	assert.Error(t, err)

	out, err = GetInt(config, "missing", WithDefault(5))
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}
