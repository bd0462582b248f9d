package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_LoadConfig(t *testing.T) {
	tests := []struct {
		name          string
		configData    string
		wantErr       bool
		wantWidth     float64
		wantRequired  []string
		wantAliasSize int
	}{
		{
			name: "valid config",
			configData: `
store_dir = "/tmp/mailmerge"
image_width_inches = 2.0
required_fields = ["name", "program"]

[[alias_groups]]
members = ["name", "nama"]
`,
			wantWidth:     2.0,
			wantRequired:  []string{"name", "program"},
			wantAliasSize: 1,
		},
		{
			name:          "empty file uses defaults",
			configData:    ``,
			wantWidth:     1.5,
			wantRequired:  []string{"name"},
			wantAliasSize: 3,
		},
		{
			name:       "unknown key",
			configData: `project_name = "x"`,
			wantErr:    true,
		},
		{
			name:       "invalid toml",
			configData: `store_dir = `,
			wantErr:    true,
		},
		{
			name: "duplicate alias",
			configData: `
[[alias_groups]]
members = ["name", "nama"]

[[alias_groups]]
members = ["NAMA", "full_name"]
`,
			wantErr: true,
		},
		{
			name:       "width out of range",
			configData: `image_width_inches = 30.0`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 创建临时配置文件
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.configData), 0o644))

			manager := NewConfigManager()
			config, err := manager.LoadConfig(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, config.ImageWidthInches)
			assert.Equal(t, tt.wantRequired, config.RequiredFields)
			assert.Len(t, config.AliasGroups, tt.wantAliasSize)
			assert.NotEmpty(t, config.StoreDir)
		})
	}
}

func TestConfigManager_LoadConfig_Missing(t *testing.T) {
	manager := NewConfigManager()

	config, err := manager.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 200, config.FilenameMaxLength)
	assert.Equal(t, 5, config.ErrorSummaryLimit)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, int64(1371600), config.ImageWidthEMU())
}

func TestConfigManager_LoadConfig_BadPath(t *testing.T) {
	manager := NewConfigManager()

	_, err := manager.LoadConfig("")
	assert.Error(t, err)

	_, err = manager.LoadConfig("config.json")
	assert.Error(t, err)
}

func TestConfigManager_SaveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	manager := NewConfigManager()

	config := manager.DefaultConfig()
	config.StoreDir = filepath.Join(dir, "store")
	config.DateFields = []string{"tarikh_lahir"}
	require.NoError(t, manager.SaveConfig(config, path))

	loaded, err := manager.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)

	// 第二次保存会生成备份
	require.NoError(t, manager.SaveConfig(config, path))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
