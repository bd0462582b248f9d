package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigManager_ValidateConfig(t *testing.T) {
	manager := NewConfigManager()

	valid := func() *Config { return manager.DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "empty store dir", mutate: func(c *Config) { c.StoreDir = "" }, wantErr: true},
		{name: "zero width", mutate: func(c *Config) { c.ImageWidthInches = 0 }, wantErr: true},
		{name: "short filename limit", mutate: func(c *Config) { c.FilenameMaxLength = 8 }, wantErr: true},
		{name: "negative summary", mutate: func(c *Config) { c.ErrorSummaryLimit = -1 }, wantErr: true},
		{name: "blank required field", mutate: func(c *Config) { c.RequiredFields = []string{"name", " "} }, wantErr: true},
		{name: "single member alias", mutate: func(c *Config) {
			c.AliasGroups = []AliasGroup{{Members: []string{"name"}}}
		}, wantErr: true},
		{name: "no required fields", mutate: func(c *Config) { c.RequiredFields = []string{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := manager.ValidateConfig(config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, manager.ValidateConfig(nil))
}

func TestConfig_AliasMembers(t *testing.T) {
	config := NewConfigManager().DefaultConfig()
	members := config.AliasMembers()
	assert.Equal(t, [][]string{
		{"name", "nama"},
		{"degree", "jenis_degree"},
		{"date", "tarikh", "tarikh_submit", "tarikh_viva"},
	}, members)

	members[0][0] = "changed"
	assert.Equal(t, "name", config.AliasGroups[0].Members[0])
}
