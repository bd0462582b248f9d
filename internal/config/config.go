package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName 默认配置文件名
const DefaultFileName = "config.toml"

// AliasGroup 一组互为别名的字段，组内第一个非空值会同步到所有成员
type AliasGroup struct {
	Members []string `toml:"members"`
}

// Config 表示完整的配置文件结构
type Config struct {
	StoreDir          string       `toml:"store_dir"`
	WorkDir           string       `toml:"work_dir"`
	LogLevel          string       `toml:"log_level"`
	ImageWidthInches  float64      `toml:"image_width_inches"`
	FilenameMaxLength int          `toml:"filename_max_length"`
	ErrorSummaryLimit int          `toml:"error_summary_limit"`
	RequiredFields    []string     `toml:"required_fields"`
	DateFields        []string     `toml:"date_fields"`
	AliasGroups       []AliasGroup `toml:"alias_groups"`
	ProgramOptions    []string     `toml:"program_options"`
	DegreeOptions     []string     `toml:"degree_options"`
}

// ConfigManager 配置管理接口
type ConfigManager interface {
	LoadConfig(filePath string) (*Config, error)
	ValidateConfig(config *Config) error
	SaveConfig(config *Config, filePath string) error
	DefaultConfig() *Config
}

// configManager 配置管理器实现
type configManager struct {
	homeDir string
}

// NewConfigManager 创建新的配置管理器
func NewConfigManager() ConfigManager {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &configManager{homeDir: home}
}

// DefaultConfigPath 返回默认配置文件位置
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "docx-mailmerge", DefaultFileName)
}

// DefaultAliasGroups 返回内置的别名组
func DefaultAliasGroups() []AliasGroup {
	return []AliasGroup{
		{Members: []string{"name", "nama"}},
		{Members: []string{"degree", "jenis_degree"}},
		{Members: []string{"date", "tarikh", "tarikh_submit", "tarikh_viva"}},
	}
}

// DefaultConfig 返回全部使用默认值的配置
func (cm *configManager) DefaultConfig() *Config {
	config := &Config{}
	cm.setDefaultValues(config)
	return config
}

// LoadConfig 从文件加载配置，文件不存在时使用默认值
func (cm *configManager) LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("配置文件路径不能为空")
	}

	// 检查文件扩展名
	if ext := strings.ToLower(filepath.Ext(filePath)); ext != ".toml" {
		return nil, fmt.Errorf("配置文件必须是 TOML 格式，当前文件: %s", ext)
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return cm.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cm.setDefaultValues(&config)

	if err := cm.ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// ValidateConfig 验证配置的有效性
func (cm *configManager) ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}

	if config.StoreDir == "" {
		return fmt.Errorf("存储目录不能为空")
	}

	if config.ImageWidthInches <= 0 || config.ImageWidthInches > 20 {
		return fmt.Errorf("图片宽度必须在 0-20 英寸之间")
	}

	if config.FilenameMaxLength < 16 || config.FilenameMaxLength > 255 {
		return fmt.Errorf("文件名最大长度必须在 16-255 之间")
	}

	if config.ErrorSummaryLimit < 0 {
		return fmt.Errorf("错误摘要数量不能为负数")
	}

	for i, field := range config.RequiredFields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("第 %d 个必填字段不能为空", i+1)
		}
	}

	// 检查别名重复
	seen := make(map[string]bool)
	for i, group := range config.AliasGroups {
		if len(group.Members) < 2 {
			return fmt.Errorf("第 %d 个别名组至少需要两个字段", i+1)
		}
		for _, member := range group.Members {
			key := strings.ToLower(strings.TrimSpace(member))
			if key == "" {
				return fmt.Errorf("第 %d 个别名组包含空字段", i+1)
			}
			if seen[key] {
				return fmt.Errorf("别名重复: %s", key)
			}
			seen[key] = true
		}
	}

	return nil
}

// setDefaultValues 设置默认值
func (cm *configManager) setDefaultValues(config *Config) {
	if config.StoreDir == "" {
		config.StoreDir = filepath.Join(cm.homeDir, ".docx-mailmerge")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ImageWidthInches == 0 {
		config.ImageWidthInches = 1.5
	}
	if config.FilenameMaxLength == 0 {
		config.FilenameMaxLength = 200
	}
	if config.ErrorSummaryLimit == 0 {
		config.ErrorSummaryLimit = 5
	}
	if config.RequiredFields == nil {
		config.RequiredFields = []string{"name"}
	}
	if config.AliasGroups == nil {
		config.AliasGroups = DefaultAliasGroups()
	}
	if config.ProgramOptions == nil {
		config.ProgramOptions = []string{"LT750", "LT780"}
	}
	if config.DegreeOptions == nil {
		config.DegreeOptions = []string{"Diploma", "Degree", "Masters", "PhD"}
	}
}

// ImageWidthEMU 返回图片宽度的 EMU 值
func (c *Config) ImageWidthEMU() int64 {
	return int64(c.ImageWidthInches * 914400)
}

// AliasMembers 返回别名组的成员列表
func (c *Config) AliasMembers() [][]string {
	out := make([][]string, 0, len(c.AliasGroups))
	for _, group := range c.AliasGroups {
		members := make([]string, len(group.Members))
		copy(members, group.Members)
		out = append(out, members)
	}
	return out
}
