package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Download DownloadConfig `yaml:"download"`
	OSS      OSSConfig      `yaml:"oss"`
	Agent    AgentConfig    `yaml:"agent"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DownloadConfig 生命周期控制器的运行参数
type DownloadConfig struct {
	TempDir string `yaml:"temp_dir"` // 本地种子文件缓存目录
	// 单轮候选超过 BatchCeiling 时，截断为 BatchSize 个
	BatchCeiling int           `yaml:"batch_ceiling"`
	BatchSize    int           `yaml:"batch_size"`
	RetryCount   int           `yaml:"retry_count"`   // 添加种子的全局重试次数
	CallTimeout  time.Duration `yaml:"call_timeout"`  // 客户端单次调用超时
	FetchDelay   time.Duration `yaml:"fetch_delay"`   // 抓取阶段逐项间隔，限速用
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // 单个种子文件下载超时
}

type OSSConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
}

type AgentConfig struct {
	Port     int    `yaml:"port"`
	Token    string `yaml:"token"`
	DataRoot string `yaml:"data_root"` // agent 端文件根目录
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoadConfig 从指定路径加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	// 如果未指定配置文件路径，使用默认路径
	if configPath == "" {
		defaultPaths := []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/pt-butler/config.yaml",
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		if configPath == "" {
			return nil, fmt.Errorf("no configuration file found in default paths")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()

	// 覆盖环境变量
	cfg.overrideWithEnv()

	if err := os.MkdirAll(cfg.Download.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", cfg.Download.TempDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SetDefaults 设置配置默认值
func (c *Config) SetDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == "" {
		c.Database.Port = "3306"
	}
	if c.Database.Name == "" {
		c.Database.Name = "pt_butler"
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}

	if c.Download.TempDir == "" {
		c.Download.TempDir = "./data/torrents"
	}
	if c.Download.BatchCeiling == 0 {
		c.Download.BatchCeiling = 10
	}
	if c.Download.BatchSize == 0 {
		c.Download.BatchSize = 5
	}
	if c.Download.RetryCount == 0 {
		c.Download.RetryCount = 3
	}
	if c.Download.CallTimeout == 0 {
		c.Download.CallTimeout = 60 * time.Second
	}
	if c.Download.FetchDelay == 0 {
		c.Download.FetchDelay = 3 * time.Second
	}
	if c.Download.FetchTimeout == 0 {
		c.Download.FetchTimeout = 2 * time.Minute
	}

	if c.Agent.Port == 0 {
		c.Agent.Port = 9501
	}
	if c.Agent.DataRoot == "" {
		c.Agent.DataRoot = "/data"
	}

	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
}

// 使用环境变量覆盖配置
func (c *Config) overrideWithEnv() {
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Database.Name = dbName
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		c.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		c.Database.Password = dbPass
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if tempDir := os.Getenv("TORRENT_TEMP_DIR"); tempDir != "" {
		c.Download.TempDir = tempDir
	}
	if retry := os.Getenv("ADD_RETRY_COUNT"); retry != "" {
		if n, err := strconv.Atoi(retry); err == nil && n > 0 {
			c.Download.RetryCount = n
		}
	}

	if endpoint := os.Getenv("OSS_ENDPOINT"); endpoint != "" {
		c.OSS.Endpoint = endpoint
	}
	if keyID := os.Getenv("OSS_ACCESS_KEY_ID"); keyID != "" {
		c.OSS.AccessKeyID = keyID
	}
	if secret := os.Getenv("OSS_ACCESS_KEY_SECRET"); secret != "" {
		c.OSS.AccessKeySecret = secret
	}
	if bucket := os.Getenv("OSS_BUCKET"); bucket != "" {
		c.OSS.Bucket = bucket
	}

	if token := os.Getenv("AGENT_TOKEN"); token != "" {
		c.Agent.Token = token
	}
	if webhook := os.Getenv("NOTIFY_WEBHOOK_URL"); webhook != "" {
		c.Notify.WebhookURL = webhook
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	supportedDrivers := map[string]bool{
		"mysql":  true,
		"sqlite": true,
	}
	if !supportedDrivers[c.Database.Driver] {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for mysql")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required for mysql")
		}
	}

	if c.Download.BatchSize > c.Download.BatchCeiling {
		return fmt.Errorf("batch_size %d cannot exceed batch_ceiling %d",
			c.Download.BatchSize, c.Download.BatchCeiling)
	}

	return nil
}

// GetConnectionString 获取数据库连接字符串
func (c *DatabaseConfig) GetConnectionString() string {
	switch c.Driver {
	case "sqlite":
		return fmt.Sprintf("./data/db/%s.db", c.Name)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return ""
	}
}
