package config

import (
	"fmt"
	"log"
	"sort"

	"github.com/spf13/viper"
)

// MasterSite 主站点，共享字段（名称、图片、分类、属性）以它为准
const MasterSite = "com"

type Config struct {
	Server  ServerConfig          `mapstructure:"server"`
	Log     LogConfig             `mapstructure:"log"`
	JWT     JWTConfig             `mapstructure:"jwt"`
	Sites   map[string]SiteConfig `mapstructure:"sites"`
	AI      AIConfig              `mapstructure:"ai"`
	Storage StorageConfig         `mapstructure:"storage"`
	Sync    SyncConfig            `mapstructure:"sync"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// SiteConfig 单个 WooCommerce 站点配置
type SiteConfig struct {
	URL      string `mapstructure:"url"`      // 站点地址，例如 https://jerseysfever.com
	Key      string `mapstructure:"key"`      // Consumer Key
	Secret   string `mapstructure:"secret"`   // Consumer Secret
	Currency string `mapstructure:"currency"` // 结算货币（USD/GBP/EUR）
	Locale   string `mapstructure:"locale"`   // 文案语言（en/de/fr）
}

// AIConfig 生成式 AI 配置
type AIConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`      // Gemini API 密钥
	CopyModel         string `mapstructure:"copy_model"`          // 文案生成模型
	ImageEndpoint     string `mapstructure:"image_endpoint"`      // 图片编辑 API 地址
	ImageAPIKey       string `mapstructure:"image_api_key"`       // 图片编辑 API 密钥
	MaxRetries        int    `mapstructure:"max_retries"`         // 瞬时错误最大重试次数
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"` // 重试基础延迟（秒）
}

// StorageConfig 生成结果的本地存储配置
type StorageConfig struct {
	UploadDir      string `mapstructure:"upload_dir"`      // 图片落盘目录
	PublicBaseURL  string `mapstructure:"public_base_url"` // 对外访问地址前缀
	ThumbnailWidth int    `mapstructure:"thumbnail_width"` // 缩略图宽度（像素）
}

// SyncConfig 多站点同步配置
type SyncConfig struct {
	PageSize  int    `mapstructure:"page_size"`  // 商品分页大小
	BatchSize int    `mapstructure:"batch_size"` // 批量写入条数
	Workers   int    `mapstructure:"workers"`    // 变体拉取并发数
	Schedule  string `mapstructure:"schedule"`   // cron 表达式，空则不定时同步
	OrderDays int    `mapstructure:"order_days"` // 订单拉取回溯天数
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// SiteKeys 返回排序后的站点标识列表
func (c *Config) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for k := range c.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "jersey-hub")

	// 四个站点的货币和语言默认值
	viper.SetDefault("sites.com.currency", "USD")
	viper.SetDefault("sites.com.locale", "en")
	viper.SetDefault("sites.uk.currency", "GBP")
	viper.SetDefault("sites.uk.locale", "en")
	viper.SetDefault("sites.de.currency", "EUR")
	viper.SetDefault("sites.de.locale", "de")
	viper.SetDefault("sites.fr.currency", "EUR")
	viper.SetDefault("sites.fr.locale", "fr")

	// AI 默认配置
	viper.SetDefault("ai.copy_model", "gemini-2.0-flash")
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("ai.retry_delay_seconds", 2)

	// 存储默认配置
	viper.SetDefault("storage.upload_dir", "data/uploads")
	viper.SetDefault("storage.public_base_url", "/uploads")
	viper.SetDefault("storage.thumbnail_width", 400)

	// 同步默认配置
	viper.SetDefault("sync.page_size", 100)
	viper.SetDefault("sync.batch_size", 300)
	viper.SetDefault("sync.workers", 10)
	viper.SetDefault("sync.order_days", 30)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	for site, sc := range config.Sites {
		if sc.URL == "" {
			return fmt.Errorf("站点 %s 未设置 url", site)
		}
	}
	return nil
}
