package config

var (
	Data   Config
	Args   *CmdArgs
	Loaded bool
	Debug  bool

	Name          string
	Exchange      string              // 交易所ID，默认binance
	Market        string              // 市场类型，默认spot
	Pairs         []string            // 维护指标的所有交易对
	RunTimeframes []string            // 维护指标的所有时间周期
	Indicators    []string            // 激活的指标族名称
	TimeRange     *TimeTuple          // 仅用于K线导入和报表的时间范围
	Retry         *RetryConfig        // 批量写入失败的重试配置
	MinHistoryMB  int                 // 全量重算前要求的最小可用内存（MB）
	DataDir       string
	Database      *DatabaseConfig
	APIServer     *APIServerConfig
	RPCChannels   map[string]map[string]interface{}
)

var (
	// 这些顶层配置节不支持多文件合并，后出现的整体覆盖先前的
	noExtends = map[string]bool{
		"rpc_channels": true,
	}
)

// Config 是根配置结构体
type Config struct {
	Name          string                            `yaml:"name" mapstructure:"name"`
	Env           string                            `yaml:"env" mapstructure:"env"`
	Exchange      string                            `yaml:"exchange" mapstructure:"exchange"`
	Market        string                            `yaml:"market" mapstructure:"market"`
	TimeRangeRaw  string                            `yaml:"time_range" mapstructure:"time_range"`
	TimeStart     string                            `yaml:"time_start" mapstructure:"time_start"`
	TimeEnd       string                            `yaml:"time_end" mapstructure:"time_end"`
	Pairs         []string                          `yaml:"pairs" mapstructure:"pairs"`
	RunTimeframes []string                          `yaml:"run_timeframes" mapstructure:"run_timeframes"`
	Indicators    []string                          `yaml:"indicators" mapstructure:"indicators"`
	Retry         *RetryConfig                      `yaml:"retry" mapstructure:"retry"`
	MinHistoryMB  int                               `yaml:"min_history_mb" mapstructure:"min_history_mb"`
	Database      *DatabaseConfig                   `yaml:"database" mapstructure:"database"`
	APIServer     *APIServerConfig                  `yaml:"api_server" mapstructure:"api_server"`
	RPCChannels   map[string]map[string]interface{} `yaml:"rpc_channels" mapstructure:"rpc_channels"`

	TimeRange *TimeTuple `yaml:"-" mapstructure:"-"`
}

type TimeTuple struct {
	StartMS int64
	EndMS   int64
}

type RetryConfig struct {
	MaxRetry int     `yaml:"max_retry" mapstructure:"max_retry"` // 单个批次提交的最大重试次数
	Waits    []int64 `yaml:"waits" mapstructure:"waits"`         // 每次重试前等待的毫秒数，不足时使用最后一个
}

type DatabaseConfig struct {
	Url         string `yaml:"url" mapstructure:"url"`
	MaxPoolSize int    `yaml:"max_pool_size" mapstructure:"max_pool_size"`
	AutoCreate  bool   `yaml:"auto_create" mapstructure:"auto_create"` // 数据库不存在时自动创建
}

type APIServerConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`                     // 是否启用
	ListenIPAddress string   `yaml:"listen_ip_address" mapstructure:"listen_ip_address"` // 绑定地址，0.0.0.0表示暴露到公网
	ListenPort      int      `yaml:"listen_port" mapstructure:"listen_port"`             // 本地监听端口
	JWTSecretKey    string   `yaml:"jwt_secret_key" mapstructure:"jwt_secret_key"`       // 用于签发登录令牌的密钥
	CORSOrigins     []string `yaml:"CORS_origins" mapstructure:"CORS_origins"`
	Username        string   `yaml:"username" mapstructure:"username"`
	Password        string   `yaml:"password" mapstructure:"password"`
}
