package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Agent    AgentConfig
	Tunnel   TunnelConfig
	Worker   WorkerConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Addr     string
	User     string
	Password string
	Database string
}

// AgentConfig 每个 session 的 agent 容器配置
type AgentConfig struct {
	Image           string
	BasePort        int    // 宿主机端口扫描起点
	ReposVolume     string // 命名卷，容器 entrypoint 按名解析 bind 路径
	MainNetwork     string // 编排器自身所在的共享网络
	NetworkMTU      int    // 0 = engine default
	MemoryLimitMB   int64
	CPUQuota        float64 // CPU 核心数（如 0.5, 1.5）
	StopGracePeriod time.Duration
	ChatTimeout     time.Duration
	PRTimeout       time.Duration
	GitHubPAT       string // global fallback; per-user PATs come in on the request
	TunnelToken     string // passed into the container when set
	InternalDevPort int    // dev server port inside the container
}

type TunnelConfig struct {
	TunnelID    string
	Domain      string
	ConfigDir   string
	Container   string // cloudflared container to restart on config change
	MainService string // ingress target for the bare domain
}

type WorkerConfig struct {
	Concurrency   int
	SweepInterval time.Duration
}

type MetricsConfig struct {
	Addr string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8000"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Addr:     getEnv("POSTGRES_ADDR", "localhost:5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "remotevibes"),
		},
		Agent: AgentConfig{
			Image:           getEnv("AGENT_IMAGE", "rv_agent:latest"),
			BasePort:        getIntEnv("AGENT_BASE_PORT", 9000),
			ReposVolume:     getEnv("AGENT_REPOS_VOLUME", "rv_repos"),
			MainNetwork:     getEnv("AGENT_MAIN_NETWORK", "rv_main"),
			NetworkMTU:      getIntEnv("AGENT_NETWORK_MTU", 1260),
			MemoryLimitMB:   int64(getIntEnv("AGENT_MEM_LIMIT_MB", 2048)),
			CPUQuota:        getFloatEnv("AGENT_CPU_QUOTA", 1.5),
			StopGracePeriod: getDurationEnv("AGENT_STOP_GRACE", 10*time.Second),
			ChatTimeout:     getDurationEnv("AGENT_CHAT_TIMEOUT", 120*time.Second),
			PRTimeout:       getDurationEnv("AGENT_PR_TIMEOUT", 60*time.Second),
			GitHubPAT:       getEnv("GITHUB_PAT", ""),
			TunnelToken:     getEnv("CLOUDFLARE_TUNNEL_TOKEN", ""),
			InternalDevPort: getIntEnv("AGENT_DEV_SERVER_PORT", 5000),
		},
		Tunnel: TunnelConfig{
			TunnelID:    getEnv("CF_TUNNEL_ID", ""),
			Domain:      getEnv("CF_TUNNEL_DOMAIN", ""),
			ConfigDir:   getEnv("CF_CONFIG_DIR", "/app/cloudflared"),
			Container:   getEnv("CF_CONTAINER_NAME", "rv_cloudflared"),
			MainService: getEnv("CF_MAIN_SERVICE", "http://rv_main:8000"),
		},
		Worker: WorkerConfig{
			Concurrency:   getIntEnv("WORKER_CONCURRENCY", 5),
			SweepInterval: getDurationEnv("WORKER_SWEEP_INTERVAL", 10*time.Minute),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
