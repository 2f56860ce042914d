package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port string `mapstructure:"port"`

	// Store 選擇 message log backend："mongo" | "postgres" | "memory"
	Store string `mapstructure:"store"`
	// Bus 選擇 fan-out backend："redis" | "memory"
	Bus string `mapstructure:"bus"`

	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Postgres DatabaseConfig `mapstructure:"pg"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`

	// TypingExpiry server-side stuck-typist expiry; zero means 2x the
	// client debounce interval.
	TypingExpiry time.Duration `mapstructure:"typing_expiry"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
}

// KafkaConfig definition kafka archive sink setting. Brokers 留空表示停用。
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
