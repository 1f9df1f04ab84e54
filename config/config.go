// config/config.go
package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Redis         RedisConfiguration
	IDP           IDPConfiguration
	Authz         AuthzConfiguration
	Lockout       LockoutConfiguration
	Elasticsearch ElasticsearchConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// RedisConfiguration stores data for Redis connection
type RedisConfiguration struct {
	Addr string
}

// IDPConfiguration stores identity provider settings
type IDPConfiguration struct {
	BaseURL    string
	UserPoolID string
	Issuer     string
	Audience   string
}

// AuthzConfiguration stores policy engine settings
type AuthzConfiguration struct {
	EngineURL     string
	PolicyStoreID string
	Timeout       string
}

// LockoutConfiguration stores progressive lockout settings
type LockoutConfiguration struct {
	Window string
}

// ElasticsearchConfiguration stores data for Elasticsearch connection
type ElasticsearchConfiguration struct {
	URL string
}

var config *Configuration

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.dialTimeout", "2s")
	viper.SetDefault("redis.readTimeout", "250ms")
	viper.SetDefault("redis.writeTimeout", "250ms")
	viper.SetDefault("redis.poolSize", 64)
	viper.SetDefault("redis.poolTimeout", "1s")

	viper.SetDefault("idp.baseURL", "https://cognito-idp.us-east-1.amazonaws.com")
	viper.SetDefault("idp.userPoolID", "")
	viper.SetDefault("idp.issuer", "")
	viper.SetDefault("idp.audience", "")
	viper.SetDefault("idp.timeout", "1s")

	viper.SetDefault("authz.engineURL", "")
	viper.SetDefault("authz.policyStoreID", "")
	viper.SetDefault("authz.timeout", "1s")
	viper.SetDefault("authz.batchSize", 30)

	viper.SetDefault("cache.decisionTTL", "60s")
	viper.SetDefault("cache.statusTTL", "30s")
	viper.SetDefault("cache.keySetTTL", "24h")

	viper.SetDefault("lockout.window", "24h")

	viper.SetDefault("elasticsearch.url", "http://localhost:9200")
	viper.SetDefault("alerts.webhookURL", "")
	viper.SetDefault("log.dir", "logging")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	err := viper.Unmarshal(&config)
	if err != nil {
		return err
	}

	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
