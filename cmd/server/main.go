package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/couchsync/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	roomTTLHours = configVar[int]{
		envKey:       "SERVER_ROOM_TTL_HOURS",
		flagKey:      "room-ttl-hours",
		defaultValue: 24,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	s3Endpoint = configVar[string]{
		envKey:       "S3_ENDPOINT",
		flagKey:      "s3-endpoint",
		defaultValue: "",
	}
	s3PublicURL = configVar[string]{
		envKey:       "S3_PUBLIC_URL",
		flagKey:      "s3-public-url",
		defaultValue: "",
	}
	s3Bucket = configVar[string]{
		envKey:       "S3_BUCKET",
		flagKey:      "s3-bucket",
		defaultValue: "couchsync-videos",
	}
	s3AccessKey = configVar[string]{
		envKey:       "S3_ACCESS_KEY",
		flagKey:      "s3-access-key",
		defaultValue: "",
	}
	s3SecretKey = configVar[string]{
		envKey:       "S3_SECRET_KEY",
		flagKey:      "s3-secret-key",
		defaultValue: "",
	}
	s3Region = configVar[string]{
		envKey:       "S3_REGION",
		flagKey:      "s3-region",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Int(roomTTLHours.flagKey, roomTTLHours.defaultValue, "Hours an idle room stays alive")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.String(s3Endpoint.flagKey, s3Endpoint.defaultValue, "S3 endpoint for video uploads")
	pflag.String(s3PublicURL.flagKey, s3PublicURL.defaultValue, "Public base URL for uploaded videos")
	pflag.String(s3Bucket.flagKey, s3Bucket.defaultValue, "S3 bucket for video uploads")
	pflag.String(s3AccessKey.flagKey, s3AccessKey.defaultValue, "S3 access key")
	pflag.String(s3SecretKey.flagKey, s3SecretKey.defaultValue, "S3 secret key")
	pflag.String(s3Region.flagKey, s3Region.defaultValue, "S3 region")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(roomTTLHours.flagKey, roomTTLHours.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(s3Endpoint.flagKey, s3Endpoint.envKey)
	viper.BindEnv(s3PublicURL.flagKey, s3PublicURL.envKey)
	viper.BindEnv(s3Bucket.flagKey, s3Bucket.envKey)
	viper.BindEnv(s3AccessKey.flagKey, s3AccessKey.envKey)
	viper.BindEnv(s3SecretKey.flagKey, s3SecretKey.envKey)
	viper.BindEnv(s3Region.flagKey, s3Region.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(roomTTLHours.flagKey, roomTTLHours.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(s3Endpoint.flagKey, s3Endpoint.defaultValue)
	viper.SetDefault(s3PublicURL.flagKey, s3PublicURL.defaultValue)
	viper.SetDefault(s3Bucket.flagKey, s3Bucket.defaultValue)
	viper.SetDefault(s3AccessKey.flagKey, s3AccessKey.defaultValue)
	viper.SetDefault(s3SecretKey.flagKey, s3SecretKey.defaultValue)
	viper.SetDefault(s3Region.flagKey, s3Region.defaultValue)

	return &app.AppConfig{
		Host:          viper.GetString(host.flagKey),
		Port:          viper.GetInt(port.flagKey),
		LogLevel:      viper.GetString(logLevel.flagKey),
		RoomTTLHours:  viper.GetInt(roomTTLHours.flagKey),
		RedisPort:     viper.GetInt(redisPort.flagKey),
		RedisHost:     viper.GetString(redisHost.flagKey),
		RedisPassword: viper.GetString(redisPassword.flagKey),
		S3Endpoint:    viper.GetString(s3Endpoint.flagKey),
		S3PublicURL:   viper.GetString(s3PublicURL.flagKey),
		S3Bucket:      viper.GetString(s3Bucket.flagKey),
		S3AccessKey:   viper.GetString(s3AccessKey.flagKey),
		S3SecretKey:   viper.GetString(s3SecretKey.flagKey),
		S3Region:      viper.GetString(s3Region.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
