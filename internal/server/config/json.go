package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/flagx"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Interval fields use
// timex.Duration, so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr          string         `json:"http_addr"`
	GRPCAddr          string         `json:"grpc_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	RefreshSecretKey  string         `json:"refresh_secret_key"`
	AccessTokenTTL    timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL   timex.Duration `json:"refresh_token_ttl"`
	BcryptCost        int            `json:"bcrypt_cost"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	S3PresignTTL      timex.Duration `json:"s3_presign_ttl"`
	NATSURL           string         `json:"nats_url"`
	ChatTimeout       timex.Duration `json:"chat_timeout"`
	EmbeddingModel    string         `json:"embedding_model"`
	ChunkSize         int            `json:"chunk_size"`
	ChunkOverlap      int            `json:"chunk_overlap"`
	LLMModel          string         `json:"llm_model"`
	MaxUploadSize     int64          `json:"max_file_size"`
	AllowedExtensions []string       `json:"allowed_extensions"`
	AllowedOrigins    []string       `json:"allowed_origins"`
	RateLimit         int            `json:"rate_limit_per_minute"`
	RequestTimeout    timex.Duration `json:"request_timeout"`
	OTLPEndpoint      string         `json:"otlp_endpoint"`
	LogFormat         string         `json:"log_format"`
	LogLevel          string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag in args. Keys absent from the file keep their current value.
// Without the flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFile(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	config.HTTPAddr = c.HTTPAddr
	config.GRPCAddr = c.GRPCAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.RefreshSecretKey = c.RefreshSecretKey
	config.AccessTokenTTL = c.AccessTokenTTL.Duration
	config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	config.BcryptCost = c.BcryptCost
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3PresignTTL = c.S3PresignTTL.Duration
	config.NATSURL = c.NATSURL
	config.ChatTimeout = c.ChatTimeout.Duration
	config.EmbeddingModel = c.EmbeddingModel
	config.ChunkSize = c.ChunkSize
	config.ChunkOverlap = c.ChunkOverlap
	config.LLMModel = c.LLMModel
	config.MaxUploadSize = c.MaxUploadSize
	config.AllowedExtensions = c.AllowedExtensions
	config.AllowedOrigins = c.AllowedOrigins
	config.RateLimit = c.RateLimit
	config.RequestTimeout = c.RequestTimeout.Duration
	config.OTLPEndpoint = c.OTLPEndpoint
	config.LogFormat = c.LogFormat
	config.LogLevel = c.LogLevel

	return nil
}

func toJson(c *Config) *JsonConfig {
	d := func(v time.Duration) timex.Duration { return timex.Duration{Duration: v} }
	return &JsonConfig{
		HTTPAddr:          c.HTTPAddr,
		GRPCAddr:          c.GRPCAddr,
		DatabaseDSN:       c.DatabaseDSN,
		SecretKey:         c.SecretKey,
		RefreshSecretKey:  c.RefreshSecretKey,
		AccessTokenTTL:    d(c.AccessTokenTTL),
		RefreshTokenTTL:   d(c.RefreshTokenTTL),
		BcryptCost:        c.BcryptCost,
		S3AccessKey:       c.S3AccessKey,
		S3SecretKey:       c.S3SecretKey,
		S3Bucket:          c.S3Bucket,
		S3Region:          c.S3Region,
		S3BaseEndpoint:    c.S3BaseEndpoint,
		S3PresignTTL:      d(c.S3PresignTTL),
		NATSURL:           c.NATSURL,
		ChatTimeout:       d(c.ChatTimeout),
		EmbeddingModel:    c.EmbeddingModel,
		ChunkSize:         c.ChunkSize,
		ChunkOverlap:      c.ChunkOverlap,
		LLMModel:          c.LLMModel,
		MaxUploadSize:     c.MaxUploadSize,
		AllowedExtensions: c.AllowedExtensions,
		AllowedOrigins:    c.AllowedOrigins,
		RateLimit:         c.RateLimit,
		RequestTimeout:    d(c.RequestTimeout),
		OTLPEndpoint:      c.OTLPEndpoint,
		LogFormat:         c.LogFormat,
		LogLevel:          c.LogLevel,
	}
}
