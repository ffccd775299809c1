package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ashid-platform/auth-service/internal/flagx"
	"github.com/ashid-platform/auth-service/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so both "30m" strings and integer nanoseconds parse.
// Zero-valued fields are treated as absent and leave the current value.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`

	SecretKey            string         `json:"secret_key"`
	AccessTokenTTL       timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL      timex.Duration `json:"refresh_token_ttl"`
	JWTLeeway            timex.Duration `json:"jwt_leeway"`
	RevokeAccessOnRotate *bool          `json:"revoke_access_on_rotate"`

	TokenStoreBackend string `json:"token_store_backend"`

	VaultAddr       string `json:"vault_addr"`
	VaultToken      string `json:"vault_token"`
	VaultMount      string `json:"vault_mount_point"`
	VaultPathPrefix string `json:"vault_path_prefix"`

	RedisAddr      string `json:"redis_addr"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        *int   `json:"redis_db"`
	RedisKeyPrefix string `json:"redis_key_prefix"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3KeyPrefix    string `json:"s3_key_prefix"`

	LedgerPruneInterval timex.Duration `json:"ledger_prune_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config. The file path comes from the -c/-config flags; without them no
// file is loaded. An unreadable or invalid file panics: a deployment that
// asks for a config file should not run without it.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setDuration(&config.JWTLeeway, c.JWTLeeway)
	if c.RevokeAccessOnRotate != nil {
		config.RevokeAccessOnRotate = *c.RevokeAccessOnRotate
	}
	setString(&config.TokenStoreBackend, c.TokenStoreBackend)
	setString(&config.VaultAddr, c.VaultAddr)
	setString(&config.VaultToken, c.VaultToken)
	setString(&config.VaultMount, c.VaultMount)
	setString(&config.VaultPathPrefix, c.VaultPathPrefix)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.RedisKeyPrefix, c.RedisKeyPrefix)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3KeyPrefix, c.S3KeyPrefix)
	setDuration(&config.LedgerPruneInterval, c.LedgerPruneInterval)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
