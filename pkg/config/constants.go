package config

const (
	EnvPrefix = "debitum"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv    = "DEBITUM_APP_ENV"
	EnvPort      = "DEBITUM_APP_PORT"
	EnvDBDSN     = "DEBITUM_DB_DSN"
	EnvRedisURL  = "DEBITUM_REDIS_URL"
	EnvJWTSecret = "DEBITUM_JWT_SECRET"
	EnvJWTIssuer = "DEBITUM_JWT_ISSUER"
)
