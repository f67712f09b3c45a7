package config

const (
	EnvPrefix = "FOODFUND"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "FOODFUND_APP_ENV"
	EnvPort   = "FOODFUND_APP_PORT"

	EnvDBDSN      = "FOODFUND_DB_DSN"
	EnvDBDriver   = "FOODFUND_DB_DRIVER"
	EnvDBHost     = "FOODFUND_DB_HOST"
	EnvDBUser     = "FOODFUND_DB_USER"
	EnvDBPassword = "FOODFUND_DB_PASSWORD"
	EnvDBName     = "FOODFUND_DB_NAME"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvRedisURL  = "FOODFUND_REDIS_URL"
	EnvRedisAddr = "FOODFUND_REDIS_ADDR"

	EnvJWTSecret  = "FOODFUND_JWT_SECRET"
	EnvJWTIssuer  = "FOODFUND_JWT_ISSUER"
	EnvJWTExpMins = "FOODFUND_JWT_EXPIRATION_MINUTES"

	EnvCORSOrigins = "FOODFUND_CORS_ALLOWED_ORIGINS"

	EnvGCPProjectID = "FOODFUND_GCP_PROJECT_ID"

	EnvPubSubDomainTopic   = "FOODFUND_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubSettlementSub = "FOODFUND_PUBSUB_SETTLEMENT_SUBSCRIPTION"

	EnvWorkflowMaxAuditResubmissions     = "FOODFUND_WORKFLOW_MAX_AUDIT_RESUBMISSIONS"
	EnvWorkflowMaxDisbursementRejections = "FOODFUND_WORKFLOW_MAX_DISBURSEMENT_REJECTIONS"
	EnvWorkflowSequentialPhases          = "FOODFUND_WORKFLOW_SEQUENTIAL_PHASES"
	EnvWorkflowCancelRoles               = "FOODFUND_WORKFLOW_CANCEL_ROLES"
	EnvWorkflowSweepThreshold            = "FOODFUND_WORKFLOW_SWEEP_THRESHOLD"
)
