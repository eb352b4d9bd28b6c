package config

const (
	defaultConfigPath            = "~/.config/embysub/config.toml"
	defaultDataDir               = "~/.local/share/embysub"
	defaultLogDir                = "~/.local/share/embysub/logs"
	defaultDatabaseFile          = "embysub.db"
	defaultServerBind            = "0.0.0.0:8000"
	defaultAPIPrefix             = "/api/v1"
	defaultLoginRateLimit        = 10
	defaultLoginRateWindow       = 60
	defaultShutdownTimeout       = 5
	defaultTokenTTLMinutes       = 60 * 24 * 7
	defaultTokenIssuer           = "embysub"
	defaultEmbyURL               = "http://localhost:8096"
	defaultEmbyClientName        = "EmbySubscriptionManager"
	defaultEmbyDeviceName        = "Web"
	defaultEmbyDeviceID          = "emby-sub-manager-001"
	defaultEmbyClientVersion     = "1.0.0"
	defaultEmbyTimeoutSeconds    = 15
	defaultTMDBBaseURL           = "https://api.themoviedb.org/3"
	defaultTMDBImageBaseURL      = "https://image.tmdb.org/t/p"
	defaultTMDBLanguage          = "zh-CN"
	defaultTMDBTimeoutSeconds    = 10
	defaultTMDBRequestsPerSecond = 20
	defaultReconcileInterval     = 120
	defaultResolverConcurrency   = 4
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 20
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind:            defaultServerBind,
			APIPrefix:       defaultAPIPrefix,
			LoginRateLimit:  defaultLoginRateLimit,
			LoginRateWindow: defaultLoginRateWindow,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Auth: Auth{
			TokenTTLMinutes: defaultTokenTTLMinutes,
			Issuer:          defaultTokenIssuer,
		},
		Emby: Emby{
			URL:            defaultEmbyURL,
			ClientName:     defaultEmbyClientName,
			DeviceName:     defaultEmbyDeviceName,
			DeviceID:       defaultEmbyDeviceID,
			ClientVersion:  defaultEmbyClientVersion,
			TimeoutSeconds: defaultEmbyTimeoutSeconds,
		},
		TMDB: TMDB{
			BaseURL:           defaultTMDBBaseURL,
			ImageBaseURL:      defaultTMDBImageBaseURL,
			Language:          defaultTMDBLanguage,
			TimeoutSeconds:    defaultTMDBTimeoutSeconds,
			RequestsPerSecond: defaultTMDBRequestsPerSecond,
		},
		Reconcile: Reconcile{
			IntervalSeconds: defaultReconcileInterval,
			RunOnStart:      true,
		},
		Resolver: Resolver{
			Concurrency: defaultResolverConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			RequestCreated:   true,
			RequestApproved:  true,
			RequestCompleted: true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
