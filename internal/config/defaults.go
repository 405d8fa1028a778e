package config

const (
	defaultDataDir = "~/.local/share/mivvo"
	defaultLogDir  = "~/.local/share/mivvo/logs"
	defaultAPIBind = "127.0.0.1:7519"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultProviderBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultVisionModel               = "google/gemini-3-flash-preview"
	defaultAudioModel                = "google/gemini-3-flash-preview"
	defaultProviderTimeoutSeconds    = 90
	defaultProviderMaxRetries        = 3
	defaultProviderRetryDelaySeconds = 2

	defaultPricePaint  = "15"
	defaultPriceDamage = "20"
	defaultPriceAudio  = "15"
	defaultPriceValue  = "10"
	defaultPriceFull   = "35"

	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultReportTimeoutSeconds = 600
	defaultWorkers              = 2

	defaultNotifyRequestTimeout = 10
	defaultResultCacheMaxAge    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Providers: Providers{
			Vision: Provider{
				BaseURL:           defaultProviderBaseURL,
				Model:             defaultVisionModel,
				TimeoutSeconds:    defaultProviderTimeoutSeconds,
				MaxRetries:        defaultProviderMaxRetries,
				RetryDelaySeconds: defaultProviderRetryDelaySeconds,
			},
			VisionFallback: Provider{
				BaseURL:           defaultProviderBaseURL,
				TimeoutSeconds:    defaultProviderTimeoutSeconds,
				MaxRetries:        defaultProviderMaxRetries,
				RetryDelaySeconds: defaultProviderRetryDelaySeconds,
			},
			Audio: Provider{
				BaseURL:           defaultProviderBaseURL,
				Model:             defaultAudioModel,
				TimeoutSeconds:    defaultProviderTimeoutSeconds,
				MaxRetries:        defaultProviderMaxRetries,
				RetryDelaySeconds: defaultProviderRetryDelaySeconds,
			},
			AudioFallback: Provider{
				BaseURL:           defaultProviderBaseURL,
				TimeoutSeconds:    defaultProviderTimeoutSeconds,
				MaxRetries:        defaultProviderMaxRetries,
				RetryDelaySeconds: defaultProviderRetryDelaySeconds,
			},
		},
		Pricing: Pricing{
			Paint:  defaultPricePaint,
			Damage: defaultPriceDamage,
			Audio:  defaultPriceAudio,
			Value:  defaultPriceValue,
			Full:   defaultPriceFull,
		},
		Workflow: Workflow{
			QueuePollInterval:    defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			HeartbeatInterval:    defaultHeartbeatInterval,
			HeartbeatTimeout:     defaultHeartbeatTimeout,
			ReportTimeoutSeconds: defaultReportTimeoutSeconds,
			Workers:              defaultWorkers,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Errors:         true,
		},
		ResultCache: ResultCache{
			Enabled:   true,
			MaxAgeDay: defaultResultCacheMaxAge,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
