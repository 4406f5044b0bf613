package config

const (
	defaultLibraryDir          = "~/audiobooks"
	defaultStateDir            = "~/.local/share/shelf"
	defaultLogDir              = "~/.local/share/shelf/logs"
	defaultAPIBind             = "127.0.0.1:7512"
	defaultScannerWorkers      = 4
	defaultHeartbeatInterval   = 30
	defaultSubscriberBuffer    = 64
	defaultMaxPending          = 64
	defaultLogRetentionDays    = 60
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLookupBaseURL       = "https://openlibrary.org"
	defaultLookupTimeout       = 15
	defaultNotifyTimeout       = 10
)

var defaultSupportedExtensions = []string{".m4b", ".m4a", ".mp3", ".flac", ".ogg", ".opus"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Scanner: Scanner{
			Workers:             defaultScannerWorkers,
			SupportedExtensions: append([]string(nil), defaultSupportedExtensions...),
		},
		Stream: Stream{
			HeartbeatInterval: defaultHeartbeatInterval,
			SubscriberBuffer:  defaultSubscriberBuffer,
		},
		Operations: Operations{
			MaxPending:       defaultMaxPending,
			LogRetentionDays: defaultLogRetentionDays,
		},
		Lookup: Lookup{
			Enabled:        false,
			BaseURL:        defaultLookupBaseURL,
			TimeoutSeconds: defaultLookupTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Operations:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
