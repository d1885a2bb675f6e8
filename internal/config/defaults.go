package config

const (
	defaultManifestURL          = "http://localhost:5000/manifest/family.json"
	defaultGroup                = "family"
	defaultPollIntervalMinutes  = 60
	defaultManifestRetries      = 5
	defaultFetchRetries         = 3
	defaultMinFreeGB            = 5
	defaultStorageDir           = "~/media/movies"
	defaultLogDir               = "~/.local/share/jellysync/logs"
	defaultStateDir             = "~/.local/share/jellysync/state"
	defaultAPIBind              = "127.0.0.1:7563"
	defaultTransferBinary       = "webtorrent"
	defaultFetchTimeoutSeconds  = 600
	defaultSeedDiscoverySeconds = 300
	defaultSeedPollMillis       = 200
	defaultJellyfinURL          = "http://127.0.0.1:8096"
	defaultServerBind           = "0.0.0.0:5000"
	defaultManifestDir          = "~/.local/share/jellysync/manifests"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Sync: Sync{
			ManifestURL:         defaultManifestURL,
			Group:               defaultGroup,
			PollIntervalMinutes: defaultPollIntervalMinutes,
			ManifestRetries:     defaultManifestRetries,
			FetchRetries:        defaultFetchRetries,
			MinFreeGB:           defaultMinFreeGB,
		},
		Paths: Paths{
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
			APIBind:    defaultAPIBind,
		},
		Transfer: Transfer{
			Binary:                      defaultTransferBinary,
			FetchTimeoutSeconds:         defaultFetchTimeoutSeconds,
			SeedDiscoveryTimeoutSeconds: defaultSeedDiscoverySeconds,
			SeedPollIntervalMillis:      defaultSeedPollMillis,
		},
		Jellyfin: Jellyfin{
			URL: defaultJellyfinURL,
		},
		Server: Server{
			Bind:        defaultServerBind,
			ManifestDir: defaultManifestDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
