package config

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// DefaultRPCEndpoint is the public Solana mainnet endpoint.
const DefaultRPCEndpoint = "https://api.mainnet-beta.solana.com"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RPC: RPC{
			Limits: Limits{
				TimeoutSeconds:    30,
				MaxConnections:    10,
				RateLimit:         145,
				RateWindowSeconds: 30,
				MaxAttempts:       3,
				MinBackoffMS:      1000,
				MaxBackoffMS:      10000,
			},
			Endpoints: []string{DefaultRPCEndpoint},
			BatchSize: 100,
		},
		HTTP: HTTP{
			Limits: Limits{
				TimeoutSeconds:    60,
				MaxConnections:    50,
				RateLimit:         145,
				RateWindowSeconds: 30,
				MaxAttempts:       10,
				MinBackoffMS:      4000,
				MaxBackoffMS:      32000,
			},
			IPFSGateway: "https://ipfs.io/ipfs/",
		},
		Cache: Cache{
			Backend:                 BackendFile,
			Dir:                     "cache",
			SnapshotIntervalSeconds: 20,
		},
		Output: Output{
			CSV: "snapshot.csv",
		},
		ClickHouse: ClickHouse{
			Database: "nftsnap",
		},
		Log: Log{
			Level:    "info",
			Encoding: "console",
		},
	}
}
