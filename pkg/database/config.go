package database

// LoadConfigFromEnv builds a pool Config from an already-resolved
// DATABASE_URL, layering the reference's connection-pool defaults on
// top. It reads no environment variables itself: the pool settings are
// always DefaultConfig's values.
func LoadConfigFromEnv(databaseURL string) Config {
	return DefaultConfig(databaseURL)
}
