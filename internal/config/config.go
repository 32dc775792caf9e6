package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	// DataDir is the app-private root for the database and saved images.
	DataDir    string
	GalleryDir string
	// DefaultLanguage is the BCP 47 language tag the describe instruction asks
	// responses in when a session does not override it.
	DefaultLanguage string
	// Debug enables verbose logging and debug endpoints
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	dataDir := getEnv("LUMEN_DATA_DIR", defaultDataDir())

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		DataDir:         dataDir,
		GalleryDir:      getEnv("LUMEN_GALLERY_DIR", filepath.Join(dataDir, "gallery")),
		DefaultLanguage: getEnv("LUMEN_LANGUAGE", "en"),
		Debug:           getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// DatabasePath returns the sqlite file location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "lumen.db")
}

// ImagesDir returns the app-private image directory under the data dir.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen"
	}
	return filepath.Join(home, ".lumen")
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
