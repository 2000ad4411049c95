// Package config provides configuration management for the vitals manager.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file, with defaults declared as struct tags.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings,
// divided into subsections:
//   - Server: HTTP server settings (port, API key, metrics toggle)
//   - Database: record store connection (sqlite or mysql)
//   - Storage: S3/MinIO credentials and export bucket settings
//   - Log: Logging level and format
//   - Vendor: sync feed API credentials and window
//   - Import: engine tuning (chunk size, retries, queue depth)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
