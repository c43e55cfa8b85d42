// Package config provides configuration management for the QLink server.
//
// The config package handles:
//   - Loading game configurations from JSON files
//   - Validation through engine.ValidateGameConfig
//   - Default configuration management per mode
//   - Configuration discovery and listing
//
// Configuration Format:
//
// Game configurations are stored as JSON files in the configs directory,
// one file per configuration. The file name without ".json" is the config
// id used when creating sessions. Each configuration defines:
//   - Mode (Single or Duo) and grid dimensions
//   - Number of tile forms, clock length and match score
//   - Power-up spawn interval, effect durations and the weighted kind table
//
// Available Configurations:
//   - classic: single player, the default
//   - duo: two players sharing one board
//   - blitz: small single player board with a short clock
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameConfig, err := manager.LoadConfig("duo")
//	defaultConfig := manager.GetDefault()
//	duoDefault := manager.DefaultFor(engine.ModeDuo)
//	configs, err := manager.ListConfigs()
//
// When no classic.json exists the manager falls back to the first valid file,
// and when the directory holds none to engine.DefaultConfig.
package config
