// Package config defines configuration structures for the Arandu core.
//
// Configuration can be provided via:
//   - YAML configuration file
//   - Environment variables (ARANDU_ prefix)
//
// The core consumes the model root directories, the server executable
// root, and per-model launch settings (custom arguments, environment
// overrides, bind host/port). The process supervisor writes the config
// back when it promotes a fallback executable version to active.
package config
