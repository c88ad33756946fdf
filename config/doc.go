// Package config loads ragnar's configuration: defaults, then a YAML file,
// then RAGNAR_* environment overrides. Per-run tunables for the workflows
// are derived from the loaded sections (RAGConfig.Options and friends), so
// no workflow package reads configuration globally.
//
// FileWatcher polls the config file and lets the server reload the log
// level and the model price table without a restart.
package config
