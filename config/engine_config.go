// Package config loads the engine's construction-time configuration and
// pipeline declarations from the outside world: viper-backed
// configuration files/environment/flags and YAML declaration documents.
// It depends on the root engine package (for EngineConfig and Pipeline),
// never the other way around, so the engine core stays free of any file
// format or flag-parsing concern.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	engine "github.com/siteforge/pipeline"
	"github.com/siteforge/pipeline/collaborators"
)

// engineConfigFile is the viper-bound, validator-tagged shape of the
// engine's recognized configuration keys, using the project's snake_case
// YAML convention.
type engineConfigFile struct {
	FailureLogLevel       string   `mapstructure:"failure_log_level" validate:"omitempty,oneof=debug info warn error none"`
	CleanMode             string   `mapstructure:"clean_mode" validate:"omitempty,oneof=none self full"`
	Analyzers             []string `mapstructure:"analyzers"`
	UseStringContentFiles bool     `mapstructure:"use_string_content_files"`
}

// LoadEngineConfig binds and validates an engine.EngineConfig from v. A nil
// v reads defaults only, equivalent to an empty configuration file.
func LoadEngineConfig(v *viper.Viper) (engine.EngineConfig, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("failure_log_level", "error")
	v.SetDefault("clean_mode", "none")

	var file engineConfigFile
	if err := v.Unmarshal(&file); err != nil {
		return engine.EngineConfig{}, fmt.Errorf("config: unmarshal engine config: %w", err)
	}

	if err := validator.New().Struct(file); err != nil {
		return engine.EngineConfig{}, fmt.Errorf("config: invalid engine config: %w", err)
	}

	return engine.EngineConfig{
		FailureLogLevel:       collaborators.ParseLevel(file.FailureLogLevel),
		CleanMode:             parseCleanMode(file.CleanMode),
		Analyzers:             file.Analyzers,
		UseStringContentFiles: file.UseStringContentFiles,
	}, nil
}

func parseCleanMode(s string) engine.CleanMode {
	switch strings.ToLower(s) {
	case "self":
		return engine.CleanSelf
	case "full":
		return engine.CleanFull
	default:
		return engine.CleanNone
	}
}
