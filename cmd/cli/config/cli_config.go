package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type CLIConfig struct {
	ServerURL     string      `mapstructure:"server_url"`
	DefaultMetric string      `mapstructure:"default_metric"`
	OutputFormat  string      `mapstructure:"output_format"`
	Preferences   Preferences `mapstructure:"preferences"`
}

type Preferences struct {
	ColorOutput  bool   `mapstructure:"color_output"`
	TableFormat  string `mapstructure:"table_format"`
	TimeZone     string `mapstructure:"timezone"`
	ProgressBars bool   `mapstructure:"progress_bars"`
}

func LoadConfig(cfgFile string) (*CLIConfig, error) {
	config := &CLIConfig{
		ServerURL:     "http://localhost:8080",
		DefaultMetric: "cosine",
		OutputFormat:  "text",
		Preferences: Preferences{
			ColorOutput:  true,
			TableFormat:  "simple",
			TimeZone:     "UTC",
			ProgressBars: true,
		},
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		configPath := filepath.Join(home, ".flsim")
		viper.AddConfigPath(configPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FLSIM")
	viper.AutomaticEnv()

	viper.SetDefault("server_url", config.ServerURL)
	viper.SetDefault("default_metric", config.DefaultMetric)
	viper.SetDefault("output_format", config.OutputFormat)
	viper.SetDefault("preferences.color_output", config.Preferences.ColorOutput)
	viper.SetDefault("preferences.table_format", config.Preferences.TableFormat)
	viper.SetDefault("preferences.timezone", config.Preferences.TimeZone)
	viper.SetDefault("preferences.progress_bars", config.Preferences.ProgressBars)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

func SaveConfig(config *CLIConfig, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		configDir := filepath.Join(home, ".flsim")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		cfgFile = filepath.Join(configDir, "config.yaml")
	}

	viper.Set("server_url", config.ServerURL)
	viper.Set("default_metric", config.DefaultMetric)
	viper.Set("output_format", config.OutputFormat)
	viper.Set("preferences", config.Preferences)

	return viper.WriteConfigAs(cfgFile)
}

func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".flsim", "config.yaml")
}
