package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clewd-gateway/wiregate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the gateway's configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for upstream details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate example YAML configuration",
	Long:  `Generate an example YAML configuration file.`,
	RunE:  runConfigGenerate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configGenerateCmd)

	configGenerateCmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("Gateway Configuration Setup")
	color.Yellow("Follow the prompts to configure your upstream provider.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nUpstream Base URL (e.g., https://api.anthropic.com): ")

	baseURL, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading base URL: %w", err)
	}
	baseURL = strings.TrimSpace(baseURL)

	fmt.Print("Upstream API Key: ")

	apiKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading API key: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)

	fmt.Print("Auth Style (x-api-key / bearer) [x-api-key]: ")

	authStyle, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading auth style: %w", err)
	}
	authStyle = strings.TrimSpace(authStyle)
	if authStyle == "" {
		authStyle = config.DefaultAuthStyle
	}

	fmt.Print("Gateway API Key (optional, protects this gateway's own endpoints): ")

	gatewayKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading gateway API key: %w", err)
	}
	gatewayKey = strings.TrimSpace(gatewayKey)

	cfg := &config.Config{
		Host:   config.DefaultHost,
		Port:   config.DefaultPort,
		APIKey: gatewayKey,
		Upstream: config.UpstreamConfig{
			BaseURL:   baseURL,
			APIKey:    apiKey,
			AuthStyle: authStyle,
		},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the gateway with: wiregate start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'wiregate config init' or 'wiregate config generate' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	configType := "JSON"
	if cfgMgr.HasYAML() {
		configType = "YAML"
	}

	fmt.Printf("  %-15s: %s\n", "Format", configType)

	fmt.Println("\nUpstream:")
	fmt.Printf("  %-15s: %s\n", "Base URL", cfg.Upstream.BaseURL)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.Upstream.APIKey))
	fmt.Printf("  %-15s: %s\n", "Auth Style", cfg.Upstream.AuthStyle)

	fmt.Println("\nGateway options:")
	fmt.Printf("  %-15s: %t\n", "Web Search", cfg.Gateway.WebSearch)
	fmt.Printf("  %-15s: %t\n", "Use Real Roles", cfg.Gateway.UseRealRoles)
	if cfg.Gateway.CustomSystem != "" {
		fmt.Printf("  %-15s: %s\n", "Custom System", cfg.Gateway.CustomSystem)
	}
	if cfg.Gateway.DebugLogDir != "" {
		fmt.Printf("  %-15s: %s\n", "Debug Log Dir", cfg.Gateway.DebugLogDir)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return errors.New("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var validationErrors []string

	if cfg.Upstream.BaseURL == "" {
		validationErrors = append(validationErrors, "upstream base URL is required")
	}
	if cfg.Upstream.APIKey == "" {
		validationErrors = append(validationErrors, "upstream API key is required")
	}
	if cfg.Upstream.AuthStyle != "bearer" && cfg.Upstream.AuthStyle != "x-api-key" {
		validationErrors = append(validationErrors, fmt.Sprintf("upstream auth style %q is neither bearer nor x-api-key", cfg.Upstream.AuthStyle))
	}

	if len(validationErrors) > 0 {
		color.Red("Configuration validation failed:")

		for _, err := range validationErrors {
			fmt.Printf("  - %s\n", err)
		}

		return errors.New("configuration validation failed")
	}

	color.Green("Configuration is valid!")

	return nil
}

func runConfigGenerate(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if cfgMgr.Exists() && !force {
		configType := "JSON"
		if cfgMgr.HasYAML() {
			configType = "YAML"
		}

		color.Yellow("Configuration file already exists (%s format): %s", configType, cfgMgr.GetPath())
		color.Cyan("Use --force to overwrite, or 'wiregate config show' to view current config")

		return nil
	}

	if err := cfgMgr.CreateExampleYAML(); err != nil {
		return fmt.Errorf("failed to create example configuration: %w", err)
	}

	color.Green("Example YAML configuration created: %s", cfgMgr.GetYAMLPath())
	color.Cyan("\nNext steps:")
	fmt.Println("1. Edit the configuration file to add your upstream API key")
	fmt.Println("2. Set auth_style to match what your upstream expects (x-api-key or bearer)")
	fmt.Println("3. Run 'wiregate config validate' to check your configuration")
	fmt.Println("4. Start the gateway with 'wiregate start'")

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
