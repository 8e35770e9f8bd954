package cli

import (
	"fmt"
	"os"

	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set configuration options",
	Long: `Get and set ivm configuration options.

Configuration can be set at two levels:
- Global (~/.ivmconfig) - applies to all repositories
- Repository (.ivaldi/ivm.json) - applies to current repository only

Examples:
  ivm config user.name "Your Name"
  ivm config user.email "you@example.com"
  ivm config --global mutation.record false
  ivm config mutation.date "0 0"
  ivm config --list`,
	RunE: runConfig,
}

var (
	configGlobal bool
	configList   bool
)

func init() {
	configCmd.Flags().BoolVar(&configGlobal, "global", false, "Use global config file")
	configCmd.Flags().BoolVar(&configList, "list", false, "List all configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	root, err := findRoot()
	if err != nil {
		if !configGlobal && len(args) == 2 {
			return err
		}
		// Outside a repository only the global file applies.
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	if configList {
		return listConfig(root)
	}
	switch len(args) {
	case 1:
		return getConfigValue(root, args[0])
	case 2:
		return setConfigValue(root, args[0], args[1], configGlobal)
	}
	return fmt.Errorf("invalid usage. See: ivm config --help")
}

func listConfig(root string) error {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, key := range config.Keys {
		v, err := cfg.Get(key)
		if err != nil {
			return err
		}
		if v == "" {
			fmt.Printf("  %s = %s\n", key, colors.Dim("(not set)"))
			continue
		}
		fmt.Printf("  %s = %s\n", key, colors.InfoText(v))
	}
	return nil
}

func getConfigValue(root, key string) error {
	value, err := config.GetValue(root, key)
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Printf("%s is %s\n", key, colors.Dim("(not set)"))
	} else {
		fmt.Println(value)
	}
	return nil
}

func setConfigValue(root, key, value string, global bool) error {
	if err := config.SetValue(root, key, value, global); err != nil {
		return err
	}

	scope := "repository"
	if global {
		scope = "global"
	}
	fmt.Printf("%s %s config: %s = %s\n",
		colors.SuccessText("Set"),
		scope,
		colors.Bold(key),
		colors.InfoText(value))
	return nil
}
