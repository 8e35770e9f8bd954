package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/javanhut/ivaldi-mutations/internal/config"
	"github.com/javanhut/ivaldi-mutations/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ivm",
	Short: "ivm records how commits are rewritten",
	Long: `ivm keeps the mutation history of an Ivaldi repository: which commits
were amended, rebased, folded or split into which, independent of the
parent graph. It answers provenance queries and reports commits left
unstable by a rewrite (orphan, divergent, extinct).`,
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize",
	Long:  "Initializes mutation tracking in the current directory",
	Args:  cobra.NoArgs,
	Run:   initCommand,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)

	// Recording and repository state
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(hideCmd, revealCmd, phaseCmd)

	// Queries
	rootCmd.AddCommand(predecessorsCmd, successorsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(debugMutationCmd)

	// Peer exchange
	rootCmd.AddCommand(exportCmd, importCmd)

	rootCmd.AddCommand(configCmd)
}

func initCommand(cmd *cobra.Command, args []string) {
	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("Get working directory: %v", err)
	}

	err = os.Mkdir(config.RepoDirName, os.ModePerm)
	if err != nil && !os.IsExist(err) {
		log.Fatal(err)
	}

	db, err := store.GetSharedDB(config.RepoDirName)
	if err != nil {
		log.Fatalf("Failed to create mutation database: %v", err)
	}
	defer db.Close()

	if err := db.PutConfig(formatKey, formatVersion); err != nil {
		log.Fatalf("Failed to write repository format: %v", err)
	}

	fmt.Printf("Initialized mutation tracking in %s\n", workDir)
}
