package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/exchange"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [commit]...",
	Short: "Write mutation entries for a peer",
	Long: `Writes the mutation entries behind the given commits, or every entry when
none are given, as a compressed bundle or as YAML.

Examples:
  ivm export -o rewrites.ivmb
  ivm export --yaml 81bd02`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Apply mutation entries received from a peer",
	Long: `Applies bundles or YAML files. Entries already present are skipped, so
importing the same file twice is harmless.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var (
	exportOut  string
	exportYAML bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportYAML, "yaml", false, "Write YAML instead of a binary bundle")
}

func runExport(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	snap := r.store.Snapshot()
	entries := snap.Entries()
	if len(args) > 0 {
		heads, err := r.resolveAll(args)
		if err != nil {
			return err
		}
		if entries, err = exchange.Collect(snap, heads); err != nil {
			return err
		}
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if exportYAML {
		err = exchange.WriteYAML(bw, entries)
	} else {
		err = exchange.WriteBundle(bw, entries)
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Printf("Exported %d entries to %s\n", len(entries), exportOut)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	var bundles [][]byte
	var text []mutation.Entry
	for _, path := range args {
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			es, err := exchange.ReadYAML(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			text = append(text, es...)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		bundles = append(bundles, data)
	}

	// YAML input goes through the same path as bundles.
	if len(text) > 0 {
		b, err := exchange.EncodeBundle(text)
		if err != nil {
			return err
		}
		bundles = append(bundles, b)
	}

	im := &exchange.Importer{Store: r.store}
	res, err := im.Import(cmd.Context(), bundles...)
	fmt.Printf("%s %d new, %d already present, %d rejected\n",
		colors.SuccessText("Imported"), res.Added, res.Duplicates, res.Rejected)
	return err
}
