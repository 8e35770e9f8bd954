package cli

import (
	"fmt"

	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/phase"
	"github.com/spf13/cobra"
)

var hideCmd = &cobra.Command{
	Use:   "hide <commit>...",
	Short: "Hide commits from default queries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		ids, err := r.resolveAll(args)
		if err != nil {
			return err
		}
		if err := r.vis.Hide(ids...); err != nil {
			return err
		}
		fmt.Printf("Hid %d commit(s)\n", len(ids))
		return nil
	},
}

var revealCmd = &cobra.Command{
	Use:   "reveal <commit>...",
	Short: "Make hidden commits visible again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		ids, err := r.resolveAll(args)
		if err != nil {
			return err
		}
		if err := r.vis.Reveal(ids...); err != nil {
			return err
		}
		fmt.Printf("Revealed %d commit(s)\n", len(ids))
		return nil
	},
}

var phaseCmd = &cobra.Command{
	Use:   "phase <commit>... [--set public|draft|secret]",
	Short: "Show or set commit phases",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		ids, err := r.resolveAll(args)
		if err != nil {
			return err
		}
		if phaseSet != "" {
			p, err := phase.Parse(phaseSet)
			if err != nil {
				return err
			}
			if err := r.phases.Set(p, ids...); err != nil {
				return err
			}
		}
		for _, id := range ids {
			fmt.Printf("%s: %s\n", r.label(id, false), colors.Phase(r.phases.Phase(id).String()))
		}
		return nil
	},
}

var phaseSet string

func init() {
	phaseCmd.Flags().StringVar(&phaseSet, "set", "", "Set the phase instead of showing it")
}
