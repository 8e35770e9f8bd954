package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/visibility"
	"github.com/spf13/cobra"
)

var predecessorsCmd = &cobra.Command{
	Use:   "predecessors <commit>",
	Short: "List the commits a commit was rewritten from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWalk(args[0], (*mutation.Snapshot).Predecessors)
	},
}

var successorsCmd = &cobra.Command{
	Use:   "successors <commit>",
	Short: "List the commits a commit was rewritten into",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWalk(args[0], (*mutation.Snapshot).Successors)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [commit]...",
	Short: "Show obsolescence and instability of commits",
	Long: `Shows phase, visibility and mutation status of the given commits. With
no arguments, lists every visible commit that is unstable.`,
	RunE: runStatus,
}

var debugMutationCmd = &cobra.Command{
	Use:   "debugmutation <commit>",
	Short: "Dump the full provenance chain of a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		id, err := r.resolve(args[0])
		if err != nil {
			return err
		}
		return r.store.Snapshot().Dump(os.Stdout, id)
	},
}

var (
	walkDepth  int
	walkHidden bool
	statusAll  bool
)

func init() {
	for _, c := range []*cobra.Command{predecessorsCmd, successorsCmd} {
		c.Flags().IntVarP(&walkDepth, "depth", "d", mutation.Unlimited, "Levels to walk (-1 for all)")
		c.Flags().BoolVar(&walkHidden, "hidden", false, "Include hidden commits")
	}
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "List every known commit")
}

func runWalk(arg string, walk func(*mutation.Snapshot, cas.Hash, int) ([]cas.Hash, error)) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := r.resolve(arg)
	if err != nil {
		return err
	}
	ids, err := walk(r.store.Snapshot(), id, walkDepth)
	if err != nil {
		return err
	}
	if !walkHidden {
		ids = visibility.Filter(r.vis, ids)
	}
	for _, x := range ids {
		fmt.Println(r.label(x, true))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	ids := r.known()
	if len(args) > 0 {
		if ids, err = r.resolveAll(args); err != nil {
			return err
		}
	}

	c := r.classifier()
	shown := 0
	for _, id := range ids {
		st, err := c.Status(id)
		if err != nil {
			return err
		}
		troubles := st.Troubles()
		if len(args) == 0 && !statusAll && (!st.Visible || len(troubles) == 0) {
			continue
		}
		shown++

		var flags []string
		if st.Obsolete {
			flags = append(flags, colors.Dim("obsolete"))
		}
		if st.Extinct {
			flags = append(flags, colors.Dim("extinct"))
		}
		for _, t := range troubles {
			flags = append(flags, colors.Trouble(t))
		}
		line := fmt.Sprintf("%s %s", r.label(id, false), colors.Phase(st.Phase.String()))
		if len(flags) > 0 {
			line += " " + strings.Join(flags, " ")
		}
		fmt.Println(line)

		if st.ContentDivergent {
			with, err := c.DivergentWith(id)
			if err != nil {
				return err
			}
			fmt.Printf("  divergent with: %s\n", shortList(with))
		}
	}
	if shown == 0 && len(args) == 0 {
		fmt.Println(colors.SuccessText("No unstable commits"))
	}
	return nil
}
