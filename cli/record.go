package cli

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/phase"
	"github.com/javanhut/ivaldi-mutations/internal/rewrite"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Register a commit in the parent graph",
	Long: `Registers a commit with its parents so that orphan detection can walk
the graph. The commit id is derived from the parents, message, author and
time, and printed on success.

Examples:
  ivm commit "initial"
  ivm commit --parent 3f2a9c "add parser"`,
	Args: cobra.ExactArgs(1),
	RunE: runCommit,
}

var recordCmd = &cobra.Command{
	Use:   "record <successor>...",
	Short: "Record a rewrite of commits",
	Long: `Records that the given successors replaced the --pred commits. One
entry is written per successor; several successors make a split. The
predecessors are hidden unless a visible commit still builds on them.

Examples:
  ivm record --op amend --pred 3f2a9c 81bd02
  ivm record --op fold --pred 3f2a9c --pred 77e0aa 81bd02
  ivm record --op split --pred 3f2a9c 81bd02 c0ffee`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

var (
	commitParents []string
	commitPhase   string

	recordOp    string
	recordPreds []string
	recordExtra []string
)

func init() {
	commitCmd.Flags().StringArrayVarP(&commitParents, "parent", "p", nil, "Parent commit (repeatable)")
	commitCmd.Flags().StringVar(&commitPhase, "phase", "draft", "Phase of the new commit")

	recordCmd.Flags().StringVar(&recordOp, "op", string(mutation.OpAmend), "Operation that produced the successors")
	recordCmd.Flags().StringArrayVar(&recordPreds, "pred", nil, "Predecessor commit (repeatable, in order)")
	recordCmd.Flags().StringArrayVar(&recordExtra, "extra", nil, "Extra key=value metadata (repeatable)")
}

func runCommit(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	ph, err := phase.Parse(commitPhase)
	if err != nil {
		return err
	}
	parents, err := r.resolveAll(commitParents)
	if err != nil {
		return err
	}
	author, err := r.cfg.Author()
	if err != nil {
		return err
	}
	now, err := r.cfg.Clock()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, p := range parents {
		buf.Write(p[:])
	}
	fmt.Fprintf(&buf, "%s\x00%s\x00%d", author, args[0], now().UnixNano())
	id := cas.SumB3(buf.Bytes())

	if err := r.graph.Add(id, parents...); err != nil {
		return fmt.Errorf("failed to add commit: %w", err)
	}
	if err := r.phases.Set(ph, id); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", colors.SuccessText("Created"), colors.CommitID(id.String()))
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	if !r.store.Enabled() {
		log.Printf("Warning: mutation.record is false, nothing recorded")
		return nil
	}

	succ, err := r.resolveAll(args)
	if err != nil {
		return err
	}
	preds, err := r.resolveAll(recordPreds)
	if err != nil {
		return err
	}
	extra := make(map[string]string, len(recordExtra))
	for _, kv := range recordExtra {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --extra %q (want key=value)", kv)
		}
		extra[k] = v
	}
	user, err := r.cfg.Author()
	if err != nil {
		return err
	}
	now, err := r.cfg.Clock()
	if err != nil {
		return err
	}

	rec := &rewrite.Recorder{
		Store: r.store,
		Vis:   r.vis,
		Graph: r.graph,
		User:  user,
		Now:   now,
	}
	res, err := rec.Record(cmd.Context(), rewrite.Rewrite{
		Op:           mutation.Op(recordOp),
		Predecessors: preds,
		Successors:   succ,
		Extra:        extra,
	})
	if err != nil {
		return err
	}

	for _, e := range res.Entries {
		fmt.Printf("%s %s <- %s\n", colors.Op(string(e.Op)), colors.CommitID(e.Successor.Short()), shortList(e.Predecessors))
	}
	for _, id := range res.Kept {
		fmt.Printf("%s %s is still needed by its descendants\n", colors.WarningText("Kept"), colors.CommitID(id.Short()))
	}
	return nil
}

func shortList(ids []cas.Hash) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = colors.CommitID(id.Short())
	}
	return strings.Join(parts, ", ")
}
