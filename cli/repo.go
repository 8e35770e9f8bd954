package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/classify"
	"github.com/javanhut/ivaldi-mutations/internal/colors"
	"github.com/javanhut/ivaldi-mutations/internal/config"
	"github.com/javanhut/ivaldi-mutations/internal/dag"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/phase"
	"github.com/javanhut/ivaldi-mutations/internal/store"
	"github.com/javanhut/ivaldi-mutations/internal/visibility"
)

// Repository format recorded in the database config bucket by init.
const (
	formatKey     = "format"
	formatVersion = "1"
)

// repo bundles the open state of one repository.
type repo struct {
	root   string
	cfg    *config.Config
	db     *store.SharedDB
	store  *mutation.Store
	vis    *visibility.BoltSet
	phases *phase.BoltMap
	graph  *dag.BoltGraph
}

// findRoot walks up from the working directory to the first directory
// holding a repository.
func findRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, config.RepoDirName)); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("not in an Ivaldi repository (no .ivaldi directory found)")
		}
		dir = parent
	}
}

func openRepo() (*repo, error) {
	root, err := findRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	colors.SetColorEnabled(colors.IsColorEnabled() && cfg.ColorUI())

	db, err := store.GetSharedDB(filepath.Join(root, config.RepoDirName))
	if err != nil {
		return nil, err
	}
	r := &repo{root: root, cfg: cfg, db: db}
	if err := r.load(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *repo) load() error {
	if v, err := r.db.GetConfig(formatKey); err == nil && v != formatVersion {
		return fmt.Errorf("unsupported repository format %q (this ivm reads format %s)", v, formatVersion)
	}

	var err error
	r.store, err = mutation.Open(r.db.DB, mutation.Options{Disabled: !r.cfg.RecordEnabled()})
	if err != nil {
		return fmt.Errorf("failed to load mutation log: %w", err)
	}
	if r.vis, err = visibility.OpenBoltSet(r.db.DB); err != nil {
		return err
	}
	if r.phases, err = phase.OpenBoltMap(r.db.DB, phase.Draft); err != nil {
		return err
	}
	if r.graph, err = dag.OpenBoltGraph(r.db.DB); err != nil {
		return err
	}
	return nil
}

func (r *repo) Close() error {
	return r.db.Close()
}

func (r *repo) classifier() *classify.Classifier {
	return classify.New(r.store.Snapshot(), r.vis, r.phases, r.graph)
}

// known returns every commit id the repository has heard of.
func (r *repo) known() []cas.Hash {
	set := cas.NewSet(r.graph.Commits()...)
	for _, id := range r.store.Snapshot().Commits() {
		set.Add(id)
	}
	return set.Sorted()
}

// resolve turns a hex prefix into a commit id.
func (r *repo) resolve(arg string) (cas.Hash, error) {
	return cas.Resolve(arg, r.known())
}

func (r *repo) resolveAll(args []string) ([]cas.Hash, error) {
	out := make([]cas.Hash, 0, len(args))
	for _, a := range args {
		id, err := r.resolve(a)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// label renders a commit id for output, dimmed when hidden.
func (r *repo) label(id cas.Hash, full bool) string {
	s := id.Short()
	if full {
		s = id.String()
	}
	if !r.vis.IsVisible(id) {
		return colors.Hidden(s + " (hidden)")
	}
	return colors.CommitID(s)
}
