package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/GasparDanilo/obsidian-task-master/internal/journal"
	"github.com/GasparDanilo/obsidian-task-master/internal/reconcile"
	"github.com/GasparDanilo/obsidian-task-master/internal/vault"
	"github.com/GasparDanilo/obsidian-task-master/pkg/types"
)

// resolveVault returns the vault path, falling back to the path recorded in
// the partition metadata by an earlier init or sync.
func (a *app) resolveVault() (string, error) {
	if a.vaultPath != "" {
		return a.vaultPath, nil
	}
	p, ok, err := a.store.ReadPartition(a.partition)
	if err == nil && ok && p.Metadata.VaultPath != "" {
		a.vaultPath = p.Metadata.VaultPath
		return a.vaultPath, nil
	}
	return "", usagef("no vault path: pass --vault, set vault.path in config.yaml or run vault init")
}

func (a *app) scanOptions(root string) vault.ScanOptions {
	opts := a.settings.ScanOptions(root)
	opts.Logger = a.log
	return opts
}

// engine builds a sync engine for the resolved vault. rec may be nil.
func (a *app) engine(vaultPath string, rec *journal.Journal) *reconcile.Engine {
	opts := reconcile.Options{
		VaultPath:   vaultPath,
		Partition:   a.partition,
		DryRun:      a.flags.dryRun,
		Concurrency: a.settings.Concurrency,
		Scan:        a.scanOptions(vaultPath),
		Statuses:    a.settings.Statuses,
		Logger:      a.log,
	}
	if rec != nil {
		opts.Journal = rec
	}
	return reconcile.New(a.store, opts)
}

// openJournal opens the sync journal. Failure is logged and yields nil: a
// pass runs without history rather than not at all.
func (a *app) openJournal() *journal.Journal {
	if a.journalPath == "" || a.flags.dryRun {
		return nil
	}
	j, err := journal.Open(a.journalPath)
	if err != nil {
		a.log.Warn("journal unavailable", zap.String("path", a.journalPath), zap.Error(err))
		return nil
	}
	return j
}

func closeJournal(j *journal.Journal) {
	if j != nil {
		_ = j.Close()
	}
}

// readPartition returns the partition, or nil when it does not exist.
func (a *app) readPartition() (*types.Partition, error) {
	p, ok, err := a.store.ReadPartition(a.partition)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return p, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printResult writes the summary of one pass followed by its conflicts and
// per-task errors.
func printResult(w io.Writer, r *reconcile.Result) {
	fmt.Fprintln(w, r.Summary())
	for _, c := range r.Conflicted {
		fmt.Fprintf(w, "  conflict: task %s %q (%s): %v\n", c.Ref(), c.Title, c.File, c.Fields)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %v\n", e)
	}
}
