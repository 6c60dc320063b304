package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/subsheet/internal/config"
	"github.com/roach88/subsheet/internal/engine"
	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/persist"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
	"github.com/roach88/subsheet/internal/schema"
)

// stopTimeout bounds how long Close waits for the engine loop to exit.
const stopTimeout = 5 * time.Second

// session is one sub-table opened for a single command: the config, the
// compiled table, the SQLite store and a running engine loaded with the
// saved rows.
type session struct {
	cfg   *config.Config
	table *schema.Table
	store *persist.Store
	eng   *engine.Engine

	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

func openSession(cmd *cobra.Command, opts *RootOptions, tableID, recordID string) (*session, error) {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	tables, errs := schema.LoadTables(cfg.SchemaDir)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", errs[0])
	}
	tbl, ok := tables[tableID]
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q (have %v)", tableID, schema.IDs(tables)))
	}
	for _, w := range tbl.Warnings {
		slog.Warn("table warning", "table", tableID, "error", w)
	}

	st, err := persist.Open(cfg.Database, persist.WithPageSize(cfg.PageSize), persist.WithOwner(cfg.Account))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	maxRows := tbl.MaxRows
	if maxRows == 0 {
		maxRows = cfg.MaxRows
	}
	ref := row.Ref{Table: tableID, Record: recordID}
	eng := engine.New(ref, tbl.Fields,
		engine.WithPersistence(st),
		engine.WithExporter(persist.CSVExporter{Dir: cfg.ExportDir}),
		engine.WithResolver(&recalc.SourceResolver{Records: st}),
		engine.WithEnv(cfg.Env()),
		engine.WithSettings(tbl.Settings),
		engine.WithMaxRows(maxRows),
		engine.WithAsyncLimit(cfg.AsyncLimit),
	)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &session{cfg: cfg, table: tbl, store: st, eng: eng, ctx: ctx, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- eng.Run(ctx) }()

	if err := s.loadAll(); err != nil {
		s.Close()
		return nil, WrapExitError(ExitFailure, "failed to load rows", err)
	}
	return s, nil
}

// loadAll fetches pages until one comes back short.
func (s *session) loadAll() error {
	size := s.store.PageSize()
	for page := 1; ; page++ {
		n, err := s.eng.Load(s.ctx, page)
		if err != nil {
			return err
		}
		if n < size {
			return nil
		}
	}
}

// commit waits for async recomputes, then saves rowID.
func (s *session) commit(rowID string) (row.Row, error) {
	if err := s.eng.Settle(s.ctx); err != nil {
		return row.Row{}, err
	}
	return s.eng.Flush(s.ctx, rowID)
}

func (s *session) view(rows []row.Row) RowsView {
	return RowsView{Ref: s.eng.Ref(), Columns: field.Columns(s.table.Fields.All()), Rows: rows}
}

// Close stops the engine and closes the database.
func (s *session) Close() error {
	s.eng.Stop()
	var runErr error
	select {
	case runErr = <-s.done:
	case <-time.After(stopTimeout):
		s.cancel()
		runErr = <-s.done
	}
	s.cancel()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, s.store.Close())
}
