// Command coldpack runs the backup engine: on-demand and scheduled backups,
// restores, and config CRUD for datasets and stores.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"coldpack/internal/backup"
	"coldpack/internal/codec"
	"coldpack/internal/config"
	configmem "coldpack/internal/config/memory"
	configsqlite "coldpack/internal/config/sqlite"
	"coldpack/internal/digest"
	"coldpack/internal/errs"
	"coldpack/internal/home"
	"coldpack/internal/logging"
	"coldpack/internal/mdstore"
	"coldpack/internal/model"
	"coldpack/internal/packstore"
	"coldpack/internal/restore"
	"coldpack/internal/scheduler"
	"coldpack/internal/state"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	root := &cobra.Command{
		Use:   "coldpack",
		Short: "Content-addressed deduplicating backup engine",
	}
	root.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	root.PersistentFlags().String("config-type", "sqlite", "config store type: sqlite or memory")

	root.AddCommand(
		newServerCmd(logger),
		newBackupCmd(logger),
		newRestoreCmd(logger),
		newDatasetCmd(),
		newStoreCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// env holds the resolved home directory and the config store and metadata
// store that every data-touching subcommand needs (see openEnv).
type env struct {
	home    home.Dir
	cfg     config.Store
	kv      mdstore.KV
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func openEnv(cmd *cobra.Command) (*env, error) {
	homeFlag, _ := cmd.Flags().GetString("home")
	configType, _ := cmd.Flags().GetString("config-type")

	hd, err := resolveHome(homeFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	e := &env{home: hd}

	switch configType {
	case "memory":
		e.cfg = configmem.NewStore()
		e.kv = mdstore.NewMemoryStore()
	case "sqlite":
		if err := hd.EnsureExists(); err != nil {
			return nil, err
		}
		cfgStore, err := configsqlite.NewStore(hd.ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("open config store: %w", err)
		}
		e.cfg = cfgStore
		e.closers = append(e.closers, cfgStore.Close)

		kv, err := mdstore.Open(hd.MetadataPath())
		if err != nil {
			return nil, fmt.Errorf("open metadata store: %w", err)
		}
		e.kv = kv
		e.closers = append(e.closers, kv.Close)
	default:
		return nil, fmt.Errorf("unknown config store type: %q", configType)
	}

	return e, nil
}

// resolveHome returns a Dir from the flag value, or the platform default.
func resolveHome(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	return home.Default()
}

func lookupDataset(ctx context.Context, cfg config.Store, id string) (model.Dataset, model.Store, error) {
	var ds model.Dataset
	switch store := cfg.(type) {
	case *configsqlite.Store:
		got, err := store.GetDataset(ctx, id)
		if err != nil {
			return model.Dataset{}, model.Store{}, err
		}
		if got == nil {
			return model.Dataset{}, model.Store{}, fmt.Errorf("dataset %q: %w", id, errs.ErrNotFound)
		}
		ds = *got
	case *configmem.Store:
		got, err := store.GetDataset(ctx, id)
		if err != nil {
			return model.Dataset{}, model.Store{}, err
		}
		if got == nil {
			return model.Dataset{}, model.Store{}, fmt.Errorf("dataset %q: %w", id, errs.ErrNotFound)
		}
		ds = *got
	default:
		return model.Dataset{}, model.Store{}, fmt.Errorf("config store %T does not support single-dataset lookup", cfg)
	}

	st, err := lookupStore(ctx, cfg, ds.StoreID)
	if err != nil {
		return model.Dataset{}, model.Store{}, err
	}
	return ds, st, nil
}

func lookupStore(ctx context.Context, cfg config.Store, id string) (model.Store, error) {
	switch store := cfg.(type) {
	case *configsqlite.Store:
		got, err := store.GetStore(ctx, id)
		if err != nil {
			return model.Store{}, err
		}
		if got == nil {
			return model.Store{}, fmt.Errorf("store %q: %w", id, errs.ErrNotFound)
		}
		return *got, nil
	case *configmem.Store:
		got, err := store.GetStore(ctx, id)
		if err != nil {
			return model.Store{}, err
		}
		if got == nil {
			return model.Store{}, fmt.Errorf("store %q: %w", id, errs.ErrNotFound)
		}
		return *got, nil
	default:
		return model.Store{}, fmt.Errorf("config store %T does not support single-store lookup", cfg)
	}
}

func newBackupCmd(logger *slog.Logger) *cobra.Command {
	var passphrase string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "backup <dataset-id>",
		Short: "Run one backup for a dataset and print a summary of the resulting snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			dataset, store, err := lookupDataset(ctx, e.cfg, args[0])
			if err != nil {
				return err
			}

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			drv := backup.New(e.kv, logger)
			result, err := drv.Run(ctx, dataset, store, passphrase)
			if err != nil && !errors.Is(err, errs.ErrOutOfTime) {
				return fmt.Errorf("backup run: %w", err)
			}

			if err := recordLatestSnapshot(ctx, e.cfg, dataset, result.Snapshot.ID); err != nil {
				logger.Warn("record latest snapshot", "dataset", dataset.ID, "error", err)
			}

			fmt.Printf("snapshot=%s tree=%s files=%d bytes=%d packs=%d out_of_time=%t\n",
				result.Snapshot.ID, result.Snapshot.RootTree, result.Snapshot.FileCount,
				result.Snapshot.ByteCount, result.PackCount, result.OutOfTime)
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase used to encrypt packs written this run")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop the run after this duration, reporting out-of-time (0 = no limit)")
	return cmd
}

func recordLatestSnapshot(ctx context.Context, cfg config.Store, ds model.Dataset, snapshotID string) error {
	if snapshotID == "" {
		return nil
	}
	ds.LatestSnapshot = snapshotID
	switch store := cfg.(type) {
	case *configsqlite.Store:
		return store.PutDataset(ctx, ds)
	case *configmem.Store:
		return store.PutDataset(ctx, ds)
	default:
		return nil
	}
}

func newRestoreCmd(logger *slog.Logger) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "restore <dataset-id> <tree-digest> <entry-name> <out-path>",
		Short: "Restore one entry from a tree into out-path",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			_, store, err := lookupDataset(ctx, e.cfg, args[0])
			if err != nil {
				return err
			}

			treeDigest, err := digest.Parse(args[1])
			if err != nil {
				return fmt.Errorf("parse tree digest: %w", err)
			}

			ps, err := packstore.Open(ctx, store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			rst := restore.New(e.kv, ps, logger)
			rst.Enqueue(restore.Request{
				TreeDigest: treeDigest,
				EntryName:  args[2],
				OutPath:    args[3],
				DatasetID:  args[0],
				Passphrase: passphrase,
			})

			completions := rst.Drain(ctx)
			for _, c := range completions {
				if c.Err != nil {
					return fmt.Errorf("restore %s: %w", c.Request.EntryName, c.Err)
				}
				fmt.Printf("restored %s -> %s (%d files)\n", c.Request.EntryName, c.Request.OutPath, c.FilesRestored)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase used to decrypt packs")
	return cmd
}

func newServerCmd(logger *slog.Logger) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the scheduler, driving datasets per their configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			states := state.New()
			drv := backup.New(e.kv, logger)
			source := &configDatasetSource{cfg: e.cfg, kv: e.kv}

			runner := func(ctx context.Context, dataset model.Dataset) {
				st, err := lookupStore(ctx, e.cfg, dataset.StoreID)
				if err != nil {
					logger.Error("look up store for scheduled run", "dataset", dataset.ID, "error", err)
					return
				}

				states.Start(dataset.ID)
				result, err := drv.Run(ctx, dataset, st, "")
				states.Finish(dataset.ID, result.Snapshot.FileCount, result.PackCount, err)

				if err != nil && !errors.Is(err, errs.ErrOutOfTime) {
					logger.Error("scheduled backup failed", "dataset", dataset.ID, "error", err)
					return
				}
				if recordErr := recordLatestSnapshot(ctx, e.cfg, dataset, result.Snapshot.ID); recordErr != nil {
					logger.Warn("record latest snapshot", "dataset", dataset.ID, "error", recordErr)
				}
			}

			sup, err := scheduler.New(source, runner, interval, states, logger)
			if err != nil {
				return fmt.Errorf("create scheduler: %w", err)
			}
			if err := sup.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}

			logger.Info("server started", "home", e.home.Root(), "interval", interval)
			<-ctx.Done()
			logger.Info("shutting down")
			return sup.Stop()
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "readiness check interval")
	return cmd
}

// configDatasetSource adapts config.Store + mdstore into scheduler.DatasetSource:
// datasets come from config, last-run time comes from each dataset's most
// recently recorded snapshot in the metadata store.
type configDatasetSource struct {
	cfg config.Store
	kv  mdstore.KV
}

func (c *configDatasetSource) Datasets(ctx context.Context) ([]model.Dataset, error) {
	switch store := c.cfg.(type) {
	case *configsqlite.Store:
		return store.ListDatasets(ctx)
	case *configmem.Store:
		return store.ListDatasets(ctx)
	default:
		cfg, err := c.cfg.Load(ctx)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, nil
		}
		return cfg.Datasets, nil
	}
}

func (c *configDatasetSource) LastRun(ctx context.Context, datasetID string) (time.Time, error) {
	ds, _, err := lookupDataset(ctx, c.cfg, datasetID)
	if err != nil {
		return time.Time{}, err
	}
	if ds.LatestSnapshot == "" {
		return time.Time{}, nil
	}

	data, err := c.kv.Get(ctx, mdstore.PrefixSnapshot+ds.LatestSnapshot)
	if errors.Is(err, errs.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	var snap model.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return time.Time{}, fmt.Errorf("unmarshal snapshot %s: %w", ds.LatestSnapshot, err)
	}
	return snap.EndTime, nil
}

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage configured backup datasets",
	}
	cmd.AddCommand(newDatasetAddCmd(), newDatasetListCmd(), newDatasetRemoveCmd(), newDatasetPauseCmd(true), newDatasetPauseCmd(false))
	return cmd
}

func newDatasetAddCmd() *cobra.Command {
	var basePath, storeID, id string
	var excludes []string
	var packSize int64
	var algo string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if id == "" {
				id = uuid.NewString()
			}
			ds := model.Dataset{
				ID:             id,
				Name:           args[0],
				BasePath:       basePath,
				StoreID:        storeID,
				Excludes:       excludes,
				PackSizeTarget: packSize,
				Algorithm:      digest.Algorithm(algo),
			}

			ctx := cmd.Context()
			switch store := e.cfg.(type) {
			case *configsqlite.Store:
				err = store.PutDataset(ctx, ds)
			case *configmem.Store:
				err = store.PutDataset(ctx, ds)
			default:
				err = fmt.Errorf("config store %T does not support dataset mutation", e.cfg)
			}
			if err != nil {
				return fmt.Errorf("add dataset: %w", err)
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "dataset ID (default: generated UUID)")
	cmd.Flags().StringVar(&basePath, "path", "", "filesystem path to back up")
	cmd.Flags().StringVar(&storeID, "store", "", "store ID this dataset backs up to")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob patterns to exclude, repeatable")
	cmd.Flags().Int64Var(&packSize, "pack-size", 64<<20, "target pack size in bytes")
	cmd.Flags().StringVar(&algo, "algorithm", string(digest.Default), "content digest algorithm")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func newDatasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			cfg, err := e.cfg.Load(ctx)
			if err != nil {
				return err
			}
			if cfg == nil {
				return nil
			}
			for _, ds := range cfg.Datasets {
				fmt.Printf("%s\tname=%s\tpath=%s\tstore=%s\tlatest=%s\tpaused=%t\n", ds.ID, ds.Name, ds.BasePath, ds.StoreID, ds.LatestSnapshot, ds.Paused)
			}
			return nil
		},
	}
}

func newDatasetRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <dataset-id>",
		Short: "Remove a configured dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			switch store := e.cfg.(type) {
			case *configsqlite.Store:
				return store.DeleteDataset(ctx, args[0])
			case *configmem.Store:
				return store.DeleteDataset(ctx, args[0])
			default:
				return fmt.Errorf("config store %T does not support dataset mutation", e.cfg)
			}
		},
	}
}

// newDatasetPauseCmd builds either "pause" or "resume", which only differ
// in the literal name and the Paused value they write back. A paused
// dataset is never treated by the Supervisor's readiness check as "still
// running", so an operator can hold a dataset's schedules off indefinitely
// without the scheduler mistaking that for a stuck run.
func newDatasetPauseCmd(pause bool) *cobra.Command {
	use, short := "resume <dataset-id>", "Resume a paused dataset's schedule"
	if pause {
		use, short = "pause <dataset-id>", "Pause a dataset's schedule"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			ds, _, err := lookupDataset(ctx, e.cfg, args[0])
			if err != nil {
				return err
			}
			ds.Paused = pause

			switch store := e.cfg.(type) {
			case *configsqlite.Store:
				return store.PutDataset(ctx, ds)
			case *configmem.Store:
				return store.PutDataset(ctx, ds)
			default:
				return fmt.Errorf("config store %T does not support dataset mutation", e.cfg)
			}
		},
	}
}

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage configured pack stores",
	}
	cmd.AddCommand(newStoreAddCmd(), newStoreListCmd(), newStoreRemoveCmd())
	return cmd
}

func newStoreAddCmd() *cobra.Command {
	var id, storeType string
	var props []string

	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a new pack store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if id == "" {
				id = uuid.NewString()
			}
			properties, err := parseProperties(props)
			if err != nil {
				return err
			}

			st := model.Store{
				ID:         id,
				Label:      args[0],
				Type:       model.StoreType(storeType),
				Properties: properties,
			}

			ctx := cmd.Context()
			switch store := e.cfg.(type) {
			case *configsqlite.Store:
				err = store.PutStore(ctx, st)
			case *configmem.Store:
				err = store.PutStore(ctx, st)
			default:
				err = fmt.Errorf("config store %T does not support store mutation", e.cfg)
			}
			if err != nil {
				return fmt.Errorf("add store: %w", err)
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "store ID (default: generated UUID)")
	cmd.Flags().StringVar(&storeType, "type", string(model.StoreLocal), "store backend: LOCAL, AMAZON, MINIO, AZURE, GOOGLE, SFTP")
	cmd.Flags().StringSliceVar(&props, "prop", nil, "key=value property, repeatable")
	return cmd
}

func parseProperties(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := cutKV(kv)
		if !ok {
			return nil, fmt.Errorf("invalid --prop %q, expected key=value", kv)
		}
		props[key] = value
	}
	return props, nil
}

func cutKV(s string) (key, value string, ok bool) {
	for i := range s {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func newStoreListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			cfg, err := e.cfg.Load(ctx)
			if err != nil {
				return err
			}
			if cfg == nil {
				return nil
			}
			for _, st := range cfg.Stores {
				fmt.Printf("%s\tlabel=%s\ttype=%s\n", st.ID, st.Label, st.Type)
			}
			return nil
		},
	}
}

func newStoreRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <store-id>",
		Short: "Remove a configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			switch store := e.cfg.(type) {
			case *configsqlite.Store:
				return store.DeleteStore(ctx, args[0])
			case *configmem.Store:
				return store.DeleteStore(ctx, args[0])
			default:
				return fmt.Errorf("config store %T does not support store mutation", e.cfg)
			}
		},
	}
}
