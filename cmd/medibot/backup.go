package main

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"medibot/internal/config"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the SQLite store and config file",
		Long: `Creates a compressed .tar.gz archive containing the SQLite store (with its
WAL files) and the configuration file. MySQL stores are not included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath := resolveDBPath(cfgPath)

			if outputPath == "" {
				backupDir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(backupDir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				outputPath = filepath.Join(backupDir, fmt.Sprintf("medibot-backup-%s.tar.gz", time.Now().Format("20060102-150405")))
			}

			files := backupFiles(cfgPath, dbPath)
			if len(files) == 0 {
				return fmt.Errorf("no files to backup (db: %s, config: %s)", dbPath, cfgPath)
			}

			if err := writeArchive(outputPath, files); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Printf("Backup created: %s\n", outputPath)
			for _, e := range files {
				var size int64
				if info, err := os.Stat(e.path); err == nil {
					size = info.Size()
				}
				fmt.Printf("  - %s <- %s (%s)\n", e.name, e.path, humanSize(size))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: ~/.medibot/backups/medibot-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <file.tar.gz>",
		Short: "Restore the SQLite store and config from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath := resolveDBPath(cfgPath)

			if !force && (exists(dbPath) || exists(cfgPath)) {
				fmt.Printf("WARNING: This will overwrite existing data.\n")
				fmt.Printf("  Store:  %s\n", dbPath)
				fmt.Printf("  Config: %s\n", cfgPath)
				return fmt.Errorf("restore aborted (use --force to proceed)")
			}

			restored, err := restoreArchive(args[0], cfgPath, dbPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restored %d file(s) from %s\n", len(restored), args[0])
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// resolveDBPath reads store.path from the config, falling back to the default location.
func resolveDBPath(cfgPath string) string {
	if cfg, err := config.Load(cfgPath); err == nil && cfg.Store.Driver == "sqlite" {
		return cfg.Store.Path
	}
	return config.ExpandPath(config.Defaults().Store.Path)
}

// archiveEntry pairs a fixed name inside the archive with a path on disk.
// Names do not depend on local file names, so an archive restores onto any layout.
type archiveEntry struct {
	name string
	path string
}

// maxEntrySize caps a single restored file.
const maxEntrySize = 4 << 30

func archiveLayout(cfgPath, dbPath string) []archiveEntry {
	cfgName := "config" + filepath.Ext(cfgPath)
	if cfgName == "config" {
		cfgName = "config.json"
	}
	return []archiveEntry{
		{name: "store.db", path: dbPath},
		{name: "store.db-wal", path: dbPath + "-wal"},
		{name: "store.db-shm", path: dbPath + "-shm"},
		{name: cfgName, path: cfgPath},
	}
}

// backupFiles returns the layout entries that exist on disk.
func backupFiles(cfgPath, dbPath string) []archiveEntry {
	var present []archiveEntry
	for _, e := range archiveLayout(cfgPath, dbPath) {
		if exists(e.path) {
			present = append(present, e)
		}
	}
	return present
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeArchive(outputPath string, entries []archiveEntry) (err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if err := appendEntry(tw, e); err != nil {
			return fmt.Errorf("add %s: %w", e.path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func appendEntry(tw *tar.Writer, e archiveEntry) error {
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    e.name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// restoreArchive writes every recognised entry of archivePath to its place in
// the layout. Config entries with any of the known extensions land on cfgPath.
// Unknown entries and non-regular files are skipped.
func restoreArchive(archivePath, cfgPath, dbPath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	targets := make(map[string]string)
	for _, e := range archiveLayout(cfgPath, dbPath) {
		targets[e.name] = e.path
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		targets["config"+ext] = cfgPath
	}

	var restored []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return restored, nil
		}
		if err != nil {
			return restored, err
		}
		target, ok := targets[hdr.Name]
		if !ok || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxEntrySize {
			return restored, fmt.Errorf("%s: entry too large (%s)", hdr.Name, humanSize(hdr.Size))
		}
		if err := replaceFile(target, io.LimitReader(tr, maxEntrySize)); err != nil {
			return restored, err
		}
		restored = append(restored, target)
	}
}

// replaceFile writes r to a sibling temp file and renames it over path.
func replaceFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".restore-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("extract %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
