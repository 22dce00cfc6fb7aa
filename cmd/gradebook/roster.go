package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/gradebook/internal/local"
	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/rostercache"
	"github.com/pavelanni/gradebook/internal/store"
)

func runImportRoster(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	for _, name := range v.GetStringSlice("subjects") {
		if _, err := db.CreateSubject(ctx, name); err != nil {
			return fmt.Errorf("create subject %q: %w", name, err)
		}
	}
	for _, name := range v.GetStringSlice("quarters") {
		if _, err := db.CreateQuarter(ctx, name); err != nil {
			return fmt.Errorf("create quarter %q: %w", name, err)
		}
	}

	sections, err := importRosters(ctx, db, args)
	if err != nil {
		return err
	}

	if redisURL := v.GetString("redis-url"); redisURL != "" && len(sections) > 0 {
		cache, err := rostercache.New(redisURL, local.New(db, nil), 0)
		if err != nil {
			return fmt.Errorf("roster cache: %w", err)
		}
		defer cache.Close()
		for _, id := range sections {
			if err := cache.Invalidate(ctx, id); err != nil {
				slog.Warn("cache invalidation failed", "section_id", id, "error", err)
			}
		}
	}
	return nil
}

// importRosters loads roster files and returns the IDs of the sections it
// changed. Files whose content was already imported are skipped.
func importRosters(ctx context.Context, db *store.Store, paths []string) ([]int64, error) {
	var changed []int64
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return changed, fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return changed, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("roster file unchanged, skipping", "path", path)
			continue
		}

		var rosters []model.RosterImport
		if err := json.Unmarshal(data, &rosters); err != nil {
			return changed, fmt.Errorf("parse %s: %w", path, err)
		}

		count := 0
		for _, ri := range rosters {
			sectionID, err := db.CreateSection(ctx, ri.Section)
			if err != nil {
				return changed, fmt.Errorf("section from %s: %w", path, err)
			}
			for _, st := range ri.Students {
				st.SectionID = sectionID
				if err := db.UpsertStudent(ctx, st); err != nil {
					return changed, fmt.Errorf("student %q from %s: %w", st.LRN, path, err)
				}
				count++
			}
			changed = append(changed, sectionID)
		}

		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return changed, fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported roster", "path", path, "sections", len(rosters), "students", count)
	}
	return changed, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return exportDrafts(ctx, db, v.GetStringSlice("draft"), w)
}

func exportDrafts(ctx context.Context, db *store.Store, ids []string, w io.Writer) error {
	drafts, err := db.ExportDrafts(ctx, ids...)
	if err != nil {
		return fmt.Errorf("export drafts: %w", err)
	}
	export := model.DraftExport{
		ExportedAt: time.Now().UTC(),
		Drafts:     drafts,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	slog.Info("exported drafts", "count", len(drafts))
	return nil
}
