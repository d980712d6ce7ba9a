package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"comprobantes/internal/config"
	"comprobantes/internal/logger"
	"comprobantes/internal/ocr"
	"comprobantes/internal/store"
	"comprobantes/pkg/models"
)

var importCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Queue comprobantes for the next batch run",
	Long: `Add scans or stored OCR output to the local document database so that
"batch" picks them up. Directories are walked recursively.

Scans (PDF, TIFF, JPEG, PNG, GIF, BMP, WEBP) are stored as-is and sent to OCR
during the batch. Files ending in .json (written by "ocr --json") or .txt are
read as OCR output and skip the OCR step.

Every file gets a stable id derived from its absolute path, so importing the
same file again replaces its content and queues it again.`,
	Example: `  # Queue a folder of scans
  comprobantes import ./escaneos

  # Queue stored OCR results into a specific database
  comprobantes import ./ocr/*.json --db /data/comprobantes.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var scanExtensions = map[string]bool{
	".pdf": true, ".tif": true, ".tiff": true, ".jpg": true, ".jpeg": true,
	".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("db", "", "Database path (default: DATABASE_PATH)")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("import")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.DatabasePath
	}

	files, err := collectImportFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no importable files found")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var imported, failed int
	for _, path := range files {
		if err := importFile(ctx, st, path, log); err != nil {
			failed++
			log.Warn().Err(err).Str("file", path).Msg("Skipping file")
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			continue
		}
		imported++
	}

	log.Info().
		Int("imported", imported).
		Int("failed", failed).
		Str("database", dbPath).
		Msg("Import finished")
	fmt.Printf("Imported %d of %d files into %s\n", imported, len(files), dbPath)
	return nil
}

// collectImportFiles expands directories and keeps files with a known extension.
func collectImportFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if scanExtensions[ext] || isStoredOCR(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", root, err)
		}
	}
	return files, nil
}

// documentID derives a stable id from the file's absolute path.
func documentID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String(), nil
}

func importFile(ctx context.Context, st *store.Store, path string, log zerolog.Logger) error {
	data, err := readDocumentFile(path, log)
	if err != nil {
		return err
	}
	id, err := documentID(path)
	if err != nil {
		return err
	}

	doc := models.Document{ID: id}
	if isStoredOCR(path) {
		if doc.OCR, err = ocr.ReadStored(data); err != nil {
			return err
		}
	} else {
		doc.Image = data
		doc.MimeType = ocr.DetectMimeType(data)
	}

	if err := st.AddDocument(ctx, doc, path); err != nil {
		return err
	}
	log.Debug().Str("file", path).Str("document_id", id).Msg("Document queued")
	return nil
}
