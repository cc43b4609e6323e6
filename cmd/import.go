package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugang-app/apiserver/config"
	"github.com/sugang-app/apiserver/internal/catalog"
	"github.com/sugang-app/apiserver/internal/db"
	"github.com/sugang-app/apiserver/internal/storage"
	"github.com/sugang-app/apiserver/internal/store"
)

var (
	importKey  string
	importFile string
)

// importCmd loads a course-catalog dump from object storage.
var importCmd = &cobra.Command{
	Use:   "import-catalog",
	Short: "Import a course catalog JSON from object storage",
	Long: `Fetches a JSON array of courses from the configured object storage
bucket and upserts each entry into the catalog. With --file, the local dump
is uploaded to the bucket first and then imported. Usage:

	sugang import-catalog --key courses.json
	sugang import-catalog --key courses.json --file ./seed/courses.json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		st, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}

		importer := catalog.NewImporter(st, store.NewCourseRepository(dbConn))

		if importFile != "" {
			data, err := os.ReadFile(importFile)
			if err != nil {
				return fmt.Errorf("read catalog file: %w", err)
			}
			if err := importer.Upload(ctx, importKey, data); err != nil {
				return err
			}
		}

		count, err := importer.Import(ctx, importKey)
		if err != nil {
			return err
		}

		fmt.Printf("imported %d courses from %s\n", count, importKey)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importKey, "key", "courses.json", "object key of the catalog dump")
	importCmd.Flags().StringVar(&importFile, "file", "", "local catalog file to upload before importing")
	rootCmd.AddCommand(importCmd)
}
