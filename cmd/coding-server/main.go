package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/codeassist/internal/config"
	"github.com/ehr/codeassist/internal/domain/terminology"
	"github.com/ehr/codeassist/internal/platform/db"
	"github.com/ehr/codeassist/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coding-server",
		Short: "Clinical coding assistant API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(foldersCmd())
	rootCmd.AddCommand(terminologyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coding API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func foldersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Inspect and manage saved review folders",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved folders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, cleanup, err := openFolderStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			folders, err := store.List(ctx, filter)
			if err != nil {
				return err
			}
			fmt.Printf("%-40s %-20s %5s %5s\n", "NAME", "GENERATED AT", "ICD", "CPT")
			for _, f := range folders {
				fmt.Printf("%-40s %-20s %5d %5d\n", f.Name, f.GeneratedAt.Format("2006-01-02 15:04:05"), f.CodeCounts.ICD, f.CodeCounts.CPT)
			}
			return nil
		},
	}
	listCmd.Flags().String("filter", "", "Case-insensitive name filter")
	cmd.AddCommand(listCmd)

	deleteAllCmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every saved folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to delete all folders without --yes")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, cleanup, err := openFolderStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := store.DeleteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d folder(s).\n", n)
			return nil
		},
	}
	deleteAllCmd.Flags().Bool("yes", false, "Confirm deletion")
	cmd.AddCommand(deleteAllCmd)

	return cmd
}

func terminologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminology",
		Short: "Manage the code dictionary",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a description file into the Postgres dictionary tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			sys, _ := cmd.Flags().GetString("system")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.DescriptionFile
			}
			defaultSystem, err := terminology.ParseSystem(strings.ToLower(sys))
			if err != nil {
				return err
			}
			repo, err := terminology.LoadDescriptionFile(file, defaultSystem)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			pg := terminology.NewRepoPG(pool)
			for _, system := range terminology.Systems {
				codes := repo.Codes(system)
				if len(codes) == 0 {
					continue
				}
				n, err := pg.Import(ctx, system, codes)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d %s code(s).\n", n, system)
			}
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Description file (defaults to DESCRIPTION_FILE)")
	importCmd.Flags().String("system", string(terminology.SystemICD10), "System for flat description files")
	cmd.AddCommand(importCmd)

	return cmd
}
