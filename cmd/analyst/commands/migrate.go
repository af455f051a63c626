package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smsh73/AAA/pkg/database"
	"github.com/smsh73/AAA/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 마이그레이션 적용",
	Long: `내장된 SQL 마이그레이션을 파일명 순서로 적용합니다.
이미 적용된 파일은 건너뜁니다.

Example:
  go run ./cmd/analyst migrate
  go run ./cmd/analyst migrate --list`,
	RunE: runMigrate,
}

var migrateList bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "마이그레이션 파일 목록만 출력")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateList {
		names, err := database.MigrationFiles()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Printf("  - %s\n", name)
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.UseMemoryStore() {
		return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
	}

	log := logger.New(cfg)
	ctx := context.Background()

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		return err
	}
	PrintSuccess("Migrations applied")
	return nil
}
