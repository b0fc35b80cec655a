package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository/postgres"
	"lootbox-hub/internal/seed"
	"lootbox-hub/internal/service"
)

// migrateOp is one parsed invocation of the migrate subcommand.
type migrateOp struct {
	action string
	steps  int
	dir    string
}

// parseMigrateArgs accepts "up" (the default), "down N", "version" and
// "force V". Rolling back always needs an explicit step count.
func parseMigrateArgs(args []string) (migrateOp, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", "", "migration directory (default $LOOTBOX_MIGRATIONS_DIR, /migrations or ./migrations)")
	if err := fs.Parse(args); err != nil {
		return migrateOp{}, err
	}

	op := migrateOp{action: "up", dir: *dir}
	rest := fs.Args()
	if len(rest) > 0 {
		op.action = rest[0]
		rest = rest[1:]
	}

	switch op.action {
	case "up", "version":
		if len(rest) != 0 {
			return migrateOp{}, fmt.Errorf("migrate %s takes no arguments", op.action)
		}
	case "down", "force":
		if len(rest) != 1 {
			return migrateOp{}, fmt.Errorf("migrate %s needs exactly one number", op.action)
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 || (op.action == "down" && n == 0) {
			return migrateOp{}, fmt.Errorf("migrate %s: invalid number %q", op.action, rest[0])
		}
		op.steps = n
	default:
		return migrateOp{}, fmt.Errorf("unknown migrate action %q", op.action)
	}
	return op, nil
}

func resolveMigrationDir(flagDir string) string {
	if dir := strings.TrimSpace(flagDir); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("LOOTBOX_MIGRATIONS_DIR")); dir != "" {
		return dir
	}
	if info, err := os.Stat("/migrations"); err == nil && info.IsDir() {
		return "/migrations"
	}
	return "./migrations"
}

func runMigrateCommand(args []string) error {
	op, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	dir := resolveMigrationDir(op.dir)
	migrator, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open migrations in %s: %w", dir, err)
	}
	defer migrator.Close() //nolint:errcheck

	switch op.action {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-op.steps)
	case "force":
		err = migrator.Force(op.steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op.action, err)
	}

	version, dirty, err := migrator.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("schema version: none")
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		fmt.Printf("schema version: %d (dirty=%t)\n", version, dirty)
	}
	return nil
}

// runSeedCatalogCommand loads items and boxes from a YAML catalog file.
func runSeedCatalogCommand(args []string) error {
	fs := flag.NewFlagSet("seed-catalog", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: seed-catalog <catalog.yaml>")
	}

	// #nosec G304 -- path is provided by the operator on the command line.
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open catalog file failed: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	catalog, err := seed.ParseCatalog(f)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := seed.ApplyCatalog(ctx, postgres.NewCatalogRepository(pool), catalog)
	if err != nil {
		return err
	}

	fmt.Printf("seeded %d items and %d lootboxes\n", len(result.Items), len(result.Boxes))
	return nil
}

// runImportCodesCommand imports one activation code per line for an item,
// attributed to an admin account.
func runImportCodesCommand(args []string) error {
	fs := flag.NewFlagSet("import-codes", flag.ContinueOnError)
	itemRaw := fs.String("item", "", "item id the codes redeem")
	adminRaw := fs.String("admin", "", "admin user id recorded as importer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: import-codes -item <uuid> -admin <uuid> <codes.txt>")
	}

	itemID, err := uuid.Parse(strings.TrimSpace(*itemRaw))
	if err != nil {
		return errors.New("-item must be a uuid")
	}
	actor, err := service.NewActor(*adminRaw, string(model.UserRoleAdmin))
	if err != nil {
		return errors.New("-admin must be a uuid")
	}

	codes, err := readCodeLines(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	codeSvc := service.NewActivationCodeService(
		postgres.NewActivationCodeRepository(pool),
		postgres.NewCatalogRepository(pool),
		postgres.NewAuditRepository(pool),
		zap.NewNop(),
	)
	result, err := codeSvc.ImportBatch(ctx, actor, itemID, codes)
	if err != nil {
		return err
	}

	fmt.Printf("batch %s: %d submitted, %d inserted, %d duplicates\n",
		result.BatchID, result.Submitted, result.Inserted, result.Duplicates)
	return nil
}

func readCodeLines(path string) ([]string, error) {
	// #nosec G304 -- path is provided by the operator on the command line.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open codes file failed: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		codes = append(codes, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read codes file failed: %w", err)
	}
	return codes, nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	addr := "http://localhost:8080/health/ready"
	if port := strings.TrimSpace(os.Getenv("LOOTBOX_SERVER_PORT")); port != "" {
		addr = "http://localhost:" + port + "/health/ready"
	}

	resp, err := client.Get(addr)
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
