package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
	"lootbox-hub/internal/repository/postgres"
)

// testEnv wires every settlement service against one throwaway database.
type testEnv struct {
	pool        *pgxpool.Pool
	bus         *event.Bus
	users       repository.UserRepository
	catalog     repository.CatalogRepository
	audit       repository.AuditRepository
	lootboxes   *LootboxService
	withdrawals *WithdrawalService
	codes       *ActivationCodeService
	exchanges   *ExchangeService
	coupons     *CouponService
	deposits    *DepositService
	tickets     *TicketService
	dashboard   *DashboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pool := startPostgresForTest(t)
	bus := event.NewBus()
	users := postgres.NewUserRepository(pool)
	catalog := postgres.NewCatalogRepository(pool)
	audit := postgres.NewAuditRepository(pool)

	return &testEnv{
		pool:      pool,
		bus:       bus,
		users:     users,
		catalog:   catalog,
		audit:     audit,
		lootboxes: NewLootboxService(pool, catalog, postgres.NewDrawRepository(pool), audit, bus, LootboxServiceConfig{FairnessSecret: testFairnessSecret}, nil),
		withdrawals: NewWithdrawalService(pool, audit, bus, WithdrawalServiceConfig{
			ManualSLA: 72 * time.Hour,
		}, nil),
		codes:     NewActivationCodeService(postgres.NewActivationCodeRepository(pool), catalog, audit, nil),
		exchanges: NewExchangeService(pool, audit, bus, ExchangeServiceConfig{FeeRate: decimal.RequireFromString("0.05")}, nil),
		coupons:   NewCouponService(pool, catalog, audit, bus, CouponServiceConfig{FairnessSecret: testFairnessSecret}, nil),
		deposits:  NewDepositService(pool, nil, audit, bus, 0, nil),
		tickets:   NewTicketService(postgres.NewTicketRepository(pool), audit, bus, nil),
		dashboard: NewDashboardService(pool),
	}
}

func (e *testEnv) createUser(t *testing.T, balance string, role model.UserRole) Actor {
	t.Helper()

	user := &model.User{
		Username: "user-" + uuid.NewString()[:8],
		Role:     role,
		Balance:  decimal.RequireFromString(balance),
		Level:    1,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	actor, err := NewActor(user.ID.String(), string(role))
	if err != nil {
		t.Fatalf("build actor: %v", err)
	}
	return actor
}

func (e *testEnv) createItems(t *testing.T, values ...string) []*model.Item {
	t.Helper()

	items := make([]*model.Item, 0, len(values))
	for _, value := range values {
		item := &model.Item{
			Name:  "item-" + value + "-" + uuid.NewString()[:8],
			Value: decimal.RequireFromString(value),
		}
		if err := e.catalog.CreateItem(context.Background(), item); err != nil {
			t.Fatalf("create item: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func (e *testEnv) createBox(t *testing.T, price string, minLevel int, items []*model.Item, weights ...int64) *model.Lootbox {
	t.Helper()

	entries := make([]lottery.Entry, 0, len(items))
	for i, item := range items {
		entries = append(entries, lottery.Entry{ItemID: item.ID, Weight: weights[i]})
	}
	box := &model.Lootbox{
		Name:     "box-" + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		MinLevel: minLevel,
		Entries:  entries,
	}
	if err := e.catalog.CreateBox(context.Background(), box); err != nil {
		t.Fatalf("create box: %v", err)
	}
	return box
}

// grantItem inserts an available inventory row directly.
func (e *testEnv) grantItem(t *testing.T, owner Actor, item *model.Item) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	if err := e.pool.QueryRow(
		context.Background(),
		`INSERT INTO inventory (user_id, item_id, source_type, status)
		 VALUES ($1, $2, 'lootbox', 'available')
		 RETURNING id`,
		owner.UserID,
		item.ID,
	).Scan(&id); err != nil {
		t.Fatalf("grant item: %v", err)
	}
	return id
}

func (e *testEnv) balanceOf(t *testing.T, actor Actor) decimal.Decimal {
	t.Helper()

	user, err := e.users.FindByID(context.Background(), actor.UserID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.Balance
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int64 {
	t.Helper()

	var n int64
	if err := e.pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

// Integration tests share one lazily started container. Each test gets its
// own database cloned from a migrated template, so tests never see each
// other's rows. The testcontainers reaper removes the container when the
// test binary exits.
const templateDB = "lootbox_template"

var (
	serverOnce sync.Once
	server     pgServer
	cloneMu    sync.Mutex
	dbSeq      atomic.Int64
)

type pgServer struct {
	host  string
	port  string
	admin *pgxpool.Pool
	err   error
}

func (s *pgServer) dsn(database string) string {
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/%s?sslmode=disable", s.host, s.port, database)
}

func startServer() {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		server.err = fmt.Errorf("docker unavailable: %w", err)
		return
	}

	host, err := container.Host(ctx)
	if err != nil {
		server.err = err
		return
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		server.err = err
		return
	}
	server.host, server.port = host, port.Port()

	admin, err := pgxpool.New(ctx, server.dsn("postgres"))
	if err != nil {
		server.err = err
		return
	}
	server.admin = admin

	if _, err := admin.Exec(ctx, "CREATE DATABASE "+templateDB); err != nil {
		server.err = fmt.Errorf("create template database: %w", err)
		return
	}
	server.err = migrateTemplate(server.dsn(templateDB))
}

func migrateTemplate(dsn string) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	migrator, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	// The template must have no open connections before it is cloned.
	defer migrator.Close() //nolint:errcheck
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func startPostgresForTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	serverOnce.Do(startServer)
	if server.err != nil {
		t.Skipf("postgres integration tests skipped: %v", server.err)
	}

	ctx := context.Background()
	name := fmt.Sprintf("lootbox_t%d_%d", os.Getpid(), dbSeq.Add(1))

	cloneMu.Lock()
	_, err := server.admin.Exec(ctx, "CREATE DATABASE "+name+" TEMPLATE "+templateDB)
	cloneMu.Unlock()
	if err != nil {
		t.Fatalf("clone template database: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(server.dsn(name))
	if err != nil {
		t.Fatalf("parse pool config: %v", err)
	}
	cfg.MaxConns = 32
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pgx pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		_, _ = server.admin.Exec(context.Background(), "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)")
	})
	return pool
}

func migrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above the test directory")
		}
		dir = parent
	}
}
