package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"subkeeper/internal/models"
	"subkeeper/pkg/database"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB connects to TEST_DATABASE_URL, applies migrations and empties every table.
// Tests are skipped in short mode or when no database is configured.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(ctx, pool, "", nil); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	db := &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
	truncate(t, db)
	return db
}

func truncate(t *testing.T, db *TestDB) {
	t.Helper()

	_, err := db.Pool.Exec(context.Background(), `TRUNCATE subscriptions, plan_features, features, plans`)
	if err != nil {
		t.Fatalf("Failed to truncate test tables: %v", err)
	}
}

// SeedPlan inserts an active plan whose features keep the given order.
func SeedPlan(t *testing.T, db *TestDB, name string, price string, features ...string) *models.Plan {
	t.Helper()

	ctx := context.Background()
	plan := &models.Plan{
		ID:          uuid.New(),
		Name:        name,
		Description: name + " plan",
		Price:       decimal.RequireFromString(price),
		IsActive:    true,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	query := `
		INSERT INTO plans (id, name, description, price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $6)
	`
	if _, err := db.Pool.Exec(ctx, query, plan.ID, plan.Name, plan.Description, plan.Price.String(), plan.IsActive, plan.CreatedAt); err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}

	for i, name := range features {
		feature := models.Feature{ID: uuid.New(), Name: name, IsActive: true}
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO features (id, name, description, is_active)
			VALUES ($1, $2, '', TRUE)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		`, feature.ID, feature.Name)
		if err != nil {
			t.Fatalf("Failed to create test feature: %v", err)
		}
		if err := db.Pool.QueryRow(ctx, `SELECT id FROM features WHERE name = $1`, name).Scan(&feature.ID); err != nil {
			t.Fatalf("Failed to read test feature: %v", err)
		}
		if _, err := db.Pool.Exec(ctx, `INSERT INTO plan_features (plan_id, feature_id, position) VALUES ($1, $2, $3)`, plan.ID, feature.ID, i); err != nil {
			t.Fatalf("Failed to link test feature: %v", err)
		}
		plan.Features = append(plan.Features, feature)
	}
	return plan
}
