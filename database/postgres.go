package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
)

type PostgreSQLClient struct {
	User     string
	Password string
	Host     string
	Port     int
	DBName   string
	SSLMode  string
	DB       *sql.DB
}

func NewPostgreSQLClient(user, password, host string, port int, dbname string) *PostgreSQLClient {
	return &PostgreSQLClient{
		User:     user,
		Password: password,
		Host:     host,
		Port:     port,
		DBName:   dbname,
		SSLMode:  "disable",
	}
}

func NewPostgreSQLClientFromConfig(cfg *config.Config) *PostgreSQLClient {
	client := NewPostgreSQLClient(cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.DBName)
	if cfg.PostgreSQL.SSLMode != "" {
		client.SSLMode = cfg.PostgreSQL.SSLMode
	}
	return client
}

// DSN is the lib/pq keyword/value connection string.
func (p *PostgreSQLClient) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func (p *PostgreSQLClient) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", p.DSN())
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping PostgreSQL at %s:%d: %w", p.Host, p.Port, err)
	}
	DefaultPoolSettings().Apply(db)
	p.DB = db
	log.Printf("Connected to PostgreSQL database %s at %s:%d", p.DBName, p.Host, p.Port)
	return nil
}

func (p *PostgreSQLClient) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

const createPostgresBookTable = `CREATE TABLE "Libro" (
	id SERIAL PRIMARY KEY,
	"ISBN" VARCHAR(16) NOT NULL UNIQUE,
	title VARCHAR(512) NOT NULL,
	autor_license VARCHAR(12),
	editorial TEXT,
	pages SMALLINT,
	year SMALLINT NOT NULL,
	genre TEXT,
	language TEXT NOT NULL,
	format TEXT,
	sinopsis TEXT,
	content TEXT
)`

// SetupSchema recreates the books table. Authors are never loaded into
// PostgreSQL so the license carries no foreign key here.
func (p *PostgreSQLClient) SetupSchema(ctx context.Context) error {
	if p.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	for _, stmt := range []string{`DROP TABLE IF EXISTS "Libro"`, createPostgresBookTable} {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %q failed: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// LoadCSV batch-inserts a CSV file with $n placeholders.
func (p *PostgreSQLClient) LoadCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, opts ...loader.Option) (*loader.Result, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	opts = append([]loader.Option{loader.WithDialect(loader.Postgres)}, opts...)
	return loader.LoadCSV(ctx, p.DB, path, table, columns, transform, opts...)
}

// CountRows implements RowCounter.
func (p *PostgreSQLClient) CountRows(ctx context.Context, table string) (int64, error) {
	if p.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	var n int64
	if err := p.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+loader.Postgres.QuoteIdentifier(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}
