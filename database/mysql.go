package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
)

// MySQL server error numbers the pipeline reacts to.
const (
	errDBAccessDenied      = 1044
	errAccessDenied        = 1045
	errTableAccessDenied   = 1142
	errNotAllowedCommand   = 1148
	errOptionPrevents      = 1290
	errLocalInfileDisabled = 3948
)

type MySQLClient struct {
	User     string
	Password string
	Host     string
	Port     int
	DBName   string
	DB       *sql.DB
}

// NewMySQLClient builds a client from explicit parameters.
func NewMySQLClient(user, password, host string, port int, dbname string) *MySQLClient {
	return &MySQLClient{
		User:     user,
		Password: password,
		Host:     host,
		Port:     port,
		DBName:   dbname,
	}
}

func NewMySQLClientFromConfig(cfg *config.Config) *MySQLClient {
	return NewMySQLClient(cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
}

// As returns an unconnected client for the same server and database under
// another account.
func (c *MySQLClient) As(user, password string) *MySQLClient {
	return NewMySQLClient(user, password, c.Host, c.Port, c.DBName)
}

// DSN is the go-sql-driver data source name for this client.
func (c *MySQLClient) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

func (c *MySQLClient) Connect() error {
	return c.ConnectContext(context.Background())
}

func (c *MySQLClient) ConnectContext(ctx context.Context) error {
	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping MySQL at %s:%d: %w", c.Host, c.Port, err)
	}
	DefaultPoolSettings().Apply(db)
	c.DB = db
	log.Printf("Connected to MySQL database %s at %s:%d as %s", c.DBName, c.Host, c.Port, c.User)
	return nil
}

func (c *MySQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func (c *MySQLClient) ready() error {
	if c.DB == nil {
		return errors.New("db connection not established")
	}
	return nil
}

func (c *MySQLClient) ExecuteQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.DB.QueryContext(ctx, query, args...)
}

// CountRows implements RowCounter.
func (c *MySQLClient) CountRows(ctx context.Context, table string) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var n int64
	query := "SELECT COUNT(*) FROM " + loader.MySQL.QuoteIdentifier(table)
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// Truncate empties tables in order with foreign key checks disabled on one
// connection.
func (c *MySQLClient) Truncate(ctx context.Context, tables ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	for _, table := range tables {
		if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+loader.MySQL.QuoteIdentifier(table)); err != nil {
			conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		return fmt.Errorf("failed to enable foreign key checks: %w", err)
	}
	return nil
}

// LoadCSV batch-inserts a CSV file through the loader.
func (c *MySQLClient) LoadCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, opts ...loader.Option) (*loader.Result, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	opts = append([]loader.Option{loader.WithDialect(loader.MySQL)}, opts...)
	return loader.LoadCSV(ctx, c.DB, path, table, columns, transform, opts...)
}

// LoadDataOptions describes a csvcodec file for LOAD DATA.
type LoadDataOptions struct {
	Columns []string
	// NullIfEmpty lists columns whose empty field means NULL.
	NullIfEmpty []string
	IgnoreLines int
}

// LoadDataStatement renders the LOAD DATA LOCAL INFILE statement for path.
func LoadDataStatement(path, table string, opts LoadDataOptions) string {
	nullable := make(map[string]bool, len(opts.NullIfEmpty))
	for _, col := range opts.NullIfEmpty {
		nullable[col] = true
	}

	targets := make([]string, len(opts.Columns))
	var sets []string
	for i, col := range opts.Columns {
		if nullable[col] {
			variable := "@v_" + col
			targets[i] = variable
			sets = append(sets, fmt.Sprintf("%s = NULLIF(%s, '')", loader.MySQL.QuoteIdentifier(col), variable))
			continue
		}
		targets[i] = loader.MySQL.QuoteIdentifier(col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "LOAD DATA LOCAL INFILE %s INTO TABLE %s", quoteLiteral(path), loader.MySQL.QuoteIdentifier(table))
	sb.WriteString(` FIELDS TERMINATED BY ',' ENCLOSED BY '"' ESCAPED BY '' LINES TERMINATED BY '\n'`)
	if opts.IgnoreLines > 0 {
		fmt.Fprintf(&sb, " IGNORE %d LINES", opts.IgnoreLines)
	}
	fmt.Fprintf(&sb, " (%s)", strings.Join(targets, ", "))
	if len(sets) > 0 {
		sb.WriteString(" SET " + strings.Join(sets, ", "))
	}
	return sb.String()
}

// LoadDataLocalInfile bulk loads a file with LOAD DATA LOCAL INFILE. The file
// is registered with the driver for the duration of the statement only.
func (c *MySQLClient) LoadDataLocalInfile(ctx context.Context, path, table string, opts LoadDataOptions) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	mysql.RegisterLocalFile(abs)
	defer mysql.DeregisterLocalFile(abs)

	res, err := c.DB.ExecContext(ctx, LoadDataStatement(abs, table, opts))
	if err != nil {
		return 0, fmt.Errorf("load data into %s: %w", table, err)
	}
	return res.RowsAffected()
}

// BulkLoadCSV tries LOAD DATA first and falls back to batched INSERTs when
// the server refuses file loading. fallback reports which path ran.
func (c *MySQLClient) BulkLoadCSV(ctx context.Context, path, table string, opts LoadDataOptions, transform loader.Transform, loadOpts ...loader.Option) (inserted int64, fallback bool, err error) {
	opts.IgnoreLines = 1
	n, err := c.LoadDataLocalInfile(ctx, path, table, opts)
	if err == nil {
		return n, false, nil
	}
	if !IsBulkLoadUnavailable(err) {
		return 0, false, err
	}

	log.Printf("LOAD DATA unavailable for %s (%v), falling back to batch insert", table, err)
	res, err := c.LoadCSV(ctx, path, table, opts.Columns, transform, loadOpts...)
	if res != nil {
		inserted = res.Inserted
	}
	return inserted, true, err
}

// ExportTableCSV writes columns of table to path in csvcodec format and
// returns the number of data rows written.
func (c *MySQLClient) ExportTableCSV(ctx context.Context, table string, columns []string, path string) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = loader.MySQL.QuoteIdentifier(col)
	}
	rows, err := c.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), loader.MySQL.QuoteIdentifier(table)))
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	return writeRowsCSV(rows, columns, path)
}

func writeRowsCSV(rows *sql.Rows, columns []string, path string) (int64, error) {
	return writeFile(path, func(w *bufio.Writer) (int64, error) {
		if _, err := w.WriteString(strings.Join(columns, ",") + "\n"); err != nil {
			return 0, err
		}

		var count int64
		scanned := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		values := make([]any, len(columns))
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return count, fmt.Errorf("failed to scan row: %w", err)
			}
			for i, v := range scanned {
				values[i] = nil
				if v.Valid {
					values[i] = v.String
				}
			}
			line, err := csvcodec.FormatRow(values)
			if err != nil {
				return count, err
			}
			if _, err := w.WriteString(line + "\n"); err != nil {
				return count, err
			}
			count++
		}
		if err := rows.Err(); err != nil {
			return count, fmt.Errorf("error during row iteration: %w", err)
		}
		return count, nil
	})
}

// BookStats is the aggregate read by the complex query stage.
type BookStats struct {
	Books    int64
	MinPages int64
	MaxPages int64
	AvgPages float64
	MinYear  int64
	MaxYear  int64
	Authors  int64
}

func (c *MySQLClient) BookStats(ctx context.Context) (BookStats, error) {
	var (
		stats                                BookStats
		minPages, maxPages, minYear, maxYear sql.NullInt64
		avgPages                             sql.NullFloat64
	)
	if err := c.ready(); err != nil {
		return stats, err
	}
	err := c.DB.QueryRowContext(ctx, bookStatsQuery).Scan(
		&stats.Books, &minPages, &maxPages, &avgPages, &minYear, &maxYear, &stats.Authors)
	if err != nil {
		return stats, fmt.Errorf("failed to read book statistics: %w", err)
	}
	stats.MinPages = minPages.Int64
	stats.MaxPages = maxPages.Int64
	stats.AvgPages = avgPages.Float64
	stats.MinYear = minYear.Int64
	stats.MaxYear = maxYear.Int64
	return stats, nil
}

const bookStatsQuery = `SELECT COUNT(*), MIN(l.pages), MAX(l.pages), AVG(l.pages), MIN(l.year), MAX(l.year),
	COUNT(DISTINCT l.autor_license)
FROM Libro l LEFT JOIN Autor a ON a.license = l.autor_license`

// IsBulkLoadUnavailable reports whether err means the server or driver
// refused LOAD DATA, so a batched insert should be used instead.
func IsBulkLoadUnavailable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errOptionPrevents, errNotAllowedCommand, errLocalInfileDisabled:
			return true
		}
		return false
	}
	// raised by the driver itself when the file is not registered
	return err != nil && strings.Contains(err.Error(), "local file")
}

// IsPermissionDenied reports an access error for the current account.
func IsPermissionDenied(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case errDBAccessDenied, errAccessDenied, errTableAccessDenied:
		return true
	}
	return false
}

func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
