package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
)

// Table names of the benchmark schema.
const (
	TableAuthors  = "Autor"
	TableBooks    = "Libro"
	TableOldBooks = "old_books"
	TableTest     = "test"
)

// Columns loaded into the tables, in CSV order.
var (
	AuthorColumns   = []string{"license", "name", "lastName", "secondLastName", "year"}
	BookColumns     = []string{"ISBN", "title", "autor_license", "editorial", "pages", "year", "genre", "language", "format", "sinopsis", "content"}
	OldBookColumns  = []string{"ISBN", "year", "pages"}
	ExportedAuthors = append([]string{"id"}, AuthorColumns...)
	ExportedBooks   = append([]string{"id"}, BookColumns...)
)

const createAuthorTable = `CREATE TABLE Autor (
	id INT NOT NULL AUTO_INCREMENT,
	license VARCHAR(12) NOT NULL UNIQUE,
	name TINYTEXT NOT NULL,
	lastName TINYTEXT NOT NULL,
	secondLastName TINYTEXT,
	year SMALLINT NOT NULL,
	PRIMARY KEY (id)
)`

const createBookTable = `CREATE TABLE Libro (
	id INT NOT NULL AUTO_INCREMENT,
	ISBN VARCHAR(16) NOT NULL UNIQUE,
	title VARCHAR(512) NOT NULL,
	autor_license VARCHAR(12),
	editorial TINYTEXT,
	pages SMALLINT,
	year SMALLINT NOT NULL,
	genre TINYTEXT,
	language TINYTEXT NOT NULL,
	format TINYTEXT,
	sinopsis TEXT,
	content TEXT,
	PRIMARY KEY (id),
	FOREIGN KEY (autor_license) REFERENCES Autor(license)
)`

const createOldBooksTable = `CREATE TABLE old_books (
	id INT NOT NULL AUTO_INCREMENT,
	ISBN VARCHAR(16),
	pages SMALLINT,
	year SMALLINT,
	PRIMARY KEY (id)
)`

const createTestTable = `CREATE TABLE test (
	id INT NOT NULL AUTO_INCREMENT,
	x INT,
	y INT,
	z VARCHAR(100),
	PRIMARY KEY (id)
)`

// SchemaStatements drops and recreates the three tables.
func SchemaStatements() []string {
	return []string{
		"DROP TABLE IF EXISTS old_books",
		"DROP TABLE IF EXISTS test",
		"DROP TABLE IF EXISTS Libro",
		"DROP TABLE IF EXISTS Autor",
		createAuthorTable,
		createBookTable,
		createOldBooksTable,
		createTestTable,
	}
}

// SetupSchema recreates Autor, Libro, old_books and test empty.
func (c *MySQLClient) SetupSchema(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	for _, stmt := range SchemaStatements() {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %q failed: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Grant is one privilege set of a restricted account.
type Grant struct {
	Privileges []string
	Table      string
}

// UserAccount is a restricted account used by the permission checks.
type UserAccount struct {
	Name     string
	Password string
	Grants   []Grant
}

var writePrivileges = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

// BenchmarkUsers returns the three restricted accounts: userA writes books
// and reads authors, userB the reverse, userC has no privileges.
func BenchmarkUsers(users config.UsersConfig) []UserAccount {
	return []UserAccount{
		{Name: "userA", Password: users.PasswordA, Grants: []Grant{
			{Privileges: writePrivileges, Table: TableBooks},
			{Privileges: []string{"SELECT"}, Table: TableAuthors},
		}},
		{Name: "userB", Password: users.PasswordB, Grants: []Grant{
			{Privileges: writePrivileges, Table: TableAuthors},
			{Privileges: []string{"SELECT"}, Table: TableBooks},
		}},
		{Name: "userC", Password: users.PasswordC},
	}
}

// UserStatements renders the DROP/CREATE/GRANT statements for accounts on
// database db at host.
func UserStatements(db, host string, accounts []UserAccount) []string {
	var stmts []string
	for _, u := range accounts {
		account := fmt.Sprintf("%s@%s", quoteLiteral(u.Name), quoteLiteral(host))
		stmts = append(stmts,
			"DROP USER IF EXISTS "+account,
			fmt.Sprintf("CREATE USER %s IDENTIFIED BY %s", account, quoteLiteral(u.Password)),
		)
		for _, g := range u.Grants {
			stmts = append(stmts, fmt.Sprintf("GRANT %s ON %s.%s TO %s",
				strings.Join(g.Privileges, ", "), loader.MySQL.QuoteIdentifier(db), loader.MySQL.QuoteIdentifier(g.Table), account))
		}
	}
	return append(stmts, "FLUSH PRIVILEGES")
}

// CreateUsers (re)creates the restricted accounts.
func (c *MySQLClient) CreateUsers(ctx context.Context, users config.UsersConfig) error {
	if err := c.ready(); err != nil {
		return err
	}
	for _, stmt := range UserStatements(c.DBName, users.Host, BenchmarkUsers(users)) {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("user statement %q failed: %w", redactStatement(stmt), err)
		}
	}
	return nil
}

// probeRows are minimal valid rows used to check write privileges.
var probeRows = map[string]struct {
	columns []string
	values  []any
}{
	TableBooks:   {[]string{"ISBN", "title", "year", "language"}, []any{"000-PROBE", "permission probe", 2000, "English"}},
	TableAuthors: {[]string{"license", "name", "lastName", "year"}, []any{"PROBE-00000", "probe", "probe", 2000}},
}

// InsertProbeRow tries to insert one minimal row into table with the
// client's account. The permission checks expect it to fail.
func (c *MySQLClient) InsertProbeRow(ctx context.Context, table string) error {
	if err := c.ready(); err != nil {
		return err
	}
	probe, ok := probeRows[table]
	if !ok {
		return fmt.Errorf("no probe row for table %s", table)
	}
	_, err := loader.InsertRows(ctx, c.DB, loader.MySQL, table, probe.columns, [][]any{probe.values})
	return err
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func redactStatement(stmt string) string {
	if i := strings.Index(stmt, " IDENTIFIED BY "); i >= 0 {
		return stmt[:i] + " IDENTIFIED BY '***'"
	}
	return stmt
}
