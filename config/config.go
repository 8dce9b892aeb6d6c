package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config maps config.yaml. Every field has a default and most can be
// overridden from the environment, see applyEnv.
type Config struct {
	MySQL      MySQLConfig      `yaml:"mysql"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	Users      UsersConfig      `yaml:"users"`
	Tools      ToolsConfig      `yaml:"tools"`
	Paths      PathsConfig      `yaml:"paths"`
	Pipeline   Pipeline         `yaml:"pipeline"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	// LocalInfile enables LOAD DATA LOCAL INFILE for the bulk file stages.
	LocalInfile bool `yaml:"local_infile"`
}

// PostgreSQLConfig is the optional second relational target. The pipeline
// only touches it when Enabled is set.
type PostgreSQLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Copy loads with the COPY protocol instead of batched INSERTs.
	Copy bool `yaml:"copy"`
}

type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`

	BooksCollection   string `yaml:"books_collection"`
	AuthorsCollection string `yaml:"authors_collection"`
	TestCollection    string `yaml:"test_collection"`
}

// ConnectionURI is URI with User and Password injected when it carries no
// credentials of its own.
func (m MongoDBConfig) ConnectionURI() string {
	return BuildMongoURI(m.URI, m.User, m.Password)
}

// UsersConfig holds the restricted MySQL accounts created for the
// permission checks.
type UsersConfig struct {
	Host      string `yaml:"host"`
	PasswordA string `yaml:"password_a"`
	PasswordB string `yaml:"password_b"`
	PasswordC string `yaml:"password_c"`
}

type ToolsConfig struct {
	MySQL       string `yaml:"mysql"`
	MySQLDump   string `yaml:"mysqldump"`
	MongoImport string `yaml:"mongoimport"`
	MongoExport string `yaml:"mongoexport"`
	Mongosh     string `yaml:"mongosh"`
}

type PathsConfig struct {
	TmpDir      string `yaml:"tmp_dir"`
	ReportPath  string `yaml:"report"`
	MetricsPath string `yaml:"metrics"`
	SnapshotDir string `yaml:"snapshot_dir"`
	// SnapshotMaxAge is how long finished dumps are kept; zero keeps them all.
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age"`
}

// File returns name inside the temp directory.
func (p PathsConfig) File(name string) string {
	return filepath.Join(p.TmpDir, name)
}

// Default returns the full-size configuration against local servers.
func Default() *Config {
	return &Config{
		MySQL: MySQLConfig{
			Host:        "localhost",
			Port:        3306,
			User:        "root",
			DBName:      "LibrosAutores",
			LocalInfile: true,
		},
		PostgreSQL: PostgreSQLConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "librosautores",
			SSLMode: "disable",
			Copy:    true,
		},
		MongoDB: MongoDBConfig{
			URI:               "mongodb://localhost:27017",
			DBName:            "LibrosAutores",
			BooksCollection:   "Libros",
			AuthorsCollection: "Autores",
			TestCollection:    "test",
		},
		Users: UsersConfig{
			Host:      "localhost",
			PasswordA: "passwordA",
			PasswordB: "passwordB",
			PasswordC: "passwordC",
		},
		Tools: ToolsConfig{
			MySQL:       "mysql",
			MySQLDump:   "mysqldump",
			MongoImport: "mongoimport",
			MongoExport: "mongoexport",
			Mongosh:     "mongosh",
		},
		Paths: PathsConfig{
			TmpDir:         defaultTmpDir(),
			ReportPath:     "performance_report.html",
			MetricsPath:    "performance_metrics.json",
			SnapshotDir:    "dump_snapshots",
			SnapshotMaxAge: 7 * 24 * time.Hour,
		},
		Pipeline: DefaultPipeline(),
	}
}

func defaultTmpDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "tmp")
	}
	return filepath.Join(os.TempDir(), "librosautores")
}

// LoadConfig layers defaults, the yaml file at path (skipped when path is
// empty) and the environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// The reduced dataset replaces the defaults, so counts set in the
		// same file still win.
		var mode struct {
			Pipeline struct {
				Reduced bool `yaml:"reduced"`
			} `yaml:"pipeline"`
		}
		if err := yaml.Unmarshal(content, &mode); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if mode.Pipeline.Reduced {
			cfg.Pipeline.ApplyReduced()
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if _, ok := os.LookupEnv(key); !ok {
			return
		}
		n, err := GetEnvInt(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = n
	}

	setString("MYSQL_HOST", &c.MySQL.Host)
	setInt("MYSQL_PORT", &c.MySQL.Port)
	setString("MYSQL_USER", &c.MySQL.User)
	setString("MYSQL_PASSWORD", &c.MySQL.Password)
	setString("MYSQL_DATABASE", &c.MySQL.DBName)

	setString("POSTGRES_HOST", &c.PostgreSQL.Host)
	setInt("POSTGRES_PORT", &c.PostgreSQL.Port)
	setString("POSTGRES_USER", &c.PostgreSQL.User)
	setString("POSTGRES_PASSWORD", &c.PostgreSQL.Password)
	setString("POSTGRES_DATABASE", &c.PostgreSQL.DBName)
	if v, ok := os.LookupEnv("POSTGRES_ENABLED"); ok {
		c.PostgreSQL.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	setString("MONGO_URI", &c.MongoDB.URI)
	setString("MONGO_USER", &c.MongoDB.User)
	setString("MONGO_PASSWORD", &c.MongoDB.Password)
	setString("MONGO_DATABASE", &c.MongoDB.DBName)

	setString("TMP_DIR", &c.Paths.TmpDir)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.MySQL.Host == "" {
		errs = append(errs, errors.New("mysql.host is required"))
	}
	if c.MySQL.DBName == "" {
		errs = append(errs, errors.New("mysql.dbname is required"))
	}
	if c.MySQL.Port <= 0 {
		errs = append(errs, fmt.Errorf("mysql.port must be positive, got %d", c.MySQL.Port))
	}
	if c.MongoDB.URI == "" {
		errs = append(errs, errors.New("mongodb.uri is required"))
	}
	if c.MongoDB.DBName == "" {
		errs = append(errs, errors.New("mongodb.dbname is required"))
	}
	if c.PostgreSQL.Enabled && c.PostgreSQL.Port <= 0 {
		errs = append(errs, fmt.Errorf("postgresql.port must be positive, got %d", c.PostgreSQL.Port))
	}
	if c.Paths.TmpDir == "" {
		errs = append(errs, errors.New("paths.tmp_dir is required"))
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
