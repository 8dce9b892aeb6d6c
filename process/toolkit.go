package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MySQLTarget is what the mysql client tools need to reach a server.
type MySQLTarget struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// MongoTarget is what the mongo tools need to reach a deployment.
type MongoTarget struct {
	URI      string
	Database string
}

// Toolkit builds and runs the database CLI invocations used by the pipeline.
// Binary paths default to the plain tool names resolved through PATH.
type Toolkit struct {
	MySQL  MySQLTarget
	Mongo  MongoTarget
	Silent bool

	MySQLBin       string
	MySQLDumpBin   string
	MongoImportBin string
	MongoExportBin string
	MongoshBin     string

	run func(ctx context.Context, p *Process, input io.Reader) (Output, error)
}

func NewToolkit(mysql MySQLTarget, mongo MongoTarget) *Toolkit {
	return &Toolkit{
		MySQL:          mysql,
		Mongo:          mongo,
		MySQLBin:       "mysql",
		MySQLDumpBin:   "mysqldump",
		MongoImportBin: "mongoimport",
		MongoExportBin: "mongoexport",
		MongoshBin:     "mongosh",
	}
}

func (t *Toolkit) exec(ctx context.Context, p *Process, input io.Reader) (Output, error) {
	if t.Silent {
		p.Silent()
	}
	if t.run != nil {
		return t.run(ctx, p, input)
	}
	if input == nil {
		return p.Run(ctx)
	}
	return p.RunWithInput(ctx, input)
}

// mysqlProcess carries the password in MYSQL_PWD so it never shows up in the
// process list.
func (t *Toolkit) mysqlProcess(bin string) *Process {
	p := New(bin)
	if t.MySQL.Host != "" {
		p.AddArgs("-h", t.MySQL.Host)
	}
	if t.MySQL.Port > 0 {
		p.AddArgs("-P", strconv.Itoa(t.MySQL.Port))
	}
	if t.MySQL.User != "" {
		p.AddArgs("-u", t.MySQL.User)
	}
	if t.MySQL.Password != "" {
		p.Env("MYSQL_PWD=" + t.MySQL.Password)
	}
	return p
}

// MySQLDump writes a dump of the configured database to outFile.
func (t *Toolkit) MySQLDump(ctx context.Context, outFile string, tables ...string) (Output, error) {
	if t.MySQL.Database == "" {
		return Output{}, fmt.Errorf("mysqldump: no database configured")
	}
	p := t.mysqlProcess(t.MySQLDumpBin).
		AddArgs("--single-transaction", "--routines", "--result-file="+outFile, t.MySQL.Database).
		AddArgs(tables...)
	return t.exec(ctx, p, nil)
}

// MySQLRestore pipes dumpFile into the mysql client.
func (t *Toolkit) MySQLRestore(ctx context.Context, dumpFile string) (Output, error) {
	f, err := os.Open(dumpFile)
	if err != nil {
		return Output{}, fmt.Errorf("failed to open dump %s: %w", dumpFile, err)
	}
	defer f.Close()

	p := t.mysqlProcess(t.MySQLBin).AddArgs(t.MySQL.Database)
	return t.exec(ctx, p, f)
}

// MySQLExec runs an SQL script through the mysql client. An empty database
// runs it without a default schema, as needed for DROP/CREATE DATABASE.
func (t *Toolkit) MySQLExec(ctx context.Context, database, script string) (Output, error) {
	p := t.mysqlProcess(t.MySQLBin)
	if database != "" {
		p.AddArgs(database)
	}
	return t.exec(ctx, p, strings.NewReader(script))
}

// ImportOptions selects the mongoimport input format.
type ImportOptions struct {
	Type       string
	Fields     []string
	HeaderLine bool
	Drop       bool
	// IgnoreBlanks leaves empty CSV fields out of the document instead of
	// storing empty strings.
	IgnoreBlanks bool
}

// MongoImport loads file into collection.
func (t *Toolkit) MongoImport(ctx context.Context, collection, file string, opts ImportOptions) (Output, error) {
	p := New(t.MongoImportBin, t.mongoArgs(collection)...)
	if opts.Type != "" {
		p.AddArgs("--type", opts.Type)
	}
	switch {
	case opts.HeaderLine:
		p.AddArgs("--headerline")
	case len(opts.Fields) > 0:
		p.AddArgs("--fields", strings.Join(opts.Fields, ","))
	}
	if opts.Drop {
		p.AddArgs("--drop")
	}
	if opts.IgnoreBlanks {
		p.AddArgs("--ignoreBlanks")
	}
	p.AddArgs("--file", file)
	return t.exec(ctx, p, nil)
}

// ExportOptions selects the mongoexport output format.
type ExportOptions struct {
	Type   string
	Fields []string
}

// MongoExport writes collection to outFile.
func (t *Toolkit) MongoExport(ctx context.Context, collection, outFile string, opts ExportOptions) (Output, error) {
	if opts.Type == "csv" && len(opts.Fields) == 0 {
		return Output{}, fmt.Errorf("mongoexport: csv export of %s needs fields", collection)
	}
	p := New(t.MongoExportBin, t.mongoArgs(collection)...)
	if opts.Type != "" {
		p.AddArgs("--type", opts.Type)
	}
	if len(opts.Fields) > 0 {
		p.AddArgs("--fields", strings.Join(opts.Fields, ","))
	}
	p.AddArgs("--out", outFile)
	return t.exec(ctx, p, nil)
}

// MongoDropCollection feeds a drop script to mongosh on standard input.
func (t *Toolkit) MongoDropCollection(ctx context.Context, collection string) (Output, error) {
	p := New(t.MongoshBin, "--quiet")
	if t.Mongo.URI != "" {
		p.AddArgs(t.Mongo.URI)
	}
	script := fmt.Sprintf("use %s;\ndb.getCollection(%q).drop();\n", t.Mongo.Database, collection)
	return t.exec(ctx, p, strings.NewReader(script))
}

func (t *Toolkit) mongoArgs(collection string) []string {
	var args []string
	if t.Mongo.URI != "" {
		args = append(args, "--uri", t.Mongo.URI)
	}
	if t.Mongo.Database != "" {
		args = append(args, "--db", t.Mongo.Database)
	}
	return append(args, "--collection", collection)
}
