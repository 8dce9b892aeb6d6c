package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/generator"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/process"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/validation"
)

const batchPrefix = "books_batch"

var (
	nullableBookColumns = []string{"autor_license", "editorial", "pages", "genre", "format", "sinopsis", "content"}

	bookFile       = FileLayout{Columns: database.BookColumns, NullIfEmpty: nullableBookColumns}
	authorFile     = FileLayout{Columns: database.AuthorColumns, NullIfEmpty: []string{"secondLastName"}}
	oldBookFile    = FileLayout{Columns: database.OldBookColumns, NullIfEmpty: database.OldBookColumns}
	exportedAuthor = FileLayout{Columns: database.ExportedAuthors, NullIfEmpty: []string{"secondLastName"}}
	exportedBook   = FileLayout{Columns: database.ExportedBooks, NullIfEmpty: nullableBookColumns}

	// dumpTables are the tables captured by the dump stage.
	dumpTables = []string{database.TableAuthors, database.TableBooks, database.TableOldBooks, database.TableTest}
)

// Stages lists the benchmark in execution order. The PostgreSQL stage is
// only present when a PostgreSQL store is configured.
func (e *Engine) Stages() []Stage {
	stages := []Stage{
		{Label: "setup_schema", Name: "Setup Schema", Run: e.setupSchema},
		{Label: "generate_large_books_csv", Name: "Generate Books CSV", Run: e.generateLargeBooksCSV},
		{Label: "insert_large_books_csv", Name: "Insert CSV into MySQL", Inserts: true, Run: e.insertLargeBooksCSV},
		{Label: "stress_test_mysql", Name: "Stress Test", Inserts: true, Run: e.stressTestMySQL},
		{Label: "generate_multiple_csv", Name: "Generate CSV Files", Run: e.generateMultipleCSV},
		{Label: "insert_multiple_csv", Name: "Insert Multiple CSV Files", Inserts: true, Run: e.insertMultipleCSV},
		{Label: "complex_query", Name: "Complex Query Execution", Run: e.complexQuery},
		{Label: "generate_insert_authors", Name: "Generate & Insert Authors", Inserts: true, Run: e.generateInsertAuthors},
		{Label: "export_tables_csv", Name: "Export Tables to CSV", Run: e.exportTablesCSV},
		{Label: "migrate_restore", Name: "Migrate & Restore MySQL/MongoDB", Run: e.migrateRestore},
		{Label: "mysql_dump", Name: "MySQL Database Dump", Run: e.mysqlDump},
		{Label: "mysql_restore", Name: "MySQL Database Restore", Run: e.mysqlRestore},
		{Label: "permission_failures", Name: "Permission Failure Tests", Run: e.permissionFailures},
		{Label: "generate_million_mongodb", Name: "Generate Books in MongoDB", Inserts: true, Run: e.generateMillionMongoDB},
		{Label: "export_to_csv", Name: "Export MongoDB Books to CSV", Run: e.exportToCSV},
		{Label: "import_to_mysql", Name: "Import CSV into old_books", Inserts: true, Run: e.importToMySQL},
		{Label: "dual_insert", Name: "Dual Insert MySQL/MongoDB", Inserts: true, Run: e.dualInsert},
	}
	if e.Postgres != nil {
		stages = append(stages, Stage{Label: "postgres_books", Name: "Load Books into PostgreSQL", Inserts: true, Run: e.postgresBooks})
	}
	return stages
}

// StageLabels lists every stage label, PostgreSQL included.
func StageLabels() []string {
	var labels []string
	for _, st := range (&Engine{}).Stages() {
		labels = append(labels, st.Label)
	}
	return append(labels, "postgres_books")
}

func (e *Engine) file(name string) string {
	return e.Config.Paths.File(name)
}

func (e *Engine) setupSchema(ctx context.Context) (int64, error) {
	return 0, e.MySQL.SetupSchema(ctx)
}

func (e *Engine) generateLargeBooksCSV(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	if err := e.Generator.WriteBooksCSV(e.file("books.csv"), p.BooksCount, p.ChunkSize, nil); err != nil {
		return 0, err
	}
	return int64(p.BooksCount), nil
}

// loadAndCheck loads path into table and checks the table grew by the
// file's data rows.
func (e *Engine) loadAndCheck(ctx context.Context, path, table string, layout FileLayout) (int64, error) {
	baseline, err := e.MySQL.CountRows(ctx, table)
	if err != nil {
		return 0, err
	}
	n, err := e.MySQL.LoadFile(ctx, path, table, layout)
	if err != nil {
		return n, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return n, e.recordChecks(validation.ValidateCSVLoad(ctx, e.MySQL, table, baseline, path))
}

func (e *Engine) insertLargeBooksCSV(ctx context.Context) (int64, error) {
	return e.loadAndCheck(ctx, e.file("books.csv"), database.TableBooks, bookFile)
}

func (e *Engine) stressTestMySQL(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	books, err := e.Generator.GenerateBooks(p.StressCount, 0, nil)
	if err != nil {
		return 0, err
	}
	return e.MySQL.InsertBooks(ctx, books, p.StressBatchSize)
}

func (e *Engine) generateMultipleCSV(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	files, err := e.Generator.WriteBookFiles(e.file("batches"), batchPrefix, p.BatchFiles, p.BooksPerFile)
	e.batchFiles = files
	if err != nil {
		return 0, err
	}
	return int64(len(files) * p.BooksPerFile), nil
}

// batchFileList returns the files of the generate stage, or the ones left on
// disk by an earlier run when that stage was skipped.
func (e *Engine) batchFileList() ([]string, error) {
	if len(e.batchFiles) > 0 {
		return e.batchFiles, nil
	}
	files, err := filepath.Glob(filepath.Join(e.file("batches"), batchPrefix+"_*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) insertMultipleCSV(ctx context.Context) (int64, error) {
	files, err := e.batchFileList()
	if err != nil {
		return 0, err
	}
	baseline, err := e.MySQL.CountRows(ctx, database.TableBooks)
	if err != nil {
		return 0, err
	}

	results, err := database.LoadFilesWithWorkerPool(ctx, files, database.DefaultWorkers,
		func(ctx context.Context, path string) (int64, error) {
			return e.MySQL.LoadFile(ctx, path, database.TableBooks, bookFile)
		})
	inserted := database.TotalInserted(results)
	if err != nil {
		return inserted, err
	}
	return inserted, e.recordChecks(validation.ValidateCSVLoad(ctx, e.MySQL, database.TableBooks, baseline, files...))
}

func (e *Engine) complexQuery(ctx context.Context) (int64, error) {
	stats, err := e.MySQL.BookStats(ctx)
	if err != nil {
		return 0, err
	}
	e.Logger.Info(fmt.Sprintf("Books: %d, pages %d-%d (avg %.1f), years %d-%d, %d authors with books",
		stats.Books, stats.MinPages, stats.MaxPages, stats.AvgPages, stats.MinYear, stats.MaxYear, stats.Authors))
	return stats.Books, nil
}

func (e *Engine) generateInsertAuthors(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	path := e.file("authors.csv")
	if err := e.Generator.WriteAuthorsCSV(path, generator.AuthorLoadSchema, p.AuthorsCount, p.ChunkSize, p.AuthorStartID); err != nil {
		return 0, err
	}
	return e.loadAndCheck(ctx, path, database.TableAuthors, authorFile)
}

func (e *Engine) exportTablesCSV(ctx context.Context) (int64, error) {
	authors, err := e.MySQL.ExportTableCSV(ctx, database.TableAuthors, database.ExportedAuthors, e.file("Autor.csv"))
	if err != nil {
		return authors, err
	}
	books, err := e.MySQL.ExportTableCSV(ctx, database.TableBooks, database.ExportedBooks, e.file("Libro.csv"))
	return authors + books, err
}

// migrateRestore drops the target collections, copies Autor and Libro into
// MongoDB, empties the tables and reloads them from MongoDB, checking row
// counts on both legs.
func (e *Engine) migrateRestore(ctx context.Context) (int64, error) {
	mongoCfg := e.Config.MongoDB
	tables := []string{database.TableAuthors, database.TableBooks}
	collections := map[string]string{
		database.TableAuthors: mongoCfg.AuthorsCollection,
		database.TableBooks:   mongoCfg.BooksCollection,
	}
	layouts := map[string]FileLayout{
		database.TableAuthors: exportedAuthor,
		database.TableBooks:   exportedBook,
	}

	pre, err := validation.NewMigrationValidator(e.MySQL, e.MySQL).PreMigrationValidation(ctx, tables)
	if err != nil {
		return 0, err
	}

	_, err = e.Timer.Time("mongo_drop", func() error {
		for _, table := range tables {
			if _, err := e.Tools.MongoDropCollection(ctx, collections[table]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var moved int64
	for _, table := range tables {
		path := e.file("migrate_" + table + ".csv")
		n, err := e.MySQL.ExportTableCSV(ctx, table, layouts[table].Columns, path)
		if err != nil {
			return moved, err
		}
		_, err = e.Tools.MongoImport(ctx, collections[table], path, process.ImportOptions{
			Type:         "csv",
			HeaderLine:   true,
			IgnoreBlanks: true,
		})
		if err != nil {
			return moved, err
		}
		moved += n
	}

	toMongo := validation.NewMigrationValidator(e.MySQL, e.Mongo)
	toMongo.TargetNames = collections
	post, err := toMongo.PostMigrationValidation(ctx, tables, pre)
	if err != nil {
		return moved, err
	}
	if err := e.recordChecks(post...); err != nil {
		return moved, err
	}

	if err := e.MySQL.Truncate(ctx, database.TableBooks, database.TableAuthors); err != nil {
		return moved, err
	}

	// Authors first so book licenses resolve.
	for _, table := range tables {
		path := e.file("restore_" + table + ".csv")
		_, err := e.Tools.MongoExport(ctx, collections[table], path, process.ExportOptions{
			Type:   "csv",
			Fields: layouts[table].Columns,
		})
		if err != nil {
			return moved, err
		}
		n, err := e.MySQL.LoadFile(ctx, path, table, layouts[table])
		if err != nil {
			return moved, fmt.Errorf("reload %s: %w", table, err)
		}
		moved += n
	}

	back, err := validation.NewMigrationValidator(e.MySQL, e.MySQL).PostMigrationValidation(ctx, tables, pre)
	if err != nil {
		return moved, err
	}
	return moved, e.recordChecks(back...)
}

func (e *Engine) mysqlDump(ctx context.Context) (int64, error) {
	snapshot, err := e.Snapshots.CreateSnapshot(ctx, e.Config.MySQL.DBName, dumpTables)
	if err != nil {
		return 0, err
	}
	if _, err := e.Tools.MySQLDump(ctx, snapshot.File); err != nil {
		if markErr := e.Snapshots.MarkSnapshotFailed(snapshot.ID, err); markErr != nil {
			e.Logger.Warn("Could not mark snapshot failed: " + markErr.Error())
		}
		return 0, err
	}
	if err := e.Snapshots.MarkSnapshotCompleted(snapshot.ID); err != nil {
		return 0, err
	}
	e.lastDump = snapshot

	if info, err := os.Stat(snapshot.File); err == nil {
		e.Logger.Info(fmt.Sprintf("Dump %s written (%d bytes)", snapshot.File, info.Size()))
	}
	if maxAge := e.Config.Paths.SnapshotMaxAge; maxAge > 0 {
		if _, err := e.Snapshots.CleanupOldSnapshots(maxAge); err != nil {
			e.Logger.Warn("Could not clean up old snapshots: " + err.Error())
		}
	}
	return snapshotRows(snapshot), nil
}

// resetDatabase drops and recreates the MySQL database so a restore starts
// from an empty schema.
func (e *Engine) resetDatabase(ctx context.Context) error {
	name := loader.MySQL.QuoteIdentifier(e.Config.MySQL.DBName)
	script := fmt.Sprintf("DROP DATABASE IF EXISTS %s;\nCREATE DATABASE %s;\n", name, name)
	_, err := e.Tools.MySQLExec(ctx, "", script)
	return err
}

func (e *Engine) mysqlRestore(ctx context.Context) (int64, error) {
	snapshot := e.lastDump
	if snapshot == nil {
		latest, err := e.Snapshots.LatestCompleted()
		if err != nil {
			return 0, err
		}
		snapshot = latest
	}

	if _, err := e.Timer.Time("mysql_drop", func() error { return e.resetDatabase(ctx) }); err != nil {
		return 0, fmt.Errorf("reset database: %w", err)
	}
	if _, err := e.Tools.MySQLRestore(ctx, snapshot.File); err != nil {
		return 0, err
	}
	if err := e.Snapshots.MarkSnapshotRestored(snapshot.ID); err != nil {
		e.Logger.Warn("Could not mark snapshot restored: " + err.Error())
	}

	results, err := e.Snapshots.VerifyRestore(ctx, snapshot)
	if err != nil {
		return 0, err
	}
	return snapshotRows(snapshot), e.recordChecks(results...)
}

func snapshotRows(snapshot *DumpSnapshot) int64 {
	var total int64
	for _, n := range snapshot.TableCounts {
		total += n
	}
	return total
}

type permissionProbe struct {
	user, password, table string
}

// permissionFailures creates the restricted accounts and expects every
// probe write to be refused.
func (e *Engine) permissionFailures(ctx context.Context) (int64, error) {
	users := e.Config.Users
	if err := e.MySQL.CreateUsers(ctx, users); err != nil {
		return 0, err
	}

	probes := []permissionProbe{
		{"userC", users.PasswordC, database.TableBooks},
		{"userA", users.PasswordA, database.TableAuthors},
		{"userB", users.PasswordB, database.TableBooks},
	}

	var errs []error
	for _, p := range probes {
		err := e.MySQL.ProbeInsert(ctx, p.user, p.password, p.table)
		switch {
		case err == nil:
			errs = append(errs, fmt.Errorf("insert as %s into %s was allowed", p.user, p.table))
		case database.IsPermissionDenied(err):
			e.Logger.Info(fmt.Sprintf("Insert as %s into %s denied as expected", p.user, p.table))
		default:
			errs = append(errs, fmt.Errorf("insert as %s into %s: %w", p.user, p.table, err))
		}
	}
	return 0, errors.Join(errs...)
}

func (e *Engine) generateMillionMongoDB(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	coll := e.Config.MongoDB.BooksCollection

	if err := e.Mongo.DropCollection(ctx, coll); err != nil {
		return 0, err
	}
	if err := e.Mongo.CreateCollection(ctx, coll); err != nil {
		return 0, err
	}

	var inserted int64
	for done := 0; done < p.MongoBooksCount; {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		n := min(p.ChunkSize, p.MongoBooksCount-done)
		books, err := e.Generator.GenerateBooks(n, 0, nil)
		if err != nil {
			return inserted, err
		}
		ins, err := e.Mongo.InsertInBatches(ctx, coll, database.ToDocuments(books), p.MongoBatchSize)
		inserted += ins
		if err != nil {
			return inserted, err
		}
		done += n
	}

	return inserted, e.recordChecks(validation.ValidateCount(ctx, e.Mongo, coll, int64(p.MongoBooksCount)))
}

func (e *Engine) exportToCSV(ctx context.Context) (int64, error) {
	return e.Mongo.ExportCSV(ctx, e.Config.MongoDB.BooksCollection,
		generator.BookSummarySchema.Columns, e.file("old_books.csv"))
}

func (e *Engine) importToMySQL(ctx context.Context) (int64, error) {
	return e.loadAndCheck(ctx, e.file("old_books.csv"), database.TableOldBooks, oldBookFile)
}

// dualInsert writes the same records to MySQL and MongoDB concurrently, then
// exports the collection as JSON.
func (e *Engine) dualInsert(ctx context.Context) (int64, error) {
	p := e.Config.Pipeline
	coll := e.Config.MongoDB.TestCollection

	records, err := e.Generator.GenerateTestRecords(p.TestRecords)
	if err != nil {
		return 0, err
	}
	if err := e.Mongo.DropCollection(ctx, coll); err != nil {
		return 0, err
	}
	baseline, err := e.MySQL.CountRows(ctx, database.TableTest)
	if err != nil {
		return 0, err
	}

	var mysqlRows, mongoRows int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.Timer.Time("dual_insert_mysql", func() error {
			var err error
			mysqlRows, err = e.MySQL.InsertTestRecords(gctx, records, p.BatchSize)
			return err
		})
		return err
	})
	g.Go(func() error {
		_, err := e.Timer.Time("dual_insert_mongodb", func() error {
			var err error
			mongoRows, err = e.Mongo.InsertInBatches(gctx, coll, database.ToDocuments(records), p.MongoBatchSize)
			return err
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return mysqlRows + mongoRows, err
	}

	if _, err := e.Mongo.ExportJSON(ctx, coll, e.file("test.json")); err != nil {
		return mysqlRows + mongoRows, err
	}
	return mysqlRows + mongoRows, e.recordChecks(
		validation.ValidateCount(ctx, e.MySQL, database.TableTest, baseline+int64(p.TestRecords)),
		validation.ValidateCount(ctx, e.Mongo, coll, int64(p.TestRecords)),
	)
}

// postgresIntColumns are sent as integers on the COPY path.
var postgresIntColumns = []string{"pages", "year"}

func (e *Engine) postgresBooks(ctx context.Context) (int64, error) {
	if err := e.Postgres.SetupSchema(ctx); err != nil {
		return 0, err
	}
	path := e.file("books.csv")

	var (
		n   int64
		err error
	)
	if e.Config.PostgreSQL.Copy {
		transform := database.TypedColumnTransform(database.BookColumns, postgresIntColumns)
		n, err = e.Postgres.CopyCSV(ctx, path, database.TableBooks, database.BookColumns, transform, e.Config.Pipeline.ChunkSize)
	} else {
		var res *loader.Result
		res, err = e.Postgres.LoadCSV(ctx, path, database.TableBooks, database.BookColumns,
			database.ColumnTransform(database.BookColumns), e.PostgresOptions...)
		if res != nil {
			n = res.Inserted
		}
	}
	if err != nil {
		return n, err
	}
	return n, e.recordChecks(validation.ValidateCSVLoad(ctx, e.Postgres, database.TableBooks, 0, path))
}
