package generator

import (
	"strings"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
)

var (
	// AuthorSchema is the full author CSV layout, id included.
	AuthorSchema = csvcodec.Schema{
		Name:    "authors",
		Columns: []string{"id", "license", "name", "lastName", "secondLastName", "year"},
	}
	// AuthorLoadSchema omits the id so the table assigns it.
	AuthorLoadSchema = csvcodec.Schema{
		Name:    "authors",
		Columns: []string{"license", "name", "lastName", "secondLastName", "year"},
	}
	BookSchema = csvcodec.Schema{
		Name: "books",
		Columns: []string{
			"isbn", "title", "autor_license", "editorial", "pages", "year",
			"genre", "language", "format", "sinopsis", "content",
		},
	}
	// BookSummarySchema is the reduced projection exported from MongoDB into old_books.
	BookSummarySchema = csvcodec.Schema{
		Name:    "old_books",
		Columns: []string{"ISBN", "year", "pages"},
	}
	TestRecordSchema = csvcodec.Schema{
		Name:    "test",
		Columns: []string{"x", "y", "z"},
	}
)

// Author is a synthetic author. ID is nil when the table assigns it.
type Author struct {
	ID             *int64  `json:"id,omitempty" bson:"id,omitempty"`
	License        string  `json:"license" bson:"license"`
	Name           string  `json:"name" bson:"name"`
	LastName       string  `json:"lastName" bson:"lastName"`
	SecondLastName *string `json:"secondLastName" bson:"secondLastName"`
	Year           int     `json:"year" bson:"year"`
}

// CSVValue implements csvcodec.Record.
func (a Author) CSVValue(column string) (any, bool) {
	switch strings.ToLower(column) {
	case "id":
		return a.ID, true
	case "license":
		return a.License, true
	case "name":
		return a.Name, true
	case "lastname":
		return a.LastName, true
	case "secondlastname":
		return a.SecondLastName, true
	case "year":
		return a.Year, true
	}
	return nil, false
}

// Book is a synthetic book. AuthorLicense is nil when no author pool was given.
type Book struct {
	ID            *int64  `json:"id,omitempty" bson:"-"`
	ISBN          string  `json:"ISBN" bson:"ISBN"`
	Title         string  `json:"title" bson:"title"`
	AuthorLicense *string `json:"autor_license" bson:"autor_license"`
	Publisher     string  `json:"editorial" bson:"editorial"`
	Pages         int     `json:"pages" bson:"pages"`
	Year          int     `json:"year" bson:"year"`
	Genre         string  `json:"genre" bson:"genre"`
	Language      string  `json:"language" bson:"language"`
	Format        string  `json:"format" bson:"format"`
	Synopsis      string  `json:"sinopsis" bson:"sinopsis"`
	Content       string  `json:"content" bson:"content"`
}

// CSVValue implements csvcodec.Record.
func (b Book) CSVValue(column string) (any, bool) {
	switch strings.ToLower(column) {
	case "id":
		return b.ID, true
	case "isbn":
		return b.ISBN, true
	case "title":
		return b.Title, true
	case "autor_license", "author_license":
		return b.AuthorLicense, true
	case "editorial", "publisher":
		return b.Publisher, true
	case "pages":
		return b.Pages, true
	case "year":
		return b.Year, true
	case "genre":
		return b.Genre, true
	case "language":
		return b.Language, true
	case "format":
		return b.Format, true
	case "sinopsis", "synopsis":
		return b.Synopsis, true
	case "content":
		return b.Content, true
	}
	return nil, false
}

// TestRecord is the three-column record used by the quick MySQL/MongoDB
// insert comparison.
type TestRecord struct {
	X int    `json:"x" bson:"x"`
	Y int    `json:"y" bson:"y"`
	Z string `json:"z" bson:"z"`
}

// CSVValue implements csvcodec.Record.
func (r TestRecord) CSVValue(column string) (any, bool) {
	switch strings.ToLower(column) {
	case "x":
		return r.X, true
	case "y":
		return r.Y, true
	case "z":
		return r.Z, true
	}
	return nil, false
}

// Author draws one author with the given id (nil for none).
func (g *Generator) Author(id *int64) Author {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.author(id)
}

func (g *Generator) author(id *int64) Author {
	a := Author{
		ID:       id,
		License:  g.license(),
		Name:     g.textBetween(3, 10),
		LastName: g.textBetween(4, 12),
	}
	if g.rnd.Float64() > 0.5 {
		second := g.textBetween(4, 12)
		a.SecondLastName = &second
	}
	a.Year = g.mustNumber(1900, 2000)
	return a
}

// GenerateAuthors returns count authors with ids startID, startID+1, ...
// A startID <= 0 leaves every id nil.
func (g *Generator) GenerateAuthors(count int, startID int64) ([]Author, error) {
	if count < 0 {
		return nil, &GenerationError{Op: "generate authors", Err: &InvalidRangeError{Min: 0, Max: count}}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	authors := make([]Author, 0, count)
	for i := 0; i < count; i++ {
		var id *int64
		if startID > 0 {
			v := startID + int64(i)
			id = &v
		}
		authors = append(authors, g.author(id))
	}
	return authors, nil
}

// Book draws one book. When licenses is non-empty the author reference is
// picked from it.
func (g *Generator) Book(licenses []string) Book {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.book(nil, licenses)
}

func (g *Generator) book(id *int64, licenses []string) Book {
	b := Book{
		ID:    id,
		ISBN:  g.isbn(),
		Title: g.textBetween(5, 50),
	}
	if len(licenses) > 0 {
		license := g.pick(licenses)
		b.AuthorLicense = &license
	}
	b.Publisher = g.pick(publishers)
	b.Pages = g.mustNumber(50, 1200)
	b.Year = g.mustNumber(1900, 2023)
	b.Genre = g.pick(genres)
	b.Language = g.pick(languages)
	b.Format = g.pick(formats)
	b.Synopsis = g.textBetween(100, 500)
	b.Content = g.textBetween(1000, 5000)
	return b
}

// GenerateBooks returns count books. Ids follow startID as for authors.
func (g *Generator) GenerateBooks(count int, startID int64, licenses []string) ([]Book, error) {
	if count < 0 {
		return nil, &GenerationError{Op: "generate books", Err: &InvalidRangeError{Min: 0, Max: count}}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	books := make([]Book, 0, count)
	for i := 0; i < count; i++ {
		var id *int64
		if startID > 0 {
			v := startID + int64(i)
			id = &v
		}
		books = append(books, g.book(id, licenses))
	}
	return books, nil
}

// GenerateTestRecords returns count x/y/z records.
func (g *Generator) GenerateTestRecords(count int) ([]TestRecord, error) {
	if count < 0 {
		return nil, &GenerationError{Op: "generate test records", Err: &InvalidRangeError{Min: 0, Max: count}}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]TestRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, TestRecord{
			X: g.mustNumber(1, 100),
			Y: g.mustNumber(100, 200),
			Z: g.textBetween(5, 20),
		})
	}
	return records, nil
}
