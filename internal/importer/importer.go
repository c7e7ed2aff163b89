// Package importer turns guest lists (CSV exports, CUE, YAML and JSON
// files) into guests for bulk import.
//
// Parsing is lenient: a row or entry that cannot become a guest is counted
// in Result.Failed and skipped, never reported individually. Duplicate ids
// are left for the registry to reject.
package importer

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/eventguard/internal/model"
)

// ErrUnsupportedFormat is returned by File for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported guest file format")

//go:embed schema.cue
var schemaSource []byte

// Result is a parsed guest list.
type Result struct {
	Guests []model.Guest `json:"guests"`
	Failed int           `json:"failed"`
}

// idAlphabet is used for generated ticket ids.
const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const idLength = 9

// newID generates a ticket id for guests that arrive without one.
var newID = func() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

// columns maps guest fields to row positions; -1 means absent.
type columns struct {
	name, email, id, category, phone int
}

// positional is the layout of a headerless export: Name,Email,ID,Category.
var positional = columns{name: 0, email: 1, id: 2, category: 3, phone: -1}

// FromRows converts spreadsheet rows into guests.
//
// A first row with a cell mentioning "name" or "email" is a header and
// selects the columns (name, email, id|ticket, category|type,
// phone|mobile). Without a header the columns are Name,Email,ID,Category.
// Rows need a name and an email; a missing id is generated and a missing
// category becomes "General".
func FromRows(rows [][]string) Result {
	res := Result{Guests: []model.Guest{}}
	if len(rows) == 0 {
		return res
	}

	cols, start := positional, 0
	if h, ok := detectHeader(rows[0]); ok {
		cols, start = h, 1
	}

	for _, row := range rows[start:] {
		if blank(row) {
			continue
		}
		g := model.Guest{
			Name:     cell(row, cols.name),
			Email:    cell(row, cols.email),
			ID:       cell(row, cols.id),
			Category: cell(row, cols.category),
			Phone:    cell(row, cols.phone),
		}
		if g.Name == "" || g.Email == "" {
			res.Failed++
			continue
		}
		res.Guests = append(res.Guests, finish(g))
	}
	return res
}

func detectHeader(row []string) (columns, bool) {
	lower := make([]string, len(row))
	isHeader := false
	for i, c := range row {
		lower[i] = strings.ToLower(strings.TrimSpace(c))
		if strings.Contains(lower[i], "name") || strings.Contains(lower[i], "email") {
			isHeader = true
		}
	}
	if !isHeader {
		return columns{}, false
	}

	cols := columns{name: -1, email: -1, id: -1, category: -1, phone: -1}
	claimed := make(map[int]bool)
	find := func(dst *int, keys ...string) {
		for i, h := range lower {
			if claimed[i] {
				continue
			}
			for _, k := range keys {
				if strings.Contains(h, k) {
					*dst = i
					claimed[i] = true
					return
				}
			}
		}
	}
	// Email first, so "Email ID" is not taken for the ticket id.
	find(&cols.email, "email")
	find(&cols.name, "name")
	find(&cols.id, "ticket", "id")
	find(&cols.category, "category", "type")
	find(&cols.phone, "phone", "mobile")

	// Fall back to the positional layout for name and email.
	if cols.name == -1 && !claimed[positional.name] {
		cols.name = positional.name
	}
	if cols.email == -1 && !claimed[positional.email] {
		cols.email = positional.email
	}
	return cols, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// finish applies the defaults every imported guest gets.
func finish(g model.Guest) model.Guest {
	g.ID = strings.TrimSpace(g.ID)
	if g.ID == "" {
		g.ID = newID()
	}
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.TrimSpace(g.Email)
	g.Phone = strings.TrimSpace(g.Phone)
	g.Category = strings.TrimSpace(g.Category)
	if g.Category == "" {
		g.Category = model.DefaultCategory
	}
	g.CheckInDay1, g.CheckInDay2 = nil, nil
	return g
}

// ReadCSV reads every record of a CSV document. Records may have varying
// numbers of fields.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

// FromCSV parses a CSV document with FromRows.
func FromCSV(r io.Reader) (Result, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return Result{}, err
	}
	return FromRows(rows), nil
}

// FromCUE parses a CUE guest file of the form
//
//	guests: [{id: "A1", name: "Alice", category: "VIP"}, ...]
//
// The file is unified with the embedded schema, which is closed: unknown
// fields and entries without an id or name are errors for the whole file.
func FromCUE(data []byte, filename string) (Result, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Result{}, fmt.Errorf("compile guest schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Result{}, formatCUEError(err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Result{}, formatCUEError(err)
	}

	var doc guestFile
	if err := unified.Decode(&doc); err != nil {
		return Result{}, formatCUEError(err)
	}
	return fromStructured(doc.Guests), nil
}

type guestFile struct {
	Guests []model.Guest `json:"guests" yaml:"guests"`
}

// FromYAML parses either a list of guests or a mapping with a guests key.
func FromYAML(data []byte) (Result, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Result{}, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return Result{Guests: []model.Guest{}}, nil
	}

	root := doc.Content[0]
	var gs []model.Guest
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&gs); err != nil {
			return Result{}, fmt.Errorf("decode yaml guests: %w", err)
		}
	case yaml.MappingNode:
		var f guestFile
		if err := root.Decode(&f); err != nil {
			return Result{}, fmt.Errorf("decode yaml guests: %w", err)
		}
		gs = f.Guests
	default:
		return Result{}, fmt.Errorf("parse yaml: expected a list or a mapping with guests")
	}
	return fromStructured(gs), nil
}

// FromJSON parses either an array of guests or an object with a guests key.
func FromJSON(data []byte) (Result, error) {
	trimmed := bytes.TrimSpace(data)
	var gs []model.Guest
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &gs); err != nil {
			return Result{}, fmt.Errorf("parse json guests: %w", err)
		}
	} else {
		var f guestFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return Result{}, fmt.Errorf("parse json guests: %w", err)
		}
		gs = f.Guests
	}
	return fromStructured(gs), nil
}

// fromStructured applies defaults to guests read from a typed file. An
// entry without a name is counted as failed.
func fromStructured(gs []model.Guest) Result {
	res := Result{Guests: make([]model.Guest, 0, len(gs))}
	for _, g := range gs {
		if strings.TrimSpace(g.Name) == "" {
			res.Failed++
			continue
		}
		res.Guests = append(res.Guests, finish(g))
	}
	return res
}

// File parses path according to its extension: .csv, .cue, .yaml, .yml or
// .json.
func File(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read guest file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FromCSV(bytes.NewReader(data))
	case ".cue":
		return FromCUE(data, path)
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// FileError is a CUE error with its source position.
type FileError struct {
	Message string
	Pos     token.Pos
}

func (e *FileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &FileError{Message: first.Error(), Pos: positions[0]}
	}
	return err
}
