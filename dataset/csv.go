package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// ReadOptions controls delimited-text parsing.
type ReadOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts ReadOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	frame, err := ReadCSV(f, opts)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "read %s", path)
	}
	return frame, nil
}

// ReadCSV parses a header row followed by records. A column is numeric when
// every non-missing cell parses as a float, otherwise categorical.
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		if !utf8.ValidRune(opts.Delimiter) || opts.Delimiter == '"' || opts.Delimiter == '\n' {
			return nil, scigoErrors.NewValidationError("delimiter", "invalid delimiter", string(opts.Delimiter))
		}
		cr.Comma = opts.Delimiter
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, scigoErrors.NewDataError("ReadCSV", "input has no header row")
	}
	if err != nil {
		return nil, scigoErrors.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, scigoErrors.Wrap(err, "read record")
		}
		for j := range header {
			raw[j] = append(raw[j], rec[j])
		}
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, raw[j])
	}
	return NewFrame(cols...)
}

func inferColumn(name string, cells []string) *Column {
	nums := make([]Value, len(cells))
	numeric := true
	for i, s := range cells {
		if IsMissingToken(s) {
			nums[i] = Value{Missing: true}
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = Value{Num: v}
	}
	if numeric {
		return &Column{Name: name, Kind: Numeric, Values: nums}
	}
	return CategoricalColumn(name, cells...)
}
