package demux

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	simple_util "github.com/liserjrqlxue/simple-util"
)

// BarcodeEntry ties one sample to its barcode(s).
type BarcodeEntry struct {
	SampleID       string
	Barcode        string
	ReverseBarcode string // empty for single-barcoded runs
}

// BarcodeTable is the validated, read-only set of entries for a run.
type BarcodeTable struct {
	Entries []BarcodeEntry

	// Dual is set when every entry carries a reverse barcode.
	Dual bool

	// Length and ReverseLength are the shared barcode lengths.
	Length, ReverseLength int
}

var (
	sampleColumns  = []string{"sample_id", "sample-id", "sampleID", "name"}
	barcodeColumns = []string{"barcode", "barcode_sequence", "index"}
	reverseColumns = []string{"reverse_barcode", "barcode2", "index2"}
)

func pickColumn(title, names []string) (string, bool) {
	for _, name := range names {
		for _, column := range title {
			if column == name {
				return name, true
			}
		}
	}
	return "", false
}

func blankRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// checkFieldCounts rejects rows with more fields than the header.
func checkFieldCounts(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	header := -1
	for line := 1; scanner.Scan(); line++ {
		n := len(strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t"))
		if header < 0 {
			header = n
			continue
		}
		if n > header {
			return fmt.Errorf("%s: line %d has %d fields, the header only %d", filename, line, n, header)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if header < 0 {
		return fmt.Errorf("%s: empty barcode table", filename)
	}
	return nil
}

// ReadBarcodeTable loads a tab-separated barcode table with a header line.
func ReadBarcodeTable(filename string) (*BarcodeTable, error) {
	if err := checkFieldCounts(filename); err != nil {
		return nil, err
	}
	rows, title := simple_util.File2MapArray(filename, "\t", nil)

	sampleCol, ok := pickColumn(title, sampleColumns)
	if !ok {
		return nil, fmt.Errorf("%s: missing sample id column (one of %v)", filename, sampleColumns)
	}
	barcodeCol, ok := pickColumn(title, barcodeColumns)
	if !ok {
		return nil, fmt.Errorf("%s: missing barcode column (one of %v)", filename, barcodeColumns)
	}
	reverseCol, dual := pickColumn(title, reverseColumns)

	var entries []BarcodeEntry
	for i, row := range rows {
		if blankRow(row) {
			continue
		}
		e := BarcodeEntry{
			SampleID: strings.TrimSpace(row[sampleCol]),
			Barcode:  strings.TrimSpace(row[barcodeCol]),
		}
		if dual {
			e.ReverseBarcode = strings.TrimSpace(row[reverseCol])
		}
		if e.SampleID == "" {
			return nil, fmt.Errorf("%s: line %d: empty sample id", filename, i+2)
		}
		entries = append(entries, e)
	}
	table, err := NewBarcodeTable(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return table, nil
}

// NewBarcodeTable validates entries and normalizes barcodes to upper case.
func NewBarcodeTable(entries []BarcodeEntry) (*BarcodeTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("barcode table has no entries")
	}
	table := &BarcodeTable{
		Entries: make([]BarcodeEntry, 0, len(entries)),
		Dual:    entries[0].ReverseBarcode != "",
	}
	samples := make(map[string]struct{}, len(entries))
	pairs := make(map[[2]string]string, len(entries))

	for _, e := range entries {
		if err := checkSampleID(e.SampleID); err != nil {
			return nil, err
		}
		if _, dup := samples[e.SampleID]; dup {
			return nil, fmt.Errorf("duplicate sample id %q", e.SampleID)
		}
		samples[e.SampleID] = struct{}{}

		e.Barcode = strings.ToUpper(e.Barcode)
		e.ReverseBarcode = strings.ToUpper(e.ReverseBarcode)
		if err := checkBarcode(e.SampleID, e.Barcode); err != nil {
			return nil, err
		}
		if (e.ReverseBarcode != "") != table.Dual {
			return nil, fmt.Errorf("sample %q: either every sample or no sample must have a reverse barcode", e.SampleID)
		}
		if table.Dual {
			if err := checkBarcode(e.SampleID, e.ReverseBarcode); err != nil {
				return nil, err
			}
		}

		if table.Length == 0 {
			table.Length, table.ReverseLength = len(e.Barcode), len(e.ReverseBarcode)
		} else if len(e.Barcode) != table.Length || len(e.ReverseBarcode) != table.ReverseLength {
			return nil, fmt.Errorf("sample %q: barcode length differs from the rest of the table", e.SampleID)
		}

		key := [2]string{e.Barcode, e.ReverseBarcode}
		if other, dup := pairs[key]; dup {
			return nil, fmt.Errorf("%w: samples %q and %q share barcode %s", ErrAmbiguousBarcode, other, e.SampleID, describeBarcode(e))
		}
		pairs[key] = e.SampleID
		table.Entries = append(table.Entries, e)
	}
	return table, nil
}

// SampleIDs returns the sample ids in table order.
func (t *BarcodeTable) SampleIDs() []string {
	ids := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		ids[i] = e.SampleID
	}
	return ids
}

func describeBarcode(e BarcodeEntry) string {
	if e.ReverseBarcode == "" {
		return e.Barcode
	}
	return e.Barcode + "+" + e.ReverseBarcode
}

func checkSampleID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("empty sample id")
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("sample id %q must not start with '.'", id)
	case strings.ContainsAny(id, "/\\ \t\r\n"):
		return fmt.Errorf("sample id %q contains a path separator or whitespace", id)
	}
	return nil
}

func checkBarcode(sample, barcode string) error {
	if barcode == "" {
		return fmt.Errorf("sample %q: empty barcode", sample)
	}
	for i := 0; i < len(barcode); i++ {
		switch barcode[i] {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return fmt.Errorf("sample %q: barcode %q contains %q, only A, C, G, T and N are allowed", sample, barcode, barcode[i])
		}
	}
	return nil
}
