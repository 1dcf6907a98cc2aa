package pipeline

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func openTSV(filename string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return f, r, nil
}

// readTaxonomy maps feature ids to their taxonomy columns.
func readTaxonomy(filename string) (header []string, rows map[string][]string, err error) {
	f, r, err := openTSV(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	if header, err = r.Read(); err != nil {
		return nil, nil, fmt.Errorf("%s: reading header: %w", filename, err)
	}
	rows = make(map[string][]string)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", filename, err)
		}
		if len(rec) > 0 {
			rows[rec[0]] = rec[1:]
		}
	}
}

// MergeASVTaxonomy joins the ASV count table written by biom convert with
// the exported taxonomy on feature id. The output has Feature.ID, the
// sample columns, then the taxonomy columns prefixed with pr2_, in ASV
// table order. ASVs without taxonomy get empty taxonomy cells.
func MergeASVTaxonomy(asvTSV, taxonomyTSV, out string) error {
	taxHeader, taxonomy, err := readTaxonomy(taxonomyTSV)
	if err != nil {
		return err
	}
	taxColumns := len(taxHeader) - 1
	if taxColumns < 0 {
		taxColumns = 0
	}

	f, r, err := openTSV(asvTSV)
	if err != nil {
		return err
	}
	defer f.Close()

	tmp := filepath.Join(filepath.Dir(out), ".partial."+filepath.Base(out))
	o, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(o)
	w := csv.NewWriter(bw)
	w.Comma = '\t'

	fail := func(err error) error {
		o.Close()
		os.Remove(tmp)
		return err
	}

	var header []string
	for header == nil {
		rec, err := r.Read()
		if err != nil {
			return fail(fmt.Errorf("%s: reading header: %w", asvTSV, err))
		}
		if len(rec) > 0 && strings.HasPrefix(rec[0], "# Constructed from biom file") {
			continue
		}
		header = rec
	}
	merged := append([]string{"Feature.ID"}, header[1:]...)
	for _, col := range taxHeader[min(1, len(taxHeader)):] {
		merged = append(merged, "pr2_"+col)
	}
	if err := w.Write(merged); err != nil {
		return fail(err)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("%s: %w", asvTSV, err))
		}
		row := append([]string(nil), rec...)
		tax, ok := taxonomy[rec[0]]
		if !ok {
			tax = make([]string, taxColumns)
		}
		row = append(row, tax...)
		if err := w.Write(row); err != nil {
			return fail(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := o.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, out)
}
