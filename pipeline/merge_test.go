package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMergeASVTaxonomy(t *testing.T) {
	dir := t.TempDir()
	asv := filepath.Join(dir, "asv-table.tsv")
	tax := filepath.Join(dir, "pr2_taxonomy.tsv")
	out := filepath.Join(dir, "asv_count_tax.tsv")

	os.WriteFile(asv, []byte("# Constructed from biom file\n"+
		"#OTU ID\tS1\tS2\n"+
		"f3\t1.0\t0.0\n"+
		"f1\t5.0\t2.0\n"+
		"f2\t0.0\t7.0\n"), 0644)
	os.WriteFile(tax, []byte("Feature ID\tTaxon\tConfidence\n"+
		"f1\tEukaryota;Alveolata\t0.99\n"+
		"f3\tEukaryota;Stramenopiles\t0.87\n"), 0644)

	if err := MergeASVTaxonomy(asv, tax, out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "Feature.ID\tS1\tS2\tpr2_Taxon\tpr2_Confidence\n" +
		"f3\t1.0\t0.0\tEukaryota;Stramenopiles\t0.87\n" +
		"f1\t5.0\t2.0\tEukaryota;Alveolata\t0.99\n" +
		"f2\t0.0\t7.0\t\t\n"
	if string(got) != want {
		t.Errorf("unexpected merge:\n%s\nwant:\n%s", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, ".partial.asv_count_tax.tsv")); !os.IsNotExist(err) {
		t.Error("temporary output left behind")
	}
}

func TestMergeASVTaxonomyMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.tsv")
	if err := MergeASVTaxonomy(filepath.Join(dir, "nope.tsv"), filepath.Join(dir, "nope2.tsv"), out); err == nil {
		t.Error("expected an error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output may be written on failure")
	}
}
