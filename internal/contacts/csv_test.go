package contacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	logx "blastbot/pkg/logx"
)

func TestCSVStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "contacts.csv")
	st, err := Open(Config{Driver: "csv", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := []Recipient{
		{Name: "Alice", Phone: "+911111111111", Group: "family"},
		{Name: "Bob", Phone: "2222222222", Group: ""},
		{Name: "Alice", Phone: "+911111111111", Group: "family"},
	}
	if err := st.Save(context.Background(), in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []Recipient{
		{Name: "Alice", Phone: "+911111111111", Group: "family"},
		{Name: "Bob", Phone: "2222222222", Group: DefaultGroup},
		{Name: "Alice", Phone: "+911111111111", Group: "family"},
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, want)
	}
}

func TestCSVStoreMissingFileIsEmptyBook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.csv")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty book, got %+v", out)
	}
}

func TestReadCSVFileTolerantParsing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "book.csv")
	raw := "name,phone,group\n" +
		"Alice,+911111111111,family\n" +
		"Bob,2222222222\n" +
		",,\n" +
		"Carol, 3333333333 , work\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rows, err := readCSVFile(path)
	if err != nil {
		t.Fatalf("readCSVFile: %v", err)
	}
	want := []Recipient{
		{Name: "Alice", Phone: "+911111111111", Group: "family"},
		{Name: "Bob", Phone: "2222222222", Group: DefaultGroup},
		{Name: "Carol", Phone: "3333333333", Group: "work"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("parse mismatch:\n got %+v\nwant %+v", rows, want)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestCSVStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "csv"}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %T", err)
	}
}
