package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHTTPTransport(t *testing.T) {
	var gotPath, gotTerm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTerm = r.URL.Query().Get("term")
		switch gotTerm {
		case "":
			w.Write([]byte(`[{"value": 1, "label": "Bolt", "size": "M4"}, {"value": 2, "label": "Nut"}]`))
		case "b":
			w.Write([]byte(`{}`))
		case "plain":
			w.Write([]byte(`["Red", "Blue"]`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", srv.Client())
	ctx := context.Background()

	all, err := tr.FetchAll(ctx, "spare parts")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if gotPath != "/lookup/spare parts" {
		t.Errorf("path = %q, want /lookup/spare parts", gotPath)
	}
	if diff := cmp.Diff([]string{"Bolt", "Nut"}, Labels(all)); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if all[0].Extra["size"] != "M4" {
		t.Errorf("extra = %v, want size=M4", all[0].Extra)
	}

	short, err := tr.Search(ctx, "parts", "b")
	if err != nil {
		t.Fatalf("Search(b) error = %v", err)
	}
	if len(short) != 0 {
		t.Errorf("Search(b) = %v, want empty", short)
	}

	plain, err := tr.Search(ctx, "parts", "plain")
	if err != nil {
		t.Fatalf("Search(plain) error = %v", err)
	}
	if diff := cmp.Diff([]string{"Red", "Blue"}, Labels(plain)); diff != "" {
		t.Errorf("plain labels (-want +got):\n%s", diff)
	}

	if _, err := tr.Search(ctx, "parts", "explode"); err == nil {
		t.Error("Search() expected error on 500")
	}
}

func TestCandidate_MarshalFlattensExtra(t *testing.T) {
	c := Candidate{Value: "P-1", Label: "Bolt", Extra: map[string]any{"size": "M4"}}
	out, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	want := `{"label":"Bolt","size":"M4","value":"P-1"}`
	if string(out) != want {
		t.Errorf("MarshalJSON() = %s, want %s", out, want)
	}
}
