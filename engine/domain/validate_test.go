package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateQuery_Valid(t *testing.T) {
	q := Query{TenantID: "u1", Text: "What is the remote work policy?"}
	if err := ValidateQuery(q); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateQuery_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		err := ValidateQuery(Query{TenantID: "u1", Text: text})
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("text %q: expected ErrEmptyQuery, got %v", text, err)
		}
	}
}

func TestValidateQuery_BadTenant(t *testing.T) {
	err := ValidateQuery(Query{TenantID: "", Text: "hello there"})
	if !errors.Is(err, ErrInvalidTenant) {
		t.Errorf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestValidateTenant(t *testing.T) {
	for _, id := range []string{"u1", "user@example.com", DefaultPreloadedTenant, "org:team-1"} {
		if err := ValidateTenant(id); err != nil {
			t.Errorf("%q: unexpected error %v", id, err)
		}
	}
	for _, id := range []string{"", "has space", "a/b", strings.Repeat("x", 129)} {
		if err := ValidateTenant(id); !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("%q: expected ErrInvalidTenant, got %v", id, err)
		}
	}
}

func TestDocTypeFromMIME(t *testing.T) {
	cases := map[string]DocType{
		MIMEPDF:                     DocPDF,
		MIMEDOCX:                    DocDOCX,
		"text/plain; charset=utf-8": DocTXT,
		MIMEMarkdown:                DocMD,
	}
	for in, want := range cases {
		got, err := DocTypeFromMIME(in)
		if err != nil || got != want {
			t.Errorf("%q: got %q, %v", in, got, err)
		}
	}
	if _, err := DocTypeFromMIME("image/png"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestDocTypeFromName(t *testing.T) {
	if got, err := DocTypeFromName("Policy.TXT"); err != nil || got != DocTXT {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := DocTypeFromName("photo.png"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestValidateFileName(t *testing.T) {
	if err := ValidateFileName("policy.txt"); err != nil {
		t.Errorf("unexpected %v", err)
	}
	for _, name := range []string{"", "../etc/passwd", "a/b.txt", ".."} {
		if err := ValidateFileName(name); !errors.Is(err, ErrInvalidFileName) {
			t.Errorf("%q: expected ErrInvalidFileName, got %v", name, err)
		}
	}
}

func TestValidateTask(t *testing.T) {
	ok := Task{ID: "t1", FilePath: "/tmp/x", TenantID: "u1", FileName: "x.md", Type: DocMD}
	if err := ValidateTask(ok); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	bad := ok
	bad.Type = "png"
	if err := ValidateTask(bad); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	bad = ok
	bad.FilePath = ""
	if err := ValidateTask(bad); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateChunk(t *testing.T) {
	c := Chunk{Text: "hi", TenantID: "u1", FileName: "a.txt", Vector: make([]float32, 3)}
	if err := ValidateChunk(c, 3); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	if err := ValidateChunk(c, 4); !errors.Is(err, ErrDimension) {
		t.Errorf("expected ErrDimension, got %v", err)
	}
	c.Text = " "
	if err := ValidateChunk(c, 3); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("query", "", ErrEmptyQuery)
	if !strings.Contains(err.Error(), "empty query") || !strings.Contains(err.Error(), "query") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTaskStateTerminal(t *testing.T) {
	for _, s := range []TaskState{StateDone, StateSkipped, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateIndexing.Terminal() || StateRetrying.Terminal() {
		t.Error("intermediate state reported terminal")
	}
}

func TestTaskDocument(t *testing.T) {
	task := Task{ID: "t1", FilePath: "/tmp/up/1.pdf", TenantID: "u1", FileName: "policy.pdf", Type: DocPDF, Attempt: 2}
	want := Document{FileName: "policy.pdf", TenantID: "u1", Path: "/tmp/up/1.pdf", Type: DocPDF}
	if got := task.Document(); got != want {
		t.Errorf("Document() = %+v, want %+v", got, want)
	}
}
