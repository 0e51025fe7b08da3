package domain

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

// Tenant ids are opaque to the core but must be safe to store as keyword
// payload and to log.
var tenantRegex = regexp.MustCompile(`^[A-Za-z0-9_.@:-]{1,128}$`)

// ValidateTenant checks a tenant id supplied at a boundary.
func ValidateTenant(id string) error {
	if !tenantRegex.MatchString(id) {
		return NewValidationError("tenant_id", id, ErrInvalidTenant)
	}
	return nil
}

// ValidateQuery validates a query before it reaches the router.
func ValidateQuery(q Query) error {
	if strings.TrimSpace(q.Text) == "" {
		return NewValidationError("query", q.Text, ErrEmptyQuery)
	}
	return ValidateTenant(q.TenantID)
}

// ValidateFileName rejects names that would escape a directory or are blank.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return NewValidationError("file_name", name, ErrInvalidFileName)
	}
	return nil
}

// DocTypeFromMIME maps a declared MIME type to a DocType. Parameters such as
// charset are ignored.
func DocTypeFromMIME(declared string) (DocType, error) {
	base, _, err := mime.ParseMediaType(declared)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(declared))
	}
	if t, ok := mimeTypes[base]; ok {
		return t, nil
	}
	return "", NewValidationError("mime_type", declared, ErrUnsupportedType)
}

// DocTypeFromName maps a file extension to a DocType.
func DocTypeFromName(name string) (DocType, error) {
	if t, ok := extTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t, nil
	}
	return "", NewValidationError("file_name", name, ErrUnsupportedType)
}

// ValidateTask checks a queued task before the pipeline runs it.
func ValidateTask(t Task) error {
	if err := ValidateTenant(t.TenantID); err != nil {
		return err
	}
	if err := ValidateFileName(t.FileName); err != nil {
		return err
	}
	if t.FilePath == "" {
		return NewValidationError("file_path", t.FilePath, ErrNotFound)
	}
	switch t.Type {
	case DocPDF, DocDOCX, DocTXT, DocMD:
		return nil
	}
	return NewValidationError("doc_type", string(t.Type), ErrUnsupportedType)
}

// ValidateChunk checks an index record against the configured dimension.
func ValidateChunk(c Chunk, dim int) error {
	if err := ValidateTenant(c.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Text) == "" {
		return NewValidationError("text", "", ErrEmptyDocument)
	}
	if len(c.Vector) != dim {
		return NewValidationError("vector", c.FileName, ErrDimension)
	}
	return nil
}
