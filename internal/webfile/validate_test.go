package webfile

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"report.pdf", false},
		{"with space", false},
		{".hidden", false},
		{"", true},
		{".", true},
		{"..", true},
		{"a/b", true},
		{`a\b`, true},
		{"nul\x00", true},
		{" leading", true},
		{"trailing ", true},
		{strings.Repeat("x", 255), false},
		{strings.Repeat("x", 256), true},
	}
	for _, tt := range tests {
		err := validateName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			t.Errorf("validateName(%q) error = %v, want ErrInvalidInput", tt.name, err)
		}
	}
}

func TestValidateStruct_UploadRequest(t *testing.T) {
	err := validateStruct(UploadRequest{Name: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("validateStruct() error = %v, want ErrInvalidInput", err)
	}
	if !strings.Contains(err.Error(), "Content") {
		t.Errorf("error %q does not name the Content field", err)
	}

	err = validateStruct(UploadRequest{Name: "x", Content: strings.NewReader(""), Description: strings.Repeat("d", 4097)})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("validateStruct() long description error = %v, want ErrInvalidInput", err)
	}
}

func TestValidMimeType(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"text/plain", true},
		{"text/plain; charset=utf-8", true},
		{"image/png", true},
		{"application/pdf", true},
		{"application/octet-stream", true},
		{"foo/bar", false},
		{"not a mime", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidMimeType(tt.mime); got != tt.want {
			t.Errorf("ValidMimeType(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestDetectMimeType(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	r := strings.NewReader(png)

	got, err := DetectMimeType(r)
	if err != nil {
		t.Fatalf("DetectMimeType() error = %v", err)
	}
	if got != "image/png" {
		t.Errorf("DetectMimeType() = %q, want image/png", got)
	}
	if r.Len() != len(png) {
		t.Error("reader was not rewound")
	}
}
