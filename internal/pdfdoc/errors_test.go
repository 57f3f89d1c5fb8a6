package pdfdoc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

func TestIsPasswordErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{pdfcpu.ErrWrongPassword, true},
		{fmt.Errorf("read: %w", pdfcpu.ErrWrongPassword), true},
		{errors.New("pdfcpu: please provide the owner password with -opw"), true},
		{errors.New("pdfcpu: unsupported encryption: filter must be \"Standard\""), false},
		{errors.New("pdfcpu: unknown encryption"), false},
		{errors.New("pdfcpu: unsupported encryption algorithm (PDF 2.0 assumes AES/256)"), false},
		{errors.New("xref table corrupt"), false},
	}
	for _, tc := range cases {
		if got := isPasswordErr(tc.err); got != tc.want {
			t.Fatalf("isPasswordErr(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}
