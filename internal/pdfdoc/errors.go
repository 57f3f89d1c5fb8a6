package pdfdoc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// ErrClosed is returned by any Document method called after Close.
var ErrClosed = errors.New("pdfdoc: document is closed")

type Reason string

const (
	ReasonNotFound  Reason = "not found"
	ReasonIO        Reason = "unreadable"
	ReasonTooLarge  Reason = "too large"
	ReasonNotPDF    Reason = "not a PDF"
	ReasonDamaged   Reason = "damaged or invalid"
	ReasonEncrypted Reason = "encrypted"
	ReasonCanceled  Reason = "canceled"
)

// OpenError reports why a document could not be opened. For encrypted
// documents Err is an *EncryptedError.
type OpenError struct {
	Path   string
	Reason Reason
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("open %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("open %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// EncryptedError means the document needs a password that was either not
// supplied or wrong.
type EncryptedError struct {
	PasswordSupplied bool
}

func (e *EncryptedError) Error() string {
	if e.PasswordSupplied {
		return "document is encrypted: incorrect password"
	}
	return "document is encrypted: password required"
}

func openErr(path string, reason Reason, err error) error {
	return &OpenError{Path: path, Reason: reason, Err: err}
}

func encryptedErr(path, password string) error {
	return openErr(path, ReasonEncrypted, &EncryptedError{PasswordSupplied: password != ""})
}

// pdfcpu reports a missing owner password with plain errors.New values.
var pdfcpuPasswordMsgs = []string{
	"please provide the correct password",
	"please provide owner password",
	"please provide the owner password",
}

// isPasswordErr matches pdfcpu's wrong or missing password failures. Other
// encryption errors, such as an unsupported algorithm, do not match.
func isPasswordErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pdfcpu.ErrWrongPassword) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range pdfcpuPasswordMsgs {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
