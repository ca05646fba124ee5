// Package security keeps registry credentials out of logs and reports.
package security

import (
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/relicta-tech/releasekit/internal/errors"
)

// minSecretLength skips values too short to mask without mangling output.
const minSecretLength = 6

// secretEnvName matches environment variables that carry credentials, such
// as NPM_TOKEN, CARGO_REGISTRY_TOKEN or TWINE_PASSWORD.
var secretEnvName = regexp.MustCompile(`(?i)(TOKEN|SECRET|PASSWORD|PASSWD|API_?KEY|AUTH)`)

// Masker redacts well-known credential formats plus the literal values of
// secret environment variables.
type Masker struct {
	secrets []string
}

// NewMasker collects secret values from environ, given as "KEY=value"
// entries like os.Environ returns.
func NewMasker(environ []string) *Masker {
	m := &Masker{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || len(value) < minSecretLength || !secretEnvName.MatchString(key) {
			continue
		}
		if !slices.Contains(m.secrets, value) {
			m.secrets = append(m.secrets, value)
		}
	}
	// Longest first so a secret containing another is replaced whole.
	slices.SortFunc(m.secrets, func(a, b string) int { return len(b) - len(a) })
	return m
}

// Mask returns s with credentials replaced by [REDACTED]. A nil Masker
// only applies the pattern rules.
func (m *Masker) Mask(s string) string {
	if m != nil {
		for _, secret := range m.secrets {
			s = strings.ReplaceAll(s, secret, "[REDACTED]")
		}
	}
	return errors.RedactSensitive(s)
}

// MaskedWriter masks each write before passing it on. Writes should carry
// whole lines so a secret is never split across calls.
type MaskedWriter struct {
	mu     sync.Mutex
	w      io.Writer
	masker *Masker
}

// NewMaskedWriter wraps w.
func NewMaskedWriter(w io.Writer, masker *Masker) *MaskedWriter {
	return &MaskedWriter{w: w, masker: masker}
}

// Write reports len(p) on success so callers see the bytes they wrote.
func (mw *MaskedWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if _, err := io.WriteString(mw.w, mw.masker.Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
