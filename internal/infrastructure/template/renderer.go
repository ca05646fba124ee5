// Package template renders the shell commands run by publish stages.
package template

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// bufferPool is used to reuse buffers for template execution.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// DefaultExecutionTimeout bounds a single template execution.
const DefaultExecutionTimeout = 5 * time.Second

// Presets are named "<ecosystem>/<stage>", e.g. "npm/publish".
//
//go:embed presets/*/*.tmpl
var embeddedPresets embed.FS

// Renderer renders command templates. Embedded per-ecosystem presets are
// loaded at construction; registered templates override them.
type Renderer struct {
	mu               sync.RWMutex
	templates        map[string]*template.Template
	funcMap          template.FuncMap
	executionTimeout time.Duration
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithExecutionTimeout sets the maximum template execution time.
func WithExecutionTimeout(timeout time.Duration) RendererOption {
	return func(r *Renderer) {
		if timeout > 0 {
			r.executionTimeout = timeout
		}
	}
}

// NewRenderer creates a renderer with the embedded presets loaded.
func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	r := &Renderer{
		templates:        make(map[string]*template.Template),
		funcMap:          createFuncMap(),
		executionTimeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.loadPresets(); err != nil {
		return nil, rperrors.TemplateWrap(err, "template.NewRenderer", "failed to load embedded presets")
	}
	return r, nil
}

// PresetName returns the template name for an ecosystem stage.
func PresetName(ecosystem, stage string) string {
	return ecosystem + "/" + stage
}

func (r *Renderer) loadPresets() error {
	return fs.WalkDir(embeddedPresets, "presets", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}

		content, err := embeddedPresets.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read preset %s: %w", path, err)
		}

		name := strings.TrimSuffix(strings.TrimPrefix(path, "presets/"), ".tmpl")
		tmpl, err := template.New(name).Option("missingkey=error").Funcs(r.funcMap).Parse(strings.TrimSpace(string(content)))
		if err != nil {
			return fmt.Errorf("failed to parse preset %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
}

// Register parses content and stores it under name, replacing any preset.
func (r *Renderer) Register(name, content string) error {
	const op = "template.Register"

	tmpl, err := template.New(name).Option("missingkey=error").Funcs(r.funcMap).Parse(strings.TrimSpace(content))
	if err != nil {
		return rperrors.TemplateWrap(err, op, fmt.Sprintf("failed to parse template %s", name))
	}

	r.mu.Lock()
	r.templates[name] = tmpl
	r.mu.Unlock()
	return nil
}

// Has reports whether a template is registered under name.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names returns every template name, sorted.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template with data.
func (r *Renderer) Render(ctx context.Context, name string, data any) (string, error) {
	const op = "template.Render"

	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", rperrors.NotFound(op, fmt.Sprintf("template not found: %s", name))
	}

	ctx, cancel := context.WithTimeout(ctx, r.executionTimeout)
	defer cancel()
	return r.execute(ctx, op, tmpl, data)
}

// RenderString parses and executes an inline template.
func (r *Renderer) RenderString(ctx context.Context, text string, data any) (string, error) {
	const op = "template.RenderString"

	tmpl, err := template.New("inline").Option("missingkey=error").Funcs(r.funcMap).Parse(text)
	if err != nil {
		return "", rperrors.TemplateWrap(err, op, "failed to parse template string")
	}

	ctx, cancel := context.WithTimeout(ctx, r.executionTimeout)
	defer cancel()
	return r.execute(ctx, op, tmpl, data)
}

// execute runs tmpl in a goroutine so a runaway template cannot outlive
// ctx. template.Execute itself is not cancellable; the goroutine finishes
// on its own and returns its buffer to the pool.
func (r *Renderer) execute(ctx context.Context, op string, tmpl *template.Template, data any) (string, error) {
	type result struct {
		output string
		err    error
	}

	done := make(chan result, 1)

	go func() {
		buf := bufferPool.Get().(*bytes.Buffer)
		buf.Reset()

		defer func() {
			bufferPool.Put(buf)

			if rec := recover(); rec != nil {
				done <- result{err: rperrors.TemplateWrap(
					fmt.Errorf("template panic: %v", rec),
					op,
					fmt.Sprintf("template execution panicked: %s", tmpl.Name()),
				)}
			}
		}()

		if err := tmpl.Execute(buf, data); err != nil {
			done <- result{err: rperrors.TemplateWrap(err, op, fmt.Sprintf("failed to render template %s", tmpl.Name()))}
			return
		}
		done <- result{output: strings.TrimSpace(buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", rperrors.TimeoutWrap(ctx.Err(), op, fmt.Sprintf("template execution timed out: %s", tmpl.Name()))
	case res := <-done:
		return res.output, res.err
	}
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"title":      Title,
		"trim":       strings.TrimSpace,
		"trimPrefix": strings.TrimPrefix,
		"trimSuffix": strings.TrimSuffix,
		"replace":    strings.ReplaceAll,
		"join":       strings.Join,
		"quote":      ShellQuote,
		"default":    defaultFunc,
	}
}

// Title title-cases s. Casers are stateful, so each call gets its own.
func Title(s string) string {
	return cases.Title(language.English).String(s)
}

// ShellQuote wraps s in single quotes for POSIX shells.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func defaultFunc(def, value any) any {
	if value == nil || value == "" {
		return def
	}
	return value
}
