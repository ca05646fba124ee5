package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	"github.com/relicta-tech/releasekit/internal/fileutil"
	"github.com/relicta-tech/releasekit/internal/infrastructure/discovery"
)

// PinManifest sets the manifest version and the required versions of the
// given internal dependencies, preserving the rest of the file byte for
// byte. It reports whether the file changed.
func PinManifest(path string, eco monorepo.Ecosystem, version string, deps map[string]string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return false, err
	}

	var out []byte
	switch eco {
	case monorepo.EcosystemNPM, monorepo.EcosystemPnpm:
		out, err = pinPackageJSON(data, version, deps)
	case monorepo.EcosystemCargo:
		out = pinCargoToml(data, version, deps)
	case monorepo.EcosystemPython:
		out = pinPyproject(data, version, deps)
	default:
		return false, fmt.Errorf("pinning is not supported for ecosystem %q", eco)
	}
	if err != nil {
		return false, err
	}
	if bytes.Equal(out, data) {
		return false, nil
	}
	return true, fileutil.AtomicWriteFile(path, out, info.Mode().Perm())
}

// npmRange keeps the range operator of old and moves it to version.
// Workspace protocol and wildcard ranges are left alone.
func npmRange(old, version string) string {
	switch {
	case strings.HasPrefix(old, "workspace:"), old == "*", old == "", old == "latest":
		return old
	case strings.HasPrefix(old, "^"), strings.HasPrefix(old, "~"):
		return old[:1] + version
	case strings.HasPrefix(old, ">="):
		return ">=" + version
	default:
		return version
	}
}

// cargoRequirement keeps the requirement operator of old.
func cargoRequirement(old, version string) string {
	for _, op := range []string{">=", "^", "~", "="} {
		if strings.HasPrefix(old, op) {
			return op + version
		}
	}
	return version
}

type edit struct {
	start, end int
	text       string
}

func applyEdits(data []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), data...)
	for _, e := range edits {
		out = append(out[:e.start], append([]byte(e.text), out[e.end:]...)...)
	}
	return out
}

var npmDependencyFields = map[string]bool{
	"dependencies":         true,
	"peerDependencies":     true,
	"optionalDependencies": true,
	"devDependencies":      true,
}

// pinPackageJSON edits string values in place using token offsets so key
// order and formatting survive.
func pinPackageJSON(data []byte, version string, deps map[string]string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("package.json is not an object")
	}

	var edits []edit
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch {
		case key == "version":
			if _, ok := valTok.(string); ok {
				edits = append(edits, stringEdit(data, dec.InputOffset(), version))
			}
		case npmDependencyFields[key]:
			if d, ok := valTok.(json.Delim); ok && d == '{' {
				depEdits, err := pinDependencyObject(dec, data, deps)
				if err != nil {
					return nil, err
				}
				edits = append(edits, depEdits...)
				continue
			}
		}
		if err := skipValue(dec, valTok); err != nil {
			return nil, err
		}
	}
	return applyEdits(data, edits), nil
}

// pinDependencyObject consumes a dependency map up to its closing brace.
func pinDependencyObject(dec *json.Decoder, data []byte, deps map[string]string) ([]edit, error) {
	var edits []edit
	for dec.More() {
		nameTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := nameTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if old, ok := valTok.(string); ok {
			if v, internal := deps[name]; internal {
				if pinned := npmRange(old, v); pinned != old {
					edits = append(edits, stringEdit(data, dec.InputOffset(), pinned))
				}
			}
			continue
		}
		if err := skipValue(dec, valTok); err != nil {
			return nil, err
		}
	}
	_, err := dec.Token()
	return edits, err
}

// skipValue consumes the rest of a composite value whose first token has
// already been read.
func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// stringEdit replaces the JSON string literal ending at end.
func stringEdit(data []byte, end int64, value string) edit {
	e := int(end)
	start := e - 2
	for start >= 0 {
		if data[start] == '"' {
			backslashes := 0
			for i := start - 1; i >= 0 && data[i] == '\\'; i-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				break
			}
		}
		start--
	}
	return edit{start: start, end: e, text: jsonString(value)}
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimRight(buf.String(), "\n")
}

var (
	tomlSection      = regexp.MustCompile(`^\s*\[+\s*([^\]]+?)\s*\]+\s*(#.*)?$`)
	tomlKeyValue     = regexp.MustCompile(`^(\s*)([A-Za-z0-9_.-]+)(\s*=\s*)(.*)$`)
	tomlVersionField = regexp.MustCompile(`(\bversion\s*=\s*)"([^"]*)"`)
	tomlPackageField = regexp.MustCompile(`\bpackage\s*=\s*"([^"]*)"`)
	tomlStringValue  = regexp.MustCompile(`^"([^"]*)"`)
)

func isCargoDepSection(section string) bool {
	if i := strings.LastIndex(section, "."); i >= 0 && strings.HasPrefix(section, "target.") {
		section = section[i+1:]
	}
	switch section {
	case "dependencies", "build-dependencies", "dev-dependencies":
		return true
	}
	return false
}

// cargoDepSubtable returns the crate of a "[dependencies.<name>]" header.
func cargoDepSubtable(section string) (string, bool) {
	for _, prefix := range []string{"dependencies.", "build-dependencies.", "dev-dependencies."} {
		if name, ok := strings.CutPrefix(section, prefix); ok {
			return name, true
		}
	}
	return "", false
}

// pinCargoToml rewrites [package] version and internal dependency
// requirements line by line. Versions inherited from the workspace are
// left alone.
func pinCargoToml(data []byte, version string, deps map[string]string) []byte {
	lines := strings.SplitAfter(string(data), "\n")
	section := ""
	for i, raw := range lines {
		line, nl := strings.CutSuffix(raw, "\n")
		if m := tomlSection.FindStringSubmatch(line); m != nil {
			section = m[1]
			continue
		}
		kv := tomlKeyValue.FindStringSubmatch(line)
		if kv == nil {
			continue
		}
		indent, key, sep, value := kv[1], kv[2], kv[3], kv[4]

		switch {
		case section == "package" && key == "version":
			if tomlStringValue.MatchString(value) {
				value = tomlStringValue.ReplaceAllLiteralString(value, `"`+version+`"`)
			}
		case isCargoDepSection(section):
			name := key
			if m := tomlPackageField.FindStringSubmatch(value); m != nil {
				name = m[1]
			}
			v, internal := deps[name]
			if !internal {
				continue
			}
			switch {
			case tomlStringValue.MatchString(value):
				old := tomlStringValue.FindStringSubmatch(value)[1]
				value = tomlStringValue.ReplaceAllLiteralString(value, `"`+cargoRequirement(old, v)+`"`)
			case tomlVersionField.MatchString(value):
				old := tomlVersionField.FindStringSubmatch(value)[2]
				value = tomlVersionField.ReplaceAllString(value, `${1}"`+cargoRequirement(old, v)+`"`)
			case strings.HasPrefix(strings.TrimSpace(value), "{"):
				value = strings.Replace(value, "{", `{ version = "`+v+`",`, 1)
			}
		default:
			crate, ok := cargoDepSubtable(section)
			if !ok || key != "version" {
				continue
			}
			v, internal := deps[crate]
			if !internal || !tomlStringValue.MatchString(value) {
				continue
			}
			old := tomlStringValue.FindStringSubmatch(value)[1]
			value = tomlStringValue.ReplaceAllLiteralString(value, `"`+cargoRequirement(old, v)+`"`)
		}

		rebuilt := indent + key + sep + value
		if nl {
			rebuilt += "\n"
		}
		lines[i] = rebuilt
	}
	return []byte(strings.Join(lines, ""))
}

var pythonRequirement = regexp.MustCompile(`"([A-Za-z0-9][A-Za-z0-9._-]*)(\s*)(===|==|~=|>=|<=|!=|>|<)(\s*)([^",;\s]+)`)

// pinPyproject rewrites [project] version and the specifier version of
// internal requirements that already carry an operator.
func pinPyproject(data []byte, version string, deps map[string]string) []byte {
	normalized := make(map[string]string, len(deps))
	for name, v := range deps {
		normalized[discovery.NormalizePythonName(name)] = v
	}

	lines := strings.SplitAfter(string(data), "\n")
	section := ""
	for i, raw := range lines {
		line, nl := strings.CutSuffix(raw, "\n")
		if m := tomlSection.FindStringSubmatch(line); m != nil {
			section = m[1]
			continue
		}
		if section != "project" && !strings.HasPrefix(section, "project.") {
			continue
		}

		if kv := tomlKeyValue.FindStringSubmatch(line); kv != nil && kv[2] == "version" && section == "project" {
			if tomlStringValue.MatchString(kv[4]) {
				line = kv[1] + kv[2] + kv[3] + tomlStringValue.ReplaceAllLiteralString(kv[4], `"`+version+`"`)
			}
		} else {
			line = pythonRequirement.ReplaceAllStringFunc(line, func(req string) string {
				m := pythonRequirement.FindStringSubmatch(req)
				v, internal := normalized[discovery.NormalizePythonName(m[1])]
				if !internal {
					return req
				}
				return `"` + m[1] + m[2] + m[3] + m[4] + v
			})
		}

		if nl {
			line += "\n"
		}
		lines[i] = line
	}
	return []byte(strings.Join(lines, ""))
}
