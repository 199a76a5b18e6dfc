package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/buttonstudio/internal/errors"
)

const header = `// DO NOT EDIT. This file is generated by buttonstudio.
// This file SHOULD be checked into source version control.
// This file is automatically updated during development when running ` + "`buttonstudio serve --dev`" + `.
`

// identifiers assigns every route and island a unique import binding.
// Routes are named first, so on a clash the island gets the suffix.
func identifiers(m *Manifest) map[string]string {
	ids := make(map[string]string, len(m.Routes)+len(m.Islands))
	used := make(map[string]bool, len(m.Routes)+len(m.Islands))

	assign := func(rel, prefix string) {
		base := "$" + sanitizeIdentifier(strings.TrimSuffix(strings.TrimPrefix(rel, prefix+"/"), path.Ext(rel)))
		id := base
		for n := 1; used[id]; n++ {
			id = base + "_" + strconv.Itoa(n)
		}
		used[id] = true
		ids[rel] = id
	}

	for _, rel := range m.Routes {
		assign(rel, RoutesDir)
	}
	for _, rel := range m.Islands {
		prefix := IslandsDir
		if strings.HasPrefix(rel, RoutesDir+"/") {
			prefix = RoutesDir
		}
		assign(rel, prefix)
	}

	return ids
}

// sanitizeIdentifier keeps characters valid in a JavaScript identifier and
// replaces everything else with an underscore.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '$' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Generate renders the import manifest for m.
func Generate(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "nil manifest", nil)
	}

	ids := identifiers(m)
	var buf bytes.Buffer

	buf.WriteString(header)
	buf.WriteString("\n")

	for _, rel := range m.Routes {
		fmt.Fprintf(&buf, "import * as %s from %q;\n", ids[rel], "./"+rel)
	}
	for _, rel := range m.Islands {
		fmt.Fprintf(&buf, "import * as %s from %q;\n", ids[rel], "./"+rel)
	}
	buf.WriteString(`import { type Manifest } from "$fresh/server.ts";` + "\n\n")

	buf.WriteString("const manifest = {\n")
	writeObject(&buf, "routes", m.Routes, ids)
	writeObject(&buf, "islands", m.Islands, ids)
	buf.WriteString("  baseUrl: import.meta.url,\n")
	buf.WriteString("} satisfies Manifest;\n\n")
	buf.WriteString("export default manifest;\n")

	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, name string, files []string, ids map[string]string) {
	fmt.Fprintf(buf, "  %s: {\n", name)
	for _, rel := range files {
		fmt.Fprintf(buf, "    %q: %s,\n", "./"+rel, ids[rel])
	}
	buf.WriteString("  },\n")
}

// Write stores data at path unless the file already holds exactly data.
// It reports whether the file changed.
func Write(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "reading existing manifest", err).WithPath(path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, errors.NewIOError(errors.ErrCodeManifestWrite, "creating manifest directory", err).WithPath(path)
		}
	}

	// Write to a sibling temp file and rename so a running dev server never
	// imports a half-written manifest.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "creating temp file", err).WithPath(path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "writing manifest", err).WithPath(path)
	}
	if err := tmp.Close(); err != nil {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "closing manifest", err).WithPath(path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "setting manifest mode", err).WithPath(path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "replacing manifest", err).WithPath(path)
	}

	return true, nil
}

// IsStale reports whether the manifest at path differs from data.
func IsStale(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, errors.NewIOError(errors.ErrCodeManifestWrite, "reading existing manifest", err).WithPath(path)
	}
	return !bytes.Equal(existing, data), nil
}
