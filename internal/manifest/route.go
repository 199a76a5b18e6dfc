package manifest

import (
	"path"
	"strings"
)

// RouteKind classifies a route file by the role its name gives it.
type RouteKind string

const (
	KindPage       RouteKind = "page"
	KindApp        RouteKind = "app"
	KindLayout     RouteKind = "layout"
	KindMiddleware RouteKind = "middleware"
	KindNotFound   RouteKind = "notFound"
	KindError      RouteKind = "error"
	KindIsland     RouteKind = "island"
)

// RoutePattern maps a route file (e.g. "routes/blog/[slug].tsx") to the
// URL pattern it serves and its kind. Special files report the pattern of
// the directory they apply to.
//
//	index        -> /
//	[id]         -> :id
//	[...rest]    -> :rest*
//	[[lang]]     -> :lang?
//	(group)      -> removed
func RoutePattern(rel string) (string, RouteKind) {
	trimmed := strings.TrimPrefix(rel, RoutesDir+"/")
	trimmed = strings.TrimSuffix(trimmed, path.Ext(trimmed))

	segments := strings.Split(trimmed, "/")
	name := segments[len(segments)-1]
	kind := kindOf(name)

	var parts []string
	for i, seg := range segments {
		last := i == len(segments)-1
		if IsGroup(seg) {
			continue
		}
		if last && (kind != KindPage || seg == "index") {
			continue
		}
		parts = append(parts, segmentPattern(seg))
	}

	return "/" + strings.Join(parts, "/"), kind
}

func kindOf(name string) RouteKind {
	switch name {
	case "_app":
		return KindApp
	case "_layout":
		return KindLayout
	case "_middleware":
		return KindMiddleware
	case "_404":
		return KindNotFound
	case "_500":
		return KindError
	}
	return KindPage
}

func segmentPattern(seg string) string {
	switch {
	case strings.HasPrefix(seg, "[[") && strings.HasSuffix(seg, "]]"):
		return ":" + seg[2:len(seg)-2] + "?"
	case strings.HasPrefix(seg, "[...") && strings.HasSuffix(seg, "]"):
		return ":" + seg[4:len(seg)-1] + "*"
	case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
		return ":" + seg[1:len(seg)-1]
	}
	return seg
}

// Entry is one row of the flattened manifest view.
type Entry struct {
	Kind       RouteKind `json:"kind" yaml:"kind"`
	File       string    `json:"file" yaml:"file"`
	Pattern    string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Identifier string    `json:"identifier" yaml:"identifier"`
}

// Entries flattens m into routes followed by islands, carrying the import
// identifiers Generate assigns.
func Entries(m *Manifest) []Entry {
	ids := identifiers(m)
	entries := make([]Entry, 0, len(m.Routes)+len(m.Islands))

	for _, rel := range m.Routes {
		pattern, kind := RoutePattern(rel)
		entries = append(entries, Entry{Kind: kind, File: rel, Pattern: pattern, Identifier: ids[rel]})
	}
	for _, rel := range m.Islands {
		entries = append(entries, Entry{Kind: KindIsland, File: rel, Identifier: ids[rel]})
	}

	return entries
}
