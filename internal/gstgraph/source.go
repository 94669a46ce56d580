package gstgraph

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceSpec is the source element selected for a URI.
type SourceSpec struct {
	// Factory is the element factory name
	Factory string
	// Property receives Value
	Property string
	Value    string
	// Dynamic is true when the element exposes its pads only after
	// connecting (linked to the decoder on pad-added)
	Dynamic bool
}

// SourceFor selects the source element by URI scheme:
//
//	rtsp://          → rtspsrc (location, dynamic pads)
//	udp://           → udpsrc (uri)
//	http://, https:// → souphttpsrc (location)
//	file://, path    → filesrc (location)
func SourceFor(uri string) (SourceSpec, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return SourceSpec{}, fmt.Errorf("gstgraph: empty source uri")
	}

	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "rtsp://"), strings.HasPrefix(lower, "rtsps://"):
		return SourceSpec{Factory: "rtspsrc", Property: "location", Value: uri, Dynamic: true}, nil

	case strings.HasPrefix(lower, "udp://"):
		return SourceSpec{Factory: "udpsrc", Property: "uri", Value: uri}, nil

	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return SourceSpec{Factory: "souphttpsrc", Property: "location", Value: uri}, nil

	case strings.HasPrefix(lower, "file://"):
		path, err := filePath(uri)
		if err != nil {
			return SourceSpec{}, err
		}
		return SourceSpec{Factory: "filesrc", Property: "location", Value: path}, nil

	default:
		return SourceSpec{Factory: "filesrc", Property: "location", Value: uri}, nil
	}
}

// filePath returns the unescaped local path of a file:// URI. Only an empty
// host or localhost is accepted.
func filePath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("gstgraph: invalid file uri %q: %w", uri, err)
	}
	if u.Host != "" && !strings.EqualFold(u.Host, "localhost") {
		return "", fmt.Errorf("gstgraph: file uri with remote host %q: %q", u.Host, uri)
	}
	if u.Path == "" {
		return "", fmt.Errorf("gstgraph: file uri without path: %q", uri)
	}
	return u.Path, nil
}
