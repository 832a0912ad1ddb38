package loader

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// dbfDecoder returns a decoder for the code page named in a .cpg sidecar, or
// nil when attributes are already UTF-8. Bare numeric code pages such as
// "1252" are mapped to their windows-* names.
func dbfDecoder(cpg string) (*encoding.Decoder, error) {
	name := strings.ToLower(strings.TrimSpace(cpg))
	switch name {
	case "", "utf-8", "utf8", "65001":
		return nil, nil
	}
	if isNumeric(name) {
		name = "windows-" + name
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unsupported DBF code page %q", cpg)
	}
	return enc.NewDecoder(), nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
