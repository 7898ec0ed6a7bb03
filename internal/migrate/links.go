package migrate

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	notesTemplate = "/!\\ This project notes has been copied from MLFlow. It might be overwritten if you run comet_for_mlflow again/!\\ \n"

	// maxProjectLinks is the number of projects linked one by one; above it a
	// single workspace search link is printed.
	maxProjectLinks = 5
)

func parentRunURL(serverURL, parentRunID string) string {
	base := resolveServerPath(serverURL, "/api/experiment/redirect")
	return base + "?experimentKey=" + url.QueryEscape(parentRunID)
}

// resolveServerPath resolves p against the server URL the way a browser
// resolves a link.
func resolveServerPath(serverURL, p string) string {
	base, err := url.Parse(serverURL)
	if err != nil {
		return strings.TrimRight(serverURL, "/") + p
	}
	return base.ResolveReference(&url.URL{Path: p}).String()
}

// ProjectLinks returns the links printed after an upload.
func ProjectLinks(serverURL, workspace string, projectNames []string, loginToken string) []string {
	server := strings.TrimRight(serverURL, "/") + "/"
	withToken := func(link string, params string) string {
		if loginToken != "" {
			if params != "" {
				params += "&"
			}
			params += "loginToken=" + url.QueryEscape(loginToken)
		}
		if params == "" {
			return link
		}
		return link + "?" + params
	}
	if len(projectNames) <= maxProjectLinks {
		links := make([]string, 0, len(projectNames))
		for _, name := range projectNames {
			links = append(links, withToken(server+workspace+"/"+name, ""))
		}
		return links
	}
	return []string{withToken(server+workspace, "query=mlflow")}
}

// ProjectNotes wraps the source notes in the copy notice and escapes every
// non ASCII character as \xNN, \uNNNN or \UNNNNNNNN.
func ProjectNotes(note string) string {
	return asciiBackslash(notesTemplate + note)
}

func asciiBackslash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r == utf8.RuneError && isInvalidAt(s, i):
			b.WriteString(`\x`)
			b.WriteString(hex2(uint32(s[i])))
		case r < 0x80:
			b.WriteRune(r)
		case r < 0x100:
			b.WriteString(`\x` + hex2(uint32(r)))
		case r < 0x10000:
			b.WriteString(`\u` + hex2(uint32(r)>>8) + hex2(uint32(r)&0xff))
		default:
			b.WriteString(`\U` + hex2(uint32(r)>>24) + hex2((uint32(r)>>16)&0xff) + hex2((uint32(r)>>8)&0xff) + hex2(uint32(r)&0xff))
		}
	}
	return b.String()
}

func isInvalidAt(s string, i int) bool {
	_, size := utf8.DecodeRuneInString(s[i:])
	return size == 1
}

func hex2(v uint32) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(v>>4)&0xf], digits[v&0xf]})
}
