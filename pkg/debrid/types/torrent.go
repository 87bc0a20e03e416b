package types

import (
	"path"
)

// StatusDownloaded is the status of a torrent fully cached by the service.
const StatusDownloaded = "downloaded"

// UnknownName stands in for a torrent the service has not named yet.
const UnknownName = "Unknown filename"

type Torrent struct {
	Id       string   `json:"id"`
	InfoHash string   `json:"info_hash"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Files    []string `json:"files"`
	Links    []string `json:"links"`
	Bytes    int64    `json:"bytes"`
}

// ResolvedLink pairs a file with its restricted link and, once unrestricted, its direct URL.
type ResolvedLink struct {
	FileName string `json:"file_name"`
	Link     string `json:"link"`
	URL      string `json:"url,omitempty"`
}

func (r ResolvedLink) IsResolved() bool {
	return r.URL != ""
}

// PairLinks builds the file/link records for a torrent.
//
// One link for several files is the single-link shortcut (the service packed the
// selection into one archive); the record is named after the torrent. Otherwise
// files and links are zipped in order, truncated to the shorter list. mismatch
// reports whether truncation happened.
func PairLinks(t *Torrent) (links []ResolvedLink, mismatch bool) {
	if len(t.Links) == 0 {
		return nil, false
	}
	if len(t.Links) == 1 {
		name := t.Name
		if len(t.Files) == 1 {
			name = path.Base(t.Files[0])
		}
		return []ResolvedLink{{FileName: name, Link: t.Links[0]}}, false
	}

	n := min(len(t.Files), len(t.Links))
	links = make([]ResolvedLink, 0, n)
	for i := 0; i < n; i++ {
		links = append(links, ResolvedLink{
			FileName: path.Base(t.Files[i]),
			Link:     t.Links[i],
		})
	}
	return links, len(t.Files) != len(t.Links)
}

// URLs returns the direct URLs of the resolved records, in order.
func URLs(links []ResolvedLink) []string {
	urls := make([]string, 0, len(links))
	for _, l := range links {
		if l.IsResolved() {
			urls = append(urls, l.URL)
		}
	}
	return urls
}
