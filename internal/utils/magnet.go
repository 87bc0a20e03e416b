package utils

import (
	"fmt"
	"github.com/anacrolix/torrent/metainfo"
	"regexp"
	"strings"
)

const MagnetPrefix = "magnet:?xt=urn:btih:"

var (
	hexHashRegex    = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	base32HashRegex = regexp.MustCompile(`^[A-Za-z2-7]{32}$`)
)

type Magnet struct {
	Name     string
	InfoHash string
	Trackers []string
	Link     string
}

// magnetHash returns the hash segment: everything after the prefix up to the first & or #.
func magnetHash(link string) (string, bool) {
	if !strings.HasPrefix(link, MagnetPrefix) {
		return "", false
	}
	rest := link[len(MagnetPrefix):]
	if end := strings.IndexAny(rest, "&#"); end != -1 {
		rest = rest[:end]
	}
	return rest, true
}

// ValidateMagnet accepts a btih magnet whose hash is 40 hex or 32 base32 characters.
func ValidateMagnet(link string) bool {
	hash, ok := magnetHash(link)
	if !ok {
		return false
	}
	return hexHashRegex.MatchString(hash) || base32HashRegex.MatchString(hash)
}

func GetMagnetInfo(link string) (*Magnet, error) {
	if !ValidateMagnet(link) {
		return nil, fmt.Errorf("invalid magnet link")
	}
	m, err := metainfo.ParseMagnetUri(link)
	if err != nil {
		return nil, fmt.Errorf("error parsing magnet link: %w", err)
	}
	return &Magnet{
		Name:     m.DisplayName,
		InfoHash: m.InfoHash.HexString(),
		Trackers: m.Trackers,
		Link:     link,
	}, nil
}
