package feed

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"

	"episode-publisher/internal/metadata"
	"episode-publisher/internal/models"
)

// PubDateLayout is the RFC 2822 style layout used for pubDate, always in GMT.
const PubDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ItemOptions holds the publisher-wide values stamped onto every item.
type ItemOptions struct {
	BaseURL   string
	MediaPath string
	Author    string
}

// EnclosureURL joins the public base URL, the media path segment and the
// path-escaped file name. Spaces become %20.
func EnclosureURL(baseURL, mediaPath, filename string) string {
	parts := []string{strings.TrimRight(baseURL, "/")}
	if segment := strings.Trim(mediaPath, "/"); segment != "" {
		parts = append(parts, segment)
	}
	parts = append(parts, url.PathEscape(filename))
	return strings.Join(parts, "/")
}

// FormatPubDate renders t in UTC using PubDateLayout.
func FormatPubDate(t time.Time) string {
	return t.UTC().Format(PubDateLayout)
}

// BuildItem assembles the <item> element for ep. Empty optional fields are
// left out, so a title-only episode yields a minimal item.
func BuildItem(ep models.Episode, opts ItemOptions) (*etree.Element, error) {
	if strings.TrimSpace(ep.Title) == "" {
		return nil, fmt.Errorf("build item %s: empty title", ep.GUID)
	}
	if strings.TrimSpace(ep.GUID) == "" {
		return nil, fmt.Errorf("build item %s: empty guid", ep.Filename)
	}

	link := EnclosureURL(opts.BaseURL, opts.MediaPath, ep.Filename)

	author := ep.Author
	if author == "" {
		author = opts.Author
	}

	item := rssItem{
		Title:       ep.Title,
		Description: ep.Description,
		Enclosure: rssEnclosure{
			URL:    link,
			Length: ep.FilesizeBytes,
			Type:   mimeTypeForFilename(ep.Filename),
		},
		GUID:           rssGUID{IsPermaLink: "false", Value: ep.GUID},
		PubDate:        FormatPubDate(ep.PublishedAt),
		Author:         author,
		Link:           link,
		Categories:     ep.Tags,
		ITunesSummary:  ep.Description,
		ITunesExplicit: "false",
	}
	if len(ep.Tags) > 0 {
		item.ITunesKeywords = strings.Join(ep.Tags, ", ")
	}
	if ep.DurationSeconds != nil {
		item.ITunesDuration = metadata.FormatDuration(*ep.DurationSeconds)
	}

	data, err := xml.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("build item %s: %w", ep.GUID, err)
	}

	fragment := etree.NewDocument()
	if err := fragment.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("build item %s: %w", ep.GUID, err)
	}
	root := fragment.Root()
	if root == nil {
		return nil, fmt.Errorf("build item %s: empty fragment", ep.GUID)
	}
	return root.Copy(), nil
}

func mimeTypeForFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if fallback, ok := audioMIMETypes[ext]; ok {
			return fallback
		}
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
	}
	return "application/octet-stream"
}

var audioMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

type rssItem struct {
	XMLName        xml.Name     `xml:"item"`
	Title          string       `xml:"title"`
	Description    string       `xml:"description,omitempty"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate"`
	Author         string       `xml:"author,omitempty"`
	Link           string       `xml:"link"`
	Categories     []string     `xml:"category"`
	ITunesSummary  string       `xml:"itunes:summary,omitempty"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesKeywords string       `xml:"itunes:keywords,omitempty"`
	ITunesExplicit string       `xml:"itunes:explicit"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
