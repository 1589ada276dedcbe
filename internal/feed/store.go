package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mmcdole/gofeed"
)

// ErrLocked is returned when another run holds the feed lock.
var ErrLocked = errors.New("feed is locked by another run")

// ChannelMetadata describes the channel written when a feed is created.
type ChannelMetadata struct {
	Title       string
	Link        string
	Description string
	Language    string
	Author      string
}

// Store reads and rewrites the feed document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: filepath.Clean(path)}
}

// Path returns the feed file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the whole feed file.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

// Save serializes doc, checks that the output still parses as a feed holding
// every known guid, and replaces the file through a rename so a failed write
// leaves the previous content in place.
func (s *Store) Save(doc *Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("serialize feed: %w", err)
	}
	if err := Validate(data, doc.GUIDs()); err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// Init creates a feed with an empty channel when none exists yet. It reports
// whether a file was written.
func (s *Store) Init(meta ChannelMetadata, now time.Time) (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	data, err := NewFeed(meta, now)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return false, err
	}
	return true, nil
}

// Lock takes a non-blocking exclusive lock next to the feed file. Callers
// must Unlock the returned lock when the run ends.
func (s *Store) Lock() (*flock.Flock, error) {
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire feed lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	return lock, nil
}

// Validate parses data as a feed and checks every guid in want is present.
func Validate(data []byte, want *GUIDIndex) error {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: serialized feed does not parse: %v", ErrMalformed, err)
	}
	found := NewGUIDIndex()
	for _, item := range parsed.Items {
		found.Add(item.GUID)
	}
	if want == nil {
		return nil
	}
	for guid := range want.guids {
		if !found.Contains(guid) {
			return fmt.Errorf("%w: serialized feed lost item %q", ErrMalformed, guid)
		}
	}
	return nil
}

// NewFeed renders an RSS 2.0 document with channel metadata and no items.
func NewFeed(meta ChannelMetadata, now time.Time) ([]byte, error) {
	rss := rssFeed{
		Version:  "2.0",
		ITunesNS: itunesNamespace,
		Channel: rssChannel{
			Title:          meta.Title,
			Link:           meta.Link,
			Description:    meta.Description,
			Language:       meta.Language,
			LastBuildDate:  FormatPubDate(now),
			Generator:      "episode-publisher",
			ITunesAuthor:   meta.Author,
			ITunesExplicit: "false",
		},
	}
	if rss.Channel.Description == "" {
		rss.Channel.Description = rss.Channel.Title
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}
	output = append([]byte(xml.Header), output...)
	return append(output, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title          string `xml:"title"`
	Link           string `xml:"link"`
	Description    string `xml:"description"`
	Language       string `xml:"language,omitempty"`
	LastBuildDate  string `xml:"lastBuildDate"`
	Generator      string `xml:"generator"`
	ITunesAuthor   string `xml:"itunes:author,omitempty"`
	ITunesExplicit string `xml:"itunes:explicit"`
}
