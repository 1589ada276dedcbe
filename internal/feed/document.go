package feed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"
)

const itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"

var (
	// ErrMalformed is returned when the document is not an RSS feed with a channel.
	ErrMalformed = errors.New("malformed feed document")
	// ErrDuplicateGUID is returned when inserting an item whose guid is already present.
	ErrDuplicateGUID = errors.New("guid already present in feed")
)

// ItemSummary identifies an existing item.
type ItemSummary struct {
	GUID  string
	Title string
}

// GUIDIndex is the set of item identifiers in a feed. Identifiers are
// compared exactly after Unicode NFC normalization, so a file name stored
// decomposed by one filesystem still matches its composed form.
type GUIDIndex struct {
	guids map[string]struct{}
}

// NewGUIDIndex builds an index from guids.
func NewGUIDIndex(guids ...string) *GUIDIndex {
	idx := &GUIDIndex{guids: make(map[string]struct{}, len(guids))}
	for _, guid := range guids {
		idx.Add(guid)
	}
	return idx
}

// Add records guid. Blank identifiers are ignored.
func (i *GUIDIndex) Add(guid string) {
	if key := normalizeGUID(guid); key != "" {
		i.guids[key] = struct{}{}
	}
}

// Contains reports whether guid is present.
func (i *GUIDIndex) Contains(guid string) bool {
	_, ok := i.guids[normalizeGUID(guid)]
	return ok
}

// Len returns the number of distinct identifiers.
func (i *GUIDIndex) Len() int {
	return len(i.guids)
}

func normalizeGUID(guid string) string {
	return norm.NFC.String(strings.TrimSpace(guid))
}

// Document is a parsed feed kept as a generic element tree, so elements and
// attributes this package does not know about survive a rewrite.
type Document struct {
	doc     *etree.Document
	channel *etree.Element
	guids   *GUIDIndex
}

// Parse reads an RSS document from data.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "rss" {
		return nil, fmt.Errorf("%w: root element is not <rss>", ErrMalformed)
	}
	channel := root.SelectElement("channel")
	if channel == nil {
		return nil, fmt.Errorf("%w: missing <channel>", ErrMalformed)
	}

	d := &Document{doc: doc, channel: channel, guids: NewGUIDIndex()}
	for _, item := range channel.SelectElements("item") {
		if guid := item.SelectElement("guid"); guid != nil {
			d.guids.Add(guid.Text())
		}
	}
	return d, nil
}

// Contains reports whether an item with guid exists.
func (d *Document) Contains(guid string) bool {
	return d.guids.Contains(guid)
}

// GUIDs returns the index of existing identifiers.
func (d *Document) GUIDs() *GUIDIndex {
	return d.guids
}

// Items lists the items in document order.
func (d *Document) Items() []ItemSummary {
	items := d.channel.SelectElements("item")
	result := make([]ItemSummary, 0, len(items))
	for _, item := range items {
		var summary ItemSummary
		if guid := item.SelectElement("guid"); guid != nil {
			summary.GUID = strings.TrimSpace(guid.Text())
		}
		if title := item.SelectElement("title"); title != nil {
			summary.Title = strings.TrimSpace(title.Text())
		}
		result = append(result, summary)
	}
	return result
}

// Prepend inserts item ahead of every existing item. Channel metadata
// elements stay where they are; with no existing items the new one is
// appended to the channel.
func (d *Document) Prepend(item *etree.Element) error {
	if item == nil || item.Tag != "item" {
		return fmt.Errorf("prepend: expected <item> element")
	}

	var guid string
	if el := item.SelectElement("guid"); el != nil {
		guid = el.Text()
	}
	if strings.TrimSpace(guid) == "" {
		return fmt.Errorf("prepend: item has no guid")
	}
	if d.guids.Contains(guid) {
		return fmt.Errorf("%w: %s", ErrDuplicateGUID, guid)
	}

	d.ensureNamespace("itunes", itunesNamespace)

	if first := d.channel.SelectElement("item"); first != nil {
		d.channel.InsertChildAt(first.Index(), item)
	} else {
		d.channel.AddChild(item)
	}
	d.guids.Add(guid)
	return nil
}

// Bytes serializes the document with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	if !d.hasDeclaration() {
		d.doc.InsertChildAt(0, &etree.ProcInst{Target: "xml", Inst: `version="1.0" encoding="UTF-8"`})
	}
	d.doc.Indent(2)
	return d.doc.WriteToBytes()
}

func (d *Document) hasDeclaration() bool {
	for _, token := range d.doc.Child {
		if pi, ok := token.(*etree.ProcInst); ok && pi.Target == "xml" {
			return true
		}
	}
	return false
}

func (d *Document) ensureNamespace(prefix, uri string) {
	root := d.doc.Root()
	if root.SelectAttr("xmlns:"+prefix) == nil {
		root.CreateAttr("xmlns:"+prefix, uri)
	}
}
