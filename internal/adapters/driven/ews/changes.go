package ews

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/logger"
)

// changeReader decodes one change element whose start token has been read.
type changeReader func(d *xml.Decoder, start xml.StartElement) (domain.ChangeRecord, error)

// changeReaders dispatches change elements by local name.
var changeReaders = map[string]changeReader{
	"Create":         objectChange(domain.NewCreate),
	"Update":         objectChange(domain.NewUpdate),
	"Delete":         readDelete,
	"ReadFlagChange": readReadFlagChange,
}

// objectIDElements maps object elements to the child carrying their identifier.
var objectIDElements = map[string]string{
	"Item":                "ItemId",
	"Message":             "ItemId",
	"CalendarItem":        "ItemId",
	"Contact":             "ItemId",
	"DistributionList":    "ItemId",
	"MeetingRequest":      "ItemId",
	"MeetingResponse":     "ItemId",
	"MeetingCancellation": "ItemId",
	"Task":                "ItemId",
	"PostItem":            "ItemId",
	"Folder":              "FolderId",
	"CalendarFolder":      "FolderId",
	"ContactsFolder":      "FolderId",
	"SearchFolder":        "FolderId",
	"TasksFolder":         "FolderId",
}

// changesList is the decoded Changes element, in server order.
type changesList struct {
	Records []domain.ChangeRecord
}

// UnmarshalXML implements xml.Unmarshaler.
func (l *changesList) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			read, ok := changeReaders[t.Name.Local]
			if !ok {
				logger.Debug("ews: skipping unknown change element %s", t.Name.Local)
				if err := d.Skip(); err != nil {
					return err
				}
				continue
			}
			record, err := read(d, t)
			if err != nil {
				return err
			}
			l.Records = append(l.Records, record)
		case xml.EndElement:
			return nil
		}
	}
}

// objectChange reads a change wrapping a single materialised object.
func objectChange(build func(*domain.ServiceObject) domain.ChangeRecord) changeReader {
	return func(d *xml.Decoder, start xml.StartElement) (domain.ChangeRecord, error) {
		var obj *domain.ServiceObject
		for {
			tok, err := d.Token()
			if err != nil {
				return domain.ChangeRecord{}, err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				if obj != nil {
					if err := d.Skip(); err != nil {
						return domain.ChangeRecord{}, err
					}
					continue
				}
				var n node
				if err := d.DecodeElement(&n, &t); err != nil {
					return domain.ChangeRecord{}, err
				}
				obj = n.toServiceObject()
			case xml.EndElement:
				if obj == nil {
					return domain.ChangeRecord{}, fmt.Errorf("%w: %s change without object", domain.ErrMalformedResponse, start.Name.Local)
				}
				return build(obj), nil
			}
		}
	}
}

func readDelete(d *xml.Decoder, start xml.StartElement) (domain.ChangeRecord, error) {
	var v struct {
		ItemID   *wireID `xml:"ItemId"`
		FolderID *wireID `xml:"FolderId"`
	}
	if err := d.DecodeElement(&v, &start); err != nil {
		return domain.ChangeRecord{}, err
	}
	switch {
	case v.ItemID != nil:
		return domain.NewDelete(v.ItemID.toDomain()), nil
	case v.FolderID != nil:
		return domain.NewDelete(v.FolderID.toDomain()), nil
	default:
		return domain.ChangeRecord{}, fmt.Errorf("%w: Delete change without id", domain.ErrMalformedResponse)
	}
}

func readReadFlagChange(d *xml.Decoder, start xml.StartElement) (domain.ChangeRecord, error) {
	var v struct {
		ItemID *wireID `xml:"ItemId"`
		IsRead bool    `xml:"IsRead"`
	}
	if err := d.DecodeElement(&v, &start); err != nil {
		return domain.ChangeRecord{}, err
	}
	if v.ItemID == nil {
		return domain.ChangeRecord{}, fmt.Errorf("%w: ReadFlagChange without ItemId", domain.ErrMalformedResponse)
	}
	return domain.NewReadFlagChange(v.ItemID.toDomain(), v.IsRead), nil
}

// node is a generic XML element.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []node     `xml:",any"`
}

// toServiceObject materialises an object element. Simple children become
// properties keyed by element name; nested ones are flattened with dots.
func (n *node) toServiceObject() *domain.ServiceObject {
	kind := n.XMLName.Local
	idElement, known := objectIDElements[kind]
	if !known {
		logger.Debug("ews: decoding unrecognised object %s generically", kind)
	}

	obj := &domain.ServiceObject{
		Kind:       kind,
		Properties: make(map[string]string),
	}
	for i := range n.Children {
		child := &n.Children[i]
		name := child.XMLName.Local
		switch {
		case name == idElement, !known && (name == "ItemId" || name == "FolderId"):
			obj.ID = child.id()
		case name == "ParentFolderId":
			obj.ParentFolderID = child.id()
		default:
			child.flatten(obj.Properties, name)
		}
	}
	return obj
}

func (n *node) id() domain.ItemID {
	var id domain.ItemID
	for _, a := range n.Attrs {
		switch a.Name.Local {
		case "Id":
			id.ID = a.Value
		case "ChangeKey":
			id.ChangeKey = a.Value
		}
	}
	return id
}

func (n *node) flatten(props map[string]string, key string) {
	for _, a := range n.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		addProperty(props, key+"@"+a.Name.Local, a.Value)
	}
	if len(n.Children) == 0 {
		addProperty(props, key, strings.TrimSpace(n.Text))
		return
	}
	for i := range n.Children {
		child := &n.Children[i]
		child.flatten(props, key+"."+child.XMLName.Local)
	}
}

// addProperty stores a value; repeated elements are joined with ";".
func addProperty(props map[string]string, key, value string) {
	if existing, ok := props[key]; ok {
		props[key] = existing + ";" + value
		return
	}
	props[key] = value
}
