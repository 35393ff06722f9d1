package taxii

import (
	"bytes"
	"encoding/xml"
	"time"
)

// TAXII 1.1 XML binding identifiers.
const (
	Namespace          = "http://taxii.mitre.org/messages/taxii_xml_binding-1.1"
	MessageBinding     = "urn:taxii.mitre.org:message:xml:1.1"
	ServicesVersion    = "urn:taxii.mitre.org:services:1.1"
	ProtocolHTTP       = "urn:taxii.mitre.org:protocol:http:1.0"
	ProtocolHTTPS      = "urn:taxii.mitre.org:protocol:https:1.0"
	ContentBindingSTIX = "urn:stix.mitre.org:xml:1.1.1"
)

// Message types returned by TAXII services.
const (
	MessagePollResponse = "Poll_Response"
	MessageStatus       = "Status_Message"
)

// Status types.
const (
	StatusSuccess = "SUCCESS"
	StatusPending = "PENDING"
)

// timestampLayout is the xs:dateTime form used on the wire.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// PollRequest asks a collection for content.
type PollRequest struct {
	XMLName        xml.Name        `xml:"taxii_11:Poll_Request"`
	NS             string          `xml:"xmlns:taxii_11,attr"`
	MessageID      string          `xml:"message_id,attr"`
	CollectionName string          `xml:"collection_name,attr"`
	BeginTimestamp string          `xml:"taxii_11:Exclusive_Begin_Timestamp,omitempty"`
	EndTimestamp   string          `xml:"taxii_11:Inclusive_End_Timestamp,omitempty"`
	SubscriptionID string          `xml:"taxii_11:Subscription_ID,omitempty"`
	PollParameters *PollParameters `xml:"taxii_11:Poll_Parameters,omitempty"`
}

// PollParameters are sent when no subscription is used.
type PollParameters struct {
	AllowAsynch  bool   `xml:"allow_asynch,attr"`
	ResponseType string `xml:"taxii_11:Response_Type"`
}

// PollFulfillment requests a further part of a multi-part result.
type PollFulfillment struct {
	XMLName          xml.Name `xml:"taxii_11:Poll_Fulfillment"`
	NS               string   `xml:"xmlns:taxii_11,attr"`
	MessageID        string   `xml:"message_id,attr"`
	CollectionName   string   `xml:"collection_name,attr"`
	ResultID         string   `xml:"result_id,attr"`
	ResultPartNumber int      `xml:"result_part_number,attr"`
}

// InboxMessage pushes content to destination collections.
type InboxMessage struct {
	XMLName      xml.Name          `xml:"taxii_11:Inbox_Message"`
	NS           string            `xml:"xmlns:taxii_11,attr"`
	MessageID    string            `xml:"message_id,attr"`
	Destinations []string          `xml:"taxii_11:Destination_Collection_Name"`
	Blocks       []outContentBlock `xml:"taxii_11:Content_Block"`
}

type outContentBlock struct {
	Binding outBinding `xml:"taxii_11:Content_Binding"`
	Content innerXML   `xml:"taxii_11:Content"`
}

type outBinding struct {
	ID string `xml:"binding_id,attr"`
}

type innerXML struct {
	Inner []byte `xml:",innerxml"`
}

// PollResponse carries content blocks from a collection.
type PollResponse struct {
	XMLName          xml.Name       `xml:"Poll_Response"`
	MessageID        string         `xml:"message_id,attr"`
	InResponseTo     string         `xml:"in_response_to,attr"`
	CollectionName   string         `xml:"collection_name,attr"`
	More             bool           `xml:"more,attr"`
	ResultID         string         `xml:"result_id,attr"`
	ResultPartNumber int            `xml:"result_part_number,attr"`
	EndTimestamp     string         `xml:"Inclusive_End_Timestamp"`
	RecordCount      int            `xml:"Record_Count"`
	ContentBlocks    []ContentBlock `xml:"Content_Block"`
}

// EndTime returns the inclusive end timestamp label, or the zero time.
func (r *PollResponse) EndTime() time.Time {
	return parseTimestamp(r.EndTimestamp)
}

// ContentBlock is one piece of polled content.
type ContentBlock struct {
	Binding   binding  `xml:"Content_Binding"`
	Content   innerXML `xml:"Content"`
	Timestamp string   `xml:"Timestamp_Label"`
}

type binding struct {
	ID string `xml:"binding_id,attr"`
}

// BindingID returns the content binding identifier.
func (b *ContentBlock) BindingID() string {
	return b.Binding.ID
}

// Payload returns the block content without surrounding whitespace.
func (b *ContentBlock) Payload() []byte {
	return bytes.TrimSpace(b.Content.Inner)
}

// TimestampLabel returns the block timestamp, or the zero time.
func (b *ContentBlock) TimestampLabel() time.Time {
	return parseTimestamp(b.Timestamp)
}

// StatusMessage reports the outcome of a request.
type StatusMessage struct {
	XMLName      xml.Name `xml:"Status_Message"`
	MessageID    string   `xml:"message_id,attr"`
	InResponseTo string   `xml:"in_response_to,attr"`
	StatusType   string   `xml:"status_type,attr"`
	Message      string   `xml:"Message"`
}

// NewPollRequest builds a poll request. Minimal poll parameters are set
// when no subscription is given.
func NewPollRequest(messageID, collection, subscriptionID string, begin, end time.Time) *PollRequest {
	req := &PollRequest{
		NS:             Namespace,
		MessageID:      messageID,
		CollectionName: collection,
		BeginTimestamp: formatTimestamp(begin),
		EndTimestamp:   formatTimestamp(end),
		SubscriptionID: subscriptionID,
	}
	if subscriptionID == "" {
		req.PollParameters = &PollParameters{ResponseType: "FULL"}
	}
	return req
}

// NewPollFulfillment builds a request for part of a result set.
func NewPollFulfillment(messageID, collection, resultID string, part int) *PollFulfillment {
	return &PollFulfillment{
		NS:               Namespace,
		MessageID:        messageID,
		CollectionName:   collection,
		ResultID:         resultID,
		ResultPartNumber: part,
	}
}

// NewInboxMessage wraps STIX payloads into an inbox message for collection.
func NewInboxMessage(messageID, collection string, payloads ...[]byte) *InboxMessage {
	msg := &InboxMessage{NS: Namespace, MessageID: messageID}
	if collection != "" {
		msg.Destinations = []string{collection}
	}
	for _, p := range payloads {
		msg.Blocks = append(msg.Blocks, outContentBlock{
			Binding: outBinding{ID: ContentBindingSTIX},
			Content: innerXML{Inner: stripDeclaration(p)},
		})
	}
	return msg
}

// stripDeclaration removes a leading <?xml ...?> declaration so the
// payload can be embedded in another document.
func stripDeclaration(p []byte) []byte {
	p = bytes.TrimSpace(p)
	if bytes.HasPrefix(p, []byte("<?xml")) {
		if end := bytes.Index(p, []byte("?>")); end >= 0 {
			p = bytes.TrimSpace(p[end+2:])
		}
	}
	return p
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// rootElement returns the local name of the first element in data.
func rootElement(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}
