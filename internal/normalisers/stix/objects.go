package stix

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// xmlProperties decodes a cybox:Properties element into the object type
// named by its xsi:type attribute.
type xmlProperties struct {
	props domain.ObjectProperties
}

// objectDecoders maps xsi:type names to decoders. Each decoder consumes
// the Properties element.
var objectDecoders = map[string]func(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error){
	"AddressObjectType":            decodeAddress,
	"DomainNameObjectType":         decodeDomainName,
	"URIObjectType":                decodeURI,
	"HostnameObjectType":           decodeHostname,
	"FileObjectType":               decodeFile,
	"EmailMessageObjectType":       decodeEmailMessage,
	"MutexObjectType":              decodeMutex,
	"WindowsRegistryKeyObjectType": decodeRegistryKey,
	"NetworkConnectionObjectType":  decodeNetworkConnection,
}

// UnmarshalXML implements xml.Unmarshaler. Unsupported object types are
// skipped and leave the observable without properties.
func (p *xmlProperties) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decode, ok := objectDecoders[localType(start.Attr)]
	if !ok {
		return d.Skip()
	}
	props, err := decode(d, start)
	if err != nil {
		return err
	}
	p.props = props
	return nil
}

// xmlAttr is a CybOX string property with its optional condition.
type xmlAttr struct {
	Value     string `xml:",chardata"`
	Condition string `xml:"condition,attr"`
}

func (a xmlAttr) toDomain() domain.Attr {
	return domain.Attr{Value: strings.TrimSpace(a.Value), Condition: strings.TrimSpace(a.Condition)}
}

func attrList(items []xmlAttr) []domain.Attr {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.Attr, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	return out
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// ==================== Address ====================

type xmlAddress struct {
	Category      string  `xml:"category,attr"`
	IsSource      string  `xml:"is_source,attr"`
	IsDestination string  `xml:"is_destination,attr"`
	AddressValue  xmlAttr `xml:"Address_Value"`
	VLANName      xmlAttr `xml:"VLAN_Name"`
	VLANNum       string  `xml:"VLAN_Num"`
}

func (x *xmlAddress) toDomain(defaultCategory string) *domain.Address {
	if x == nil {
		return nil
	}
	category := strings.TrimSpace(x.Category)
	if category == "" {
		category = defaultCategory
	}
	return &domain.Address{
		Category:      category,
		AddressValue:  x.AddressValue.toDomain(),
		VLANName:      x.VLANName.toDomain(),
		VLANNum:       parseInt(x.VLANNum),
		IsSource:      parseBool(x.IsSource),
		IsDestination: parseBool(x.IsDestination),
	}
}

func decodeAddress(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlAddress
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return x.toDomain(domain.AddressIPv4), nil
}

// ==================== DomainName / URI ====================

type xmlTypedValue struct {
	Type  string  `xml:"type,attr"`
	Value xmlAttr `xml:"Value"`
}

func decodeDomainName(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlTypedValue
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return &domain.DomainName{Value: x.Value.toDomain(), Type: strings.TrimSpace(x.Type)}, nil
}

func decodeURI(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlTypedValue
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return &domain.URI{Value: x.Value.toDomain(), Type: strings.TrimSpace(x.Type)}, nil
}

// ==================== Hostname ====================

type xmlHostname struct {
	IsDomainName  string    `xml:"is_domain_name,attr"`
	HostnameValue xmlAttr   `xml:"Hostname_Value"`
	NamingSystem  []xmlAttr `xml:"Naming_System"`
}

func (x *xmlHostname) toDomain() *domain.Hostname {
	if x == nil {
		return nil
	}
	return &domain.Hostname{
		HostnameValue: x.HostnameValue.toDomain(),
		NamingSystem:  attrList(x.NamingSystem),
		IsDomainName:  parseBool(x.IsDomainName),
	}
}

func decodeHostname(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlHostname
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return x.toDomain(), nil
}

// ==================== File ====================

type xmlFile struct {
	FileName      xmlAttr   `xml:"File_Name"`
	FilePath      xmlAttr   `xml:"File_Path"`
	FileExtension xmlAttr   `xml:"File_Extension"`
	SizeInBytes   string    `xml:"Size_In_Bytes"`
	Hashes        []xmlHash `xml:"Hashes>Hash"`
}

type xmlHash struct {
	Type            xmlAttr `xml:"Type"`
	SimpleHashValue xmlAttr `xml:"Simple_Hash_Value"`
}

func decodeFile(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlFile
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	file := &domain.File{
		FileName:      x.FileName.toDomain(),
		FilePath:      x.FilePath.toDomain(),
		FileExtension: x.FileExtension.toDomain(),
		SizeInBytes:   parseInt(x.SizeInBytes),
	}
	for _, h := range x.Hashes {
		file.Hashes = append(file.Hashes, &domain.Hash{
			Type:            h.Type.toDomain(),
			SimpleHashValue: h.SimpleHashValue.toDomain(),
		})
	}
	return file, nil
}

// ==================== EmailMessage ====================

type xmlEmailMessage struct {
	Header      *xmlEmailHeader `xml:"Header"`
	Attachments []xmlObjectRef  `xml:"Attachments>File"`
	RawBody     string          `xml:"Raw_Body"`
}

type xmlObjectRef struct {
	Ref string `xml:"object_reference,attr"`
}

type xmlEmailHeader struct {
	To             []xmlAddress `xml:"To>Recipient"`
	CC             []xmlAddress `xml:"CC>Recipient"`
	From           *xmlAddress  `xml:"From"`
	Sender         *xmlAddress  `xml:"Sender"`
	ReplyTo        *xmlAddress  `xml:"Reply_To"`
	Subject        xmlAttr      `xml:"Subject"`
	Date           string       `xml:"Date"`
	MessageID      xmlAttr      `xml:"Message_ID"`
	XMailer        xmlAttr      `xml:"X_Mailer"`
	XOriginatingIP *xmlAddress  `xml:"X_Originating_IP"`
}

func emailAddresses(items []xmlAddress) []*domain.Address {
	if len(items) == 0 {
		return nil
	}
	out := make([]*domain.Address, 0, len(items))
	for i := range items {
		out = append(out, items[i].toDomain(domain.AddressEmail))
	}
	return out
}

func decodeEmailMessage(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlEmailMessage
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	msg := &domain.EmailMessage{RawBody: strings.TrimSpace(x.RawBody)}
	for _, a := range x.Attachments {
		if a.Ref != "" {
			msg.Attachments = append(msg.Attachments, a.Ref)
		}
	}
	if h := x.Header; h != nil {
		msg.Header = &domain.EmailHeader{
			To:             emailAddresses(h.To),
			CC:             emailAddresses(h.CC),
			From:           h.From.toDomain(domain.AddressEmail),
			Sender:         h.Sender.toDomain(domain.AddressEmail),
			ReplyTo:        h.ReplyTo.toDomain(domain.AddressEmail),
			Subject:        h.Subject.toDomain(),
			Date:           strings.TrimSpace(h.Date),
			MessageID:      h.MessageID.toDomain(),
			XMailer:        h.XMailer.toDomain(),
			XOriginatingIP: h.XOriginatingIP.toDomain(domain.AddressIPv4),
		}
	}
	return msg, nil
}

// ==================== Mutex ====================

type xmlMutex struct {
	Named string  `xml:"named,attr"`
	Name  xmlAttr `xml:"Name"`
}

func decodeMutex(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlMutex
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return &domain.Mutex{Name: x.Name.toDomain(), Named: parseBool(x.Named)}, nil
}

// ==================== WindowsRegistryKey ====================

type xmlRegistryKey struct {
	Key    xmlAttr            `xml:"Key"`
	Hive   xmlAttr            `xml:"Hive"`
	Values []xmlRegistryValue `xml:"Values>Value"`
}

type xmlRegistryValue struct {
	Name     xmlAttr `xml:"Name"`
	Data     xmlAttr `xml:"Data"`
	Datatype string  `xml:"Datatype"`
}

func decodeRegistryKey(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlRegistryKey
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	key := &domain.WinRegistryKey{Key: x.Key.toDomain(), Hive: x.Hive.toDomain()}
	for _, v := range x.Values {
		key.Values = append(key.Values, &domain.RegistryValue{
			Name:     v.Name.toDomain(),
			Data:     v.Data.toDomain(),
			Datatype: strings.TrimSpace(v.Datatype),
		})
	}
	return key, nil
}

// ==================== NetworkConnection ====================

type xmlNetworkConnection struct {
	Layer3Protocol xmlAttr           `xml:"Layer3_Protocol"`
	Layer4Protocol xmlAttr           `xml:"Layer4_Protocol"`
	Source         *xmlSocketAddress `xml:"Source_Socket_Address"`
	Destination    *xmlSocketAddress `xml:"Destination_Socket_Address"`
}

type xmlSocketAddress struct {
	IPAddress *xmlAddress  `xml:"IP_Address"`
	Hostname  *xmlHostname `xml:"Hostname"`
	Port      xmlAttr      `xml:"Port>Port_Value"`
	Protocol  xmlAttr      `xml:"Port>Layer4_Protocol"`
}

func (x *xmlSocketAddress) toDomain() *domain.SocketAddress {
	if x == nil {
		return nil
	}
	return &domain.SocketAddress{
		IPAddress: x.IPAddress.toDomain(domain.AddressIPv4),
		Hostname:  x.Hostname.toDomain(),
		Port:      x.Port.toDomain(),
		Protocol:  x.Protocol.toDomain(),
	}
}

func decodeNetworkConnection(d *xml.Decoder, start xml.StartElement) (domain.ObjectProperties, error) {
	var x xmlNetworkConnection
	if err := d.DecodeElement(&x, &start); err != nil {
		return nil, err
	}
	return &domain.NetworkConnection{
		Layer3Protocol:           x.Layer3Protocol.toDomain(),
		Layer4Protocol:           x.Layer4Protocol.toDomain(),
		SourceSocketAddress:      x.Source.toDomain(),
		DestinationSocketAddress: x.Destination.toDomain(),
	}, nil
}
