package domain

import "sort"

// ObjectProperties is the typed properties block of a CybOX object.
// ObjectType names the variant (e.g., "Address", "File") and is the key
// used by sink profiles.
type ObjectProperties interface {
	Entity
	ObjectType() string
}

// Object type names.
const (
	ObjectAddress           = "Address"
	ObjectDomainName        = "DomainName"
	ObjectURI               = "URI"
	ObjectHostname          = "Hostname"
	ObjectFile              = "File"
	ObjectEmailMessage      = "EmailMessage"
	ObjectMutex             = "Mutex"
	ObjectWinRegistryKey    = "WindowsRegistryKey"
	ObjectNetworkConnection = "NetworkConnection"
)

// Address categories used by constraints.
const (
	AddressIPv4  = "ipv4-addr"
	AddressIPv6  = "ipv6-addr"
	AddressEmail = "e-mail"
	AddressMAC   = "mac"
	AddressCIDR  = "cidr"
)

// Attr is a CybOX string property with an optional condition.
type Attr struct {
	Value     string
	Condition string
}

// propertyTable maps property names to accessors for one concrete type.
// Tables are built once per type at package initialisation.
type propertyTable[T any] map[string]func(*T) Value

func (t propertyTable[T]) lookup(obj *T, name string) (Value, bool) {
	if obj == nil {
		return nil, false
	}
	get, ok := t[name]
	if !ok {
		return nil, false
	}
	v := get(obj)
	if v == nil {
		return nil, false
	}
	return v, true
}

func (t propertyTable[T]) names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func attr(a Attr) Value {
	if a.Value == "" {
		return nil
	}
	return Leaf{Data: a.Value, Condition: a.Condition}
}

func text(s string) Value {
	if s == "" {
		return nil
	}
	return Leaf{Data: s}
}

func scalar(v any) Value {
	return Leaf{Data: v}
}

func node[E interface {
	comparable
	Entity
}](e E) Value {
	var zero E
	if e == zero {
		return nil
	}
	return Node{Entity: e}
}

func nodes[E interface {
	comparable
	Entity
}](items []E) Value {
	if len(items) == 0 {
		return nil
	}
	list := make(List, 0, len(items))
	for _, item := range items {
		if v := node(item); v != nil {
			list = append(list, v)
		}
	}
	return list
}

func attrs(items []Attr) Value {
	if len(items) == 0 {
		return nil
	}
	list := make(List, 0, len(items))
	for _, item := range items {
		list = append(list, Leaf{Data: item.Value, Condition: item.Condition})
	}
	return list
}

// ==================== Address ====================

// Address is a network, MAC or e-mail address.
type Address struct {
	Category      string
	AddressValue  Attr
	VLANName      Attr
	VLANNum       int64
	IsSource      bool
	IsDestination bool
}

var addressProperties = propertyTable[Address]{
	"category":       func(a *Address) Value { return text(a.Category) },
	"address_value":  func(a *Address) Value { return attr(a.AddressValue) },
	"value":          func(a *Address) Value { return attr(a.AddressValue) },
	"vlan_name":      func(a *Address) Value { return attr(a.VLANName) },
	"vlan_num":       func(a *Address) Value { return scalar(a.VLANNum) },
	"is_source":      func(a *Address) Value { return scalar(a.IsSource) },
	"is_destination": func(a *Address) Value { return scalar(a.IsDestination) },
}

func (a *Address) ObjectType() string { return ObjectAddress }

func (a *Address) Property(name string) (Value, bool) { return addressProperties.lookup(a, name) }

// ==================== DomainName ====================

// DomainName is a fully qualified domain name or TLD.
type DomainName struct {
	Value Attr
	Type  string
}

var domainNameProperties = propertyTable[DomainName]{
	"value": func(d *DomainName) Value { return attr(d.Value) },
	"type":  func(d *DomainName) Value { return text(d.Type) },
}

func (d *DomainName) ObjectType() string { return ObjectDomainName }

func (d *DomainName) Property(name string) (Value, bool) { return domainNameProperties.lookup(d, name) }

// ==================== URI ====================

// URI is a URL, URN or general URI.
type URI struct {
	Value Attr
	Type  string
}

var uriProperties = propertyTable[URI]{
	"value": func(u *URI) Value { return attr(u.Value) },
	"type":  func(u *URI) Value { return text(u.Type) },
}

func (u *URI) ObjectType() string { return ObjectURI }

func (u *URI) Property(name string) (Value, bool) { return uriProperties.lookup(u, name) }

// ==================== Hostname ====================

// Hostname is a host name, optionally a domain name.
type Hostname struct {
	HostnameValue Attr
	NamingSystem  []Attr
	IsDomainName  bool
}

var hostnameProperties = propertyTable[Hostname]{
	"hostname_value": func(h *Hostname) Value { return attr(h.HostnameValue) },
	"value":          func(h *Hostname) Value { return attr(h.HostnameValue) },
	"naming_system":  func(h *Hostname) Value { return attrs(h.NamingSystem) },
	"is_domain_name": func(h *Hostname) Value { return scalar(h.IsDomainName) },
}

func (h *Hostname) ObjectType() string { return ObjectHostname }

func (h *Hostname) Property(name string) (Value, bool) { return hostnameProperties.lookup(h, name) }

// ==================== File ====================

// File describes a file and its hashes.
type File struct {
	FileName      Attr
	FilePath      Attr
	FileExtension Attr
	SizeInBytes   int64
	Hashes        []*Hash
}

var fileProperties = propertyTable[File]{
	"file_name":      func(f *File) Value { return attr(f.FileName) },
	"file_path":      func(f *File) Value { return attr(f.FilePath) },
	"file_extension": func(f *File) Value { return attr(f.FileExtension) },
	"size_in_bytes":  func(f *File) Value { return scalar(f.SizeInBytes) },
	"hashes":         func(f *File) Value { return nodes(f.Hashes) },
}

func (f *File) ObjectType() string { return ObjectFile }

func (f *File) Property(name string) (Value, bool) { return fileProperties.lookup(f, name) }

// Hash is one hash of a file.
type Hash struct {
	Type            Attr
	SimpleHashValue Attr
}

var hashProperties = propertyTable[Hash]{
	"type":              func(h *Hash) Value { return attr(h.Type) },
	"simple_hash_value": func(h *Hash) Value { return attr(h.SimpleHashValue) },
}

func (h *Hash) Property(name string) (Value, bool) { return hashProperties.lookup(h, name) }

// ==================== EmailMessage ====================

// EmailMessage is an e-mail with its header fields.
type EmailMessage struct {
	Header      *EmailHeader
	Attachments []string
	RawBody     string
}

var emailMessageProperties = propertyTable[EmailMessage]{
	"header": func(m *EmailMessage) Value { return node(m.Header) },
	"attachments": func(m *EmailMessage) Value {
		if len(m.Attachments) == 0 {
			return nil
		}
		list := make(List, len(m.Attachments))
		for i, ref := range m.Attachments {
			list[i] = Text(ref)
		}
		return list
	},
	"raw_body": func(m *EmailMessage) Value { return text(m.RawBody) },
}

func (m *EmailMessage) ObjectType() string { return ObjectEmailMessage }

func (m *EmailMessage) Property(name string) (Value, bool) { return emailMessageProperties.lookup(m, name) }

// EmailHeader holds the routing and descriptive header fields.
// Addresses reuse Address with category "e-mail".
type EmailHeader struct {
	To             []*Address
	CC             []*Address
	From           *Address
	Sender         *Address
	ReplyTo        *Address
	Subject        Attr
	Date           string
	MessageID      Attr
	XMailer        Attr
	XOriginatingIP *Address
}

var emailHeaderProperties = propertyTable[EmailHeader]{
	"to":               func(h *EmailHeader) Value { return nodes(h.To) },
	"cc":               func(h *EmailHeader) Value { return nodes(h.CC) },
	"from":             func(h *EmailHeader) Value { return node(h.From) },
	"sender":           func(h *EmailHeader) Value { return node(h.Sender) },
	"reply_to":         func(h *EmailHeader) Value { return node(h.ReplyTo) },
	"subject":          func(h *EmailHeader) Value { return attr(h.Subject) },
	"date":             func(h *EmailHeader) Value { return text(h.Date) },
	"message_id":       func(h *EmailHeader) Value { return attr(h.MessageID) },
	"x_mailer":         func(h *EmailHeader) Value { return attr(h.XMailer) },
	"x_originating_ip": func(h *EmailHeader) Value { return node(h.XOriginatingIP) },
}

func (h *EmailHeader) Property(name string) (Value, bool) { return emailHeaderProperties.lookup(h, name) }

// ==================== Mutex ====================

// Mutex is a named synchronisation object.
type Mutex struct {
	Name  Attr
	Named bool
}

var mutexProperties = propertyTable[Mutex]{
	"name":  func(m *Mutex) Value { return attr(m.Name) },
	"named": func(m *Mutex) Value { return scalar(m.Named) },
}

func (m *Mutex) ObjectType() string { return ObjectMutex }

func (m *Mutex) Property(name string) (Value, bool) { return mutexProperties.lookup(m, name) }

// ==================== WindowsRegistryKey ====================

// WinRegistryKey is a Windows registry key and its values.
type WinRegistryKey struct {
	Key    Attr
	Hive   Attr
	Values []*RegistryValue
}

var winRegistryKeyProperties = propertyTable[WinRegistryKey]{
	"key":    func(k *WinRegistryKey) Value { return attr(k.Key) },
	"hive":   func(k *WinRegistryKey) Value { return attr(k.Hive) },
	"values": func(k *WinRegistryKey) Value { return nodes(k.Values) },
}

func (k *WinRegistryKey) ObjectType() string { return ObjectWinRegistryKey }

func (k *WinRegistryKey) Property(name string) (Value, bool) {
	return winRegistryKeyProperties.lookup(k, name)
}

// RegistryValue is one value of a registry key.
type RegistryValue struct {
	Name     Attr
	Data     Attr
	Datatype string
}

var registryValueProperties = propertyTable[RegistryValue]{
	"name":     func(v *RegistryValue) Value { return attr(v.Name) },
	"data":     func(v *RegistryValue) Value { return attr(v.Data) },
	"datatype": func(v *RegistryValue) Value { return text(v.Datatype) },
}

func (v *RegistryValue) Property(name string) (Value, bool) { return registryValueProperties.lookup(v, name) }

// ==================== NetworkConnection ====================

// NetworkConnection is a connection between two socket addresses.
type NetworkConnection struct {
	Layer3Protocol           Attr
	Layer4Protocol           Attr
	SourceSocketAddress      *SocketAddress
	DestinationSocketAddress *SocketAddress
}

var networkConnectionProperties = propertyTable[NetworkConnection]{
	"layer3_protocol":            func(c *NetworkConnection) Value { return attr(c.Layer3Protocol) },
	"layer4_protocol":            func(c *NetworkConnection) Value { return attr(c.Layer4Protocol) },
	"source_socket_address":      func(c *NetworkConnection) Value { return node(c.SourceSocketAddress) },
	"destination_socket_address": func(c *NetworkConnection) Value { return node(c.DestinationSocketAddress) },
}

func (c *NetworkConnection) ObjectType() string { return ObjectNetworkConnection }

func (c *NetworkConnection) Property(name string) (Value, bool) {
	return networkConnectionProperties.lookup(c, name)
}

// SocketAddress is an IP address or hostname with a port.
type SocketAddress struct {
	IPAddress *Address
	Hostname  *Hostname
	Port      Attr
	Protocol  Attr
}

var socketAddressProperties = propertyTable[SocketAddress]{
	"ip_address": func(s *SocketAddress) Value { return node(s.IPAddress) },
	"hostname":   func(s *SocketAddress) Value { return node(s.Hostname) },
	"port":       func(s *SocketAddress) Value { return attr(s.Port) },
	"protocol":   func(s *SocketAddress) Value { return attr(s.Protocol) },
}

func (s *SocketAddress) Property(name string) (Value, bool) { return socketAddressProperties.lookup(s, name) }

// ==================== Registry ====================

// PropertyNames returns the top-level property names of an object type,
// sorted. Unknown types return nil.
func PropertyNames(objectType string) []string {
	switch objectType {
	case ObjectAddress:
		return addressProperties.names()
	case ObjectDomainName:
		return domainNameProperties.names()
	case ObjectURI:
		return uriProperties.names()
	case ObjectHostname:
		return hostnameProperties.names()
	case ObjectFile:
		return fileProperties.names()
	case ObjectEmailMessage:
		return emailMessageProperties.names()
	case ObjectMutex:
		return mutexProperties.names()
	case ObjectWinRegistryKey:
		return winRegistryKeyProperties.names()
	case ObjectNetworkConnection:
		return networkConnectionProperties.names()
	}
	return nil
}

// ObjectTypes returns every supported object type, sorted.
func ObjectTypes() []string {
	types := []string{
		ObjectAddress, ObjectDomainName, ObjectURI, ObjectHostname, ObjectFile,
		ObjectEmailMessage, ObjectMutex, ObjectWinRegistryKey, ObjectNetworkConnection,
	}
	sort.Strings(types)
	return types
}
