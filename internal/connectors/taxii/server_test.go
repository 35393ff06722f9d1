package taxii

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/connectors/ratelimit"
)

const stixPackage = `<stix:STIX_Package xmlns:stix="http://stix.mitre.org/stix-1" id="example:Package-%d"/>`

// fakeServer is a scripted TAXII endpoint. Each request is answered with
// the next response in order.
type fakeServer struct {
	t         *testing.T
	mu        sync.Mutex
	responses []string
	status    []int
	requests  []*http.Request
	bodies    []string
	server    *httptest.Server
}

func newFakeServer(t *testing.T, responses ...string) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, responses: responses}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	if idx < len(f.status) && f.status[idx] != 0 {
		w.WriteHeader(f.status[idx])
		return
	}
	if idx >= len(f.responses) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-TAXII-Content-Type", MessageBinding)
	_, _ = io.WriteString(w, f.responses[idx])
}

func (f *fakeServer) newClient(auth Auth) *Client {
	f.t.Helper()
	c, err := NewClient(f.server.URL+"/poll", auth,
		WithLimiter(ratelimit.NewWithConfig(ratelimit.ServiceTAXII, ratelimit.Config{})))
	require.NoError(f.t, err)
	return c
}

func pollResponse(resultID string, more bool, part int, packages ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<taxii_11:Poll_Response xmlns:taxii_11=%q message_id="r%d" in_response_to="" collection_name="feed"`, Namespace, part)
	if resultID != "" {
		fmt.Fprintf(&b, ` result_id=%q more="%t" result_part_number="%d"`, resultID, more, part)
	}
	b.WriteString(`>`)
	b.WriteString(`<taxii_11:Inclusive_End_Timestamp>2016-02-01T00:00:00.000000Z</taxii_11:Inclusive_End_Timestamp>`)
	for _, n := range packages {
		b.WriteString(`<taxii_11:Content_Block>`)
		fmt.Fprintf(&b, `<taxii_11:Content_Binding binding_id=%q/>`, ContentBindingSTIX)
		b.WriteString(`<taxii_11:Content>`)
		fmt.Fprintf(&b, stixPackage, n)
		b.WriteString(`</taxii_11:Content>`)
		fmt.Fprintf(&b, `<taxii_11:Timestamp_Label>2016-01-0%dT10:00:00Z</taxii_11:Timestamp_Label>`, n)
		b.WriteString(`</taxii_11:Content_Block>`)
	}
	b.WriteString(`</taxii_11:Poll_Response>`)
	return b.String()
}

func statusMessage(statusType, message string) string {
	return fmt.Sprintf(`<taxii_11:Status_Message xmlns:taxii_11=%q message_id="s1" in_response_to="x" status_type=%q><taxii_11:Message>%s</taxii_11:Message></taxii_11:Status_Message>`,
		Namespace, statusType, message)
}

// requestRoot decodes the root element name and attributes of a request body.
func requestRoot(t *testing.T, body string) xml.StartElement {
	t.Helper()
	d := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := d.Token()
		require.NoError(t, err)
		if start, ok := tok.(xml.StartElement); ok {
			return start
		}
	}
}

func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
