package ps360

import (
	"encoding/xml"
	"fmt"
)

// The RAS services speak SOAP 1.2. Envelopes are small and fixed, so they
// are modelled directly with encoding/xml rather than generated from WSDL.
const (
	soapNS = "http://www.w3.org/2003/05/soap-envelope"
	rasNS  = "http://www.commissure.com/contracts"
)

// requestEnvelope is the outgoing SOAP 1.2 envelope. The AccountSession
// header, once captured from a SignIn response, is echoed on every call.
type requestEnvelope struct {
	XMLName xml.Name `xml:"s:Envelope"`
	XMLNS   string   `xml:"xmlns:s,attr"`
	Header  requestHeader
	Body    requestBody
}

type requestHeader struct {
	XMLName        xml.Name        `xml:"s:Header"`
	AccountSession *accountSession `xml:",omitempty"`
}

type accountSession struct {
	XMLName xml.Name `xml:"AccountSession"`
	Value   string   `xml:",chardata"`
}

type requestBody struct {
	XMLName xml.Name `xml:"s:Body"`
	Payload any
}

func buildEnvelope(payload any, session string) ([]byte, error) {
	env := requestEnvelope{
		XMLNS: soapNS,
		Body:  requestBody{Payload: payload},
	}
	if session != "" {
		env.Header.AccountSession = &accountSession{Value: session}
	}
	data, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SOAP envelope: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// responseEnvelope parses incoming envelopes by local element name, so
// the namespace prefixes the server chooses are irrelevant.
type responseEnvelope struct {
	Header struct {
		AccountSession string `xml:"AccountSession"`
	} `xml:"Header"`
	Body struct {
		Fault    *soapFault `xml:"Fault"`
		InnerXML []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code struct {
		Value string `xml:"Value"`
	} `xml:"Code"`
	Reason struct {
		Text string `xml:"Text"`
	} `xml:"Reason"`
}

func (f *soapFault) Error() string {
	return fmt.Sprintf("SOAP fault %s: %s", f.Code.Value, f.Reason.Text)
}

// --- operation payloads ---

type signInRequest struct {
	XMLName     xml.Name `xml:"SignIn"`
	XMLNS       string   `xml:"xmlns,attr"`
	LoginName   string   `xml:"loginName"`
	Password    string   `xml:"password"`
	AdminMode   bool     `xml:"adminMode"`
	Version     string   `xml:"version"`
	Workstation string   `xml:"workstation"`
	Locale      string   `xml:"locale"`
	TimeZoneID  string   `xml:"timeZoneId"`
}

type signInResponse struct {
	XMLName xml.Name `xml:"SignInResponse"`
	Result  struct {
		AccountID int64 `xml:"AccountID"`
		Person    struct {
			FirstName string `xml:"FirstName"`
			LastName  string `xml:"LastName"`
		} `xml:"Person"`
	} `xml:"SignInResult"`
}

type signOutRequest struct {
	XMLName xml.Name `xml:"SignOut"`
	XMLNS   string   `xml:"xmlns,attr"`
}

type signOutResponse struct {
	XMLName xml.Name `xml:"SignOutResponse"`
	Result  bool     `xml:"SignOutResult"`
}

type browseOrdersRequest struct {
	XMLName        xml.Name        `xml:"BrowseOrders"`
	XMLNS          string          `xml:"xmlns,attr"`
	SiteID         int             `xml:"siteID"`
	Time           browseTimeRange `xml:"time"`
	OrderStatus    string          `xml:"orderStatus"`
	TransferStatus string          `xml:"transferStatus"`
	ReportStatus   string          `xml:"reportStatus"`
	Sort           string          `xml:"sort"`
	PageSize       int             `xml:"pageSize"`
	PageNumber     int             `xml:"pageNumber"`
}

type browseTimeRange struct {
	Period string `xml:"Period"`
	From   string `xml:"From"`
	To     string `xml:"To"`
}

type browseOrdersResponse struct {
	XMLName xml.Name         `xml:"BrowseOrdersResponse"`
	Orders  []browseOrderRow `xml:"BrowseOrdersResult>OrderData"`
}

type browseOrderRow struct {
	ReportID         int64   `xml:"ReportID"`
	LastModifiedDate rasTime `xml:"LastModifiedDate"`
}

type getReportEventsRequest struct {
	XMLName           xml.Name `xml:"GetReportEvents"`
	XMLNS             string   `xml:"xmlns,attr"`
	ReportID          int64    `xml:"reportID"`
	EventsWithContent bool     `xml:"eventsWithContent"`
	ExcludeViewEvents bool     `xml:"excludeViewEvents"`
	FetchBlob         bool     `xml:"fetchBlob"`
}

type getReportEventsResponse struct {
	XMLName xml.Name         `xml:"GetReportEventsResponse"`
	Events  []reportEventRow `xml:"GetReportEventsResult>ReportEventData"`
}

type reportEventRow struct {
	Type           string  `xml:"Type"`
	EventTime      rasTime `xml:"EventTime"`
	Workstation    string  `xml:"Workstation"`
	AdditionalInfo string  `xml:"AdditionalInfo"`
	Account        struct {
		ID   int64  `xml:"ID"`
		Name string `xml:"Name"`
	} `xml:"Account"`
}
