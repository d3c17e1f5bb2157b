package ps360

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelope_WithoutSession(t *testing.T) {
	data, err := buildEnvelope(signOutRequest{XMLNS: rasNS}, "")
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">`)
	assert.Contains(t, s, "<s:Header></s:Header>")
	assert.NotContains(t, s, "AccountSession")
	assert.Contains(t, s, `<SignOut xmlns="http://www.commissure.com/contracts">`)
}

func TestBuildEnvelope_EchoesSessionHeader(t *testing.T) {
	data, err := buildEnvelope(signOutRequest{XMLNS: rasNS}, "abc-123")
	require.NoError(t, err)
	assert.Contains(t, string(data), "<AccountSession>abc-123</AccountSession>")
}

func TestBuildEnvelope_SignInFields(t *testing.T) {
	req := signInRequest{
		XMLNS:      rasNS,
		LoginName:  "svc",
		Password:   "hunter2",
		Version:    psVersion,
		Locale:     locale,
		TimeZoneID: timeZoneID,
	}
	data, err := buildEnvelope(req, "")
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "<loginName>svc</loginName>")
	assert.Contains(t, s, "<password>hunter2</password>")
	assert.Contains(t, s, "<adminMode>false</adminMode>")
	assert.Contains(t, s, "<version>7.0.212.0</version>")
	assert.Contains(t, s, "<locale>en-NZ</locale>")
	assert.Contains(t, s, "<timeZoneId>New Zealand Standard Time</timeZoneId>")
}

func TestResponseEnvelope_ParsesPrefixedNamespaces(t *testing.T) {
	raw := `<?xml version="1.0"?>
<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope">
  <env:Header>
    <AccountSession>session-token</AccountSession>
  </env:Header>
  <env:Body>
    <SignInResponse xmlns="http://www.commissure.com/contracts">
      <SignInResult>
        <AccountID>42</AccountID>
        <Person><FirstName>Joe</FirstName><LastName>Bloggs</LastName></Person>
      </SignInResult>
    </SignInResponse>
  </env:Body>
</env:Envelope>`

	var env responseEnvelope
	require.NoError(t, xml.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "session-token", env.Header.AccountSession)
	require.Nil(t, env.Body.Fault)

	var resp signInResponse
	require.NoError(t, xml.Unmarshal(env.Body.InnerXML, &resp))
	assert.Equal(t, int64(42), resp.Result.AccountID)
	assert.Equal(t, "Joe", resp.Result.Person.FirstName)
	assert.Equal(t, "Bloggs", resp.Result.Person.LastName)
}

func TestResponseEnvelope_Fault(t *testing.T) {
	raw := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
  <s:Body>
    <s:Fault>
      <s:Code><s:Value>s:Sender</s:Value></s:Code>
      <s:Reason><s:Text xml:lang="en">Session expired</s:Text></s:Reason>
    </s:Fault>
  </s:Body>
</s:Envelope>`

	var env responseEnvelope
	require.NoError(t, xml.Unmarshal([]byte(raw), &env))
	require.NotNil(t, env.Body.Fault)
	assert.EqualError(t, env.Body.Fault, "SOAP fault s:Sender: Session expired")
}

func TestGetReportEventsResponse_Parsing(t *testing.T) {
	raw := `<GetReportEventsResponse xmlns="http://www.commissure.com/contracts">
  <GetReportEventsResult>
    <ReportEventData>
      <Type>Sign</Type>
      <EventTime>2026-08-26T09:15:30.123</EventTime>
      <Workstation>RAD-WS-07</Workstation>
      <AdditionalInfo></AdditionalInfo>
      <Account><ID>7</ID><Name>jbloggs</Name></Account>
    </ReportEventData>
    <ReportEventData>
      <Type>Edit</Type>
      <EventTime>2026-08-26T09:10:00</EventTime>
      <Workstation>RAD-WS-07</Workstation>
      <AdditionalInfo>autosave</AdditionalInfo>
      <Account><ID>7</ID><Name>jbloggs</Name></Account>
    </ReportEventData>
  </GetReportEventsResult>
</GetReportEventsResponse>`

	var resp getReportEventsResponse
	require.NoError(t, xml.Unmarshal([]byte(raw), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "Sign", resp.Events[0].Type)
	assert.Equal(t, int64(7), resp.Events[0].Account.ID)
	assert.Equal(t, "RAD-WS-07", resp.Events[0].Workstation)
	assert.True(t, resp.Events[0].EventTime.After(resp.Events[1].EventTime.Time))
}

func TestRASTime_Layouts(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-08-26T09:15:30Z", time.Date(2026, 8, 26, 9, 15, 30, 0, time.UTC)},
		{"2026-08-26T09:15:30.5+12:00", time.Date(2026, 8, 26, 9, 15, 30, 500_000_000, time.FixedZone("", 12*3600))},
		{"2026-08-26T09:15:30.123", time.Date(2026, 8, 26, 9, 15, 30, 123_000_000, time.Local)},
		{"2026-08-26T09:15:30", time.Date(2026, 8, 26, 9, 15, 30, 0, time.Local)},
	}
	for _, tt := range tests {
		var rt rasTime
		require.NoError(t, rt.UnmarshalText([]byte(tt.input)), tt.input)
		assert.True(t, tt.want.Equal(rt.Time), "parsing %s: got %s, want %s", tt.input, rt.Time, tt.want)
	}

	var rt rasTime
	assert.Error(t, rt.UnmarshalText([]byte("26/08/2026 09:15")))
}
